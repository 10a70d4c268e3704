// Package inference talks to the remote GPU server that hosts the
// summarization and embedding models.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tomtat/tomtat/internal/ports"
)

var validate = validator.New()

// Health states reported by Health.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

// maxErrorBody caps how much of a failed response body is kept.
const maxErrorBody = 4 << 10

// Config configures the inference client. Exactly one of BaseURL and
// DiscoveryURL is needed; BaseURL wins when both are set.
type Config struct {
	// BaseURL is the fixed address of the inference server.
	BaseURL string `yaml:"base_url" json:"base_url" validate:"omitempty,url"`
	// DiscoveryURL points at a plain-text document holding the current
	// server address, such as a raw GitHub Gist.
	DiscoveryURL string        `yaml:"discovery_url" json:"discovery_url" validate:"required_without=BaseURL"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout" validate:"required,min=1s"`
}

// DefaultConfig returns a config with the default 120 second timeout.
func DefaultConfig() Config {
	return Config{Timeout: 120 * time.Second}
}

// Client is an HTTP client for the inference server. It implements
// ports.Summarizer and ports.TokenEmbedder.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
	tracer trace.Tracer

	mu        sync.RWMutex
	cachedURL string
}

// NewClient validates cfg and creates a Client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid inference config: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:       cfg,
		http:      httpClient,
		logger:    logger.With(slog.String("component", "inference")),
		tracer:    otel.Tracer("inference-client"),
		cachedURL: strings.TrimRight(cfg.BaseURL, "/"),
	}, nil
}

// BaseURL returns the server address, discovering it on first use.
func (c *Client) BaseURL(ctx context.Context) (string, error) {
	c.mu.RLock()
	u := c.cachedURL
	c.mu.RUnlock()
	if u != "" {
		return u, nil
	}
	return c.Refresh(ctx)
}

// Refresh re-reads the server address from the discovery document. With a
// fixed BaseURL it returns that address unchanged.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	if c.cfg.BaseURL != "" {
		return strings.TrimRight(c.cfg.BaseURL, "/"), nil
	}

	u, err := url.Parse(c.cfg.DiscoveryURL)
	if err != nil {
		return "", fmt.Errorf("parsing discovery url: %w", err)
	}
	q := u.Query()
	q.Set("t", strconv.FormatInt(time.Now().Unix(), 10))
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	body, err := c.do(req)
	if err != nil {
		if errors.Is(err, ports.ErrGatewayTimeout) || errors.Is(err, ports.ErrServiceUnavailable) {
			return "", fmt.Errorf("discovering inference server: %w", err)
		}
		return "", fmt.Errorf("discovering inference server: %w: %w", ports.ErrServiceUnavailable, err)
	}

	addr := strings.TrimRight(strings.TrimSpace(string(body)), "/")
	if addr == "" {
		return "", fmt.Errorf("discovering inference server: empty address: %w", ports.ErrServiceUnavailable)
	}

	c.mu.Lock()
	c.cachedURL = addr
	c.mu.Unlock()
	c.logger.Info("inference server discovered", slog.String("url", addr))
	return addr, nil
}

// Summarize sends one summarization request.
func (c *Client) Summarize(ctx context.Context, in ports.SummarizeRequest) (ports.SummarizeResponse, error) {
	ctx, span := c.tracer.Start(ctx, "Client.Summarize",
		trace.WithAttributes(
			attribute.String("inference.model", in.Model),
			attribute.Int("inference.max_length", in.MaxLength),
		))
	defer span.End()

	var out ports.SummarizeResponse
	if err := c.postJSON(ctx, "/summarize", in, &out); err != nil {
		span.RecordError(err)
		return ports.SummarizeResponse{}, err
	}
	return out, nil
}

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Embeddings [][][]float32 `json:"embeddings"`
}

// Embed returns contextual token embeddings for texts.
func (c *Client) Embed(ctx context.Context, texts []string) ([][][]float32, error) {
	ctx, span := c.tracer.Start(ctx, "Client.Embed",
		trace.WithAttributes(attribute.Int("inference.texts", len(texts))))
	defer span.End()

	var out embedResponse
	if err := c.postJSON(ctx, "/embed", embedRequest{Texts: texts}, &out); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(out.Embeddings) != len(texts) {
		err := fmt.Errorf("embed: expected %d embeddings, got %d: %w",
			len(texts), len(out.Embeddings), ports.ErrInvalidResponse)
		span.RecordError(err)
		return nil, err
	}
	return out.Embeddings, nil
}

type healthResponse struct {
	GPU bool `json:"gpu"`
}

// Health re-discovers the server address and checks it. Failures are
// reported in the result.
func (c *Client) Health(ctx context.Context) ports.InferenceHealth {
	addr, err := c.Refresh(ctx)
	if err != nil {
		return c.disconnected(err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/health", nil)
	if err != nil {
		return c.disconnected(err)
	}
	body, err := c.do(req)
	if err != nil {
		return c.disconnected(err)
	}
	var h healthResponse
	if err := json.Unmarshal(body, &h); err != nil {
		return c.disconnected(fmt.Errorf("decoding health response: %w", err))
	}
	return ports.InferenceHealth{Status: StatusConnected, URL: addr, GPUAvailable: h.GPU}
}

func (c *Client) disconnected(err error) ports.InferenceHealth {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ports.InferenceHealth{Status: StatusDisconnected, URL: c.cachedURL, Error: err.Error()}
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	addr, err := c.BaseURL(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	body, err := c.do(req)
	if err != nil {
		c.logger.Warn("inference request failed",
			slog.String("path", path),
			slog.Duration("took", time.Since(start)),
			slog.String("error", err.Error()))
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s response: %w: %w", path, ports.ErrInvalidResponse, err)
	}
	return nil
}

// do executes req and maps transport failures onto the port errors:
// deadlines become ErrGatewayTimeout, other transport failures
// ErrServiceUnavailable and non-2xx answers *ports.UpstreamError.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, translateTransportError(err, c.cfg.Timeout)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &ports.UpstreamError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(b)),
		}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, translateTransportError(err, c.cfg.Timeout)
	}
	return body, nil
}

func translateTransportError(err error, timeout time.Duration) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("inference server did not answer within %s: %w", timeout, ports.ErrGatewayTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("cannot reach inference server: %w: %w", ports.ErrServiceUnavailable, err)
}

var (
	_ ports.Summarizer    = (*Client)(nil)
	_ ports.TokenEmbedder = (*Client)(nil)
)
