// Package llm talks to the hosted language models used by the AI judge.
//
// Three providers are supported (google, openai, anthropic). Each one is a
// CoreLLM; cross-cutting behaviour such as timeouts, rate limiting, circuit
// breaking, retries, metrics and tracing is layered on with Middleware:
//
//	client, err := llm.NewClient(llm.ClientConfig{
//	    Provider: "google",
//	    APIKey:   os.Getenv("GEMINI_API_KEY"),
//	    Middleware: llm.Chain(metrics, llm.DefaultResilience()),
//	})
//	answer, err := client.Complete(ctx, prompt, map[string]any{"temperature": 0.3})
package llm

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/tomtat/tomtat/internal/ports"
)

var validate = validator.New()

// CoreLLM is the minimal surface a provider implements. Middleware wraps
// CoreLLM values, so every layer sees the same signature.
type CoreLLM interface {
	// DoRequest sends prompt and returns the answer with input and output
	// token counts.
	DoRequest(ctx context.Context, prompt string, opts map[string]any) (response string, tokensIn, tokensOut int, err error)

	// Provider names the backing service ("google", "openai", "anthropic").
	Provider() string

	// GetModel returns the default model for requests without a "model" option.
	GetModel() string
}

// Middleware wraps a CoreLLM to add behaviour around DoRequest.
type Middleware func(CoreLLM) CoreLLM

// TokenEstimator approximates token counts before a request is made.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// ClientConfig configures NewClient.
type ClientConfig struct {
	Provider string        `validate:"required,oneof=google openai anthropic"`
	APIKey   string        `validate:"required"`
	Model    string        `validate:"omitempty,max=128"`
	BaseURL  string        `validate:"omitempty,url"`
	Timeout  time.Duration `validate:"min=0"`

	// Estimator defaults to RuneEstimator.
	Estimator TokenEstimator `validate:"-"`

	// Middleware is applied so that the first element is the outermost layer.
	Middleware []Middleware `validate:"-"`
}

type providerFactory func(ClientConfig) (CoreLLM, error)

var providerFactories = map[string]providerFactory{
	"google":    newGoogleProvider,
	"openai":    newOpenAIProvider,
	"anthropic": newAnthropicProvider,
}

// DefaultModels lists the model used when ClientConfig.Model is empty.
var DefaultModels = map[string]string{
	"google":    GoogleDefaultModel,
	"openai":    OpenAIDefaultModel,
	"anthropic": AnthropicDefaultModel,
}

// Client implements ports.LLMClient on top of a middleware-wrapped provider.
type Client struct {
	core      CoreLLM
	estimator TokenEstimator
}

// NewClient validates cfg, creates the provider and wraps it in cfg.Middleware.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid llm config: %w", err)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModels[cfg.Provider]
	}

	core, err := providerFactories[cfg.Provider](cfg)
	if err != nil {
		return nil, fmt.Errorf("creating %s provider: %w", cfg.Provider, err)
	}
	return newClient(core, cfg.Estimator, cfg.Middleware...), nil
}

func newClient(core CoreLLM, estimator TokenEstimator, middleware ...Middleware) *Client {
	for i := len(middleware) - 1; i >= 0; i-- {
		core = middleware[i](core)
	}
	if estimator == nil {
		estimator = RuneEstimator{}
	}
	return &Client{core: core, estimator: estimator}
}

// Complete sends prompt and returns the answer text.
func (c *Client) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	response, _, _, err := c.core.DoRequest(ctx, prompt, options)
	return response, err
}

// CompleteWithUsage is Complete plus the token counts reported by the provider.
func (c *Client) CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (string, int, int, error) {
	return c.core.DoRequest(ctx, prompt, options)
}

func (c *Client) EstimateTokens(text string) (int, error) {
	return c.estimator.EstimateTokens(text), nil
}

func (c *Client) GetModel() string { return c.core.GetModel() }

// Provider returns the provider name of the wrapped core.
func (c *Client) Provider() string { return c.core.Provider() }

// RuneEstimator assumes about four characters per token. It counts runes so
// that Vietnamese diacritics are not over-counted as multi-byte sequences.
type RuneEstimator struct{}

func (RuneEstimator) EstimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

var _ ports.LLMClient = (*Client)(nil)
