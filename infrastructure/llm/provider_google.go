package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

// GoogleDefaultModel is used when no Gemini model is configured.
const GoogleDefaultModel = "gemini-2.0-flash"

type googleProvider struct {
	client *genai.Client
	model  string
}

func newGoogleProvider(cfg ClientConfig) (CoreLLM, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &googleProvider{client: client, model: cfg.Model}, nil
}

func (p *googleProvider) Provider() string { return "google" }

func (p *googleProvider) GetModel() string { return p.model }

func (p *googleProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	o := parseOptions(opts, p.model)

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := p.client.Models.GenerateContent(ctx, o.Model, contents, generationConfig(o))
	if err != nil {
		return "", 0, 0, classifyGoogleError(err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", 0, 0, &ProviderError{Type: ErrorTypeContentPolicy, Provider: "google", Message: "no text in response", Err: ErrEmptyResponse}
	}

	in, out := RuneEstimator{}.EstimateTokens(prompt), RuneEstimator{}.EstimateTokens(text)
	if u := resp.UsageMetadata; u != nil {
		if u.PromptTokenCount > 0 {
			in = int(u.PromptTokenCount)
		}
		if u.CandidatesTokenCount > 0 {
			out = int(u.CandidatesTokenCount)
		}
	}
	return text, in, out, nil
}

func generationConfig(o requestOptions) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(min(o.MaxTokens, math.MaxInt32)),
	}
	if o.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(o.System, genai.RoleUser)
	}
	if o.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*o.Temperature))
	}
	if o.TopP != nil {
		cfg.TopP = genai.Ptr(float32(*o.TopP))
	}
	if o.JSONMode {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}

func classifyGoogleError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyGoogleStatus(apiErr.Code, apiErr.Message, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return classifyGoogleStatus(apiErrPtr.Code, apiErrPtr.Message, err)
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		msg := gErr.Message
		if msg == "" && len(gErr.Errors) > 0 {
			msg = gErr.Errors[0].Message
		}
		return classifyGoogleStatus(gErr.Code, msg, err)
	}
	return classifyTransport("google", err)
}

func classifyGoogleStatus(code int, message string, err error) *ProviderError {
	if code == http.StatusBadRequest && mentionsSafety(message) {
		return &ProviderError{Type: ErrorTypeContentPolicy, Provider: "google", StatusCode: code, Message: "blocked by safety filters", Err: err}
	}
	return classifyStatus("google", code, message, err)
}

func mentionsSafety(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "safety") || strings.Contains(lower, "blocked")
}
