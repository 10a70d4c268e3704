package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicDefaultModel is used when no Claude model is configured.
const AnthropicDefaultModel = "claude-3-5-haiku-latest"

// jsonPreamble is prepended to the system prompt in JSON mode; the Messages
// API has no response_format switch.
const jsonPreamble = "Respond with a single JSON object and nothing else."

type anthropicProvider struct {
	client anthropic.Client
	model  string
}

func newAnthropicProvider(cfg ClientConfig) (CoreLLM, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Retries belong to RetryMiddleware.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &anthropicProvider{client: anthropic.NewClient(opts...), model: cfg.Model}, nil
}

func (p *anthropicProvider) Provider() string { return "anthropic" }

func (p *anthropicProvider) GetModel() string { return p.model }

func (p *anthropicProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	o := parseOptions(opts, p.model)

	msg, err := p.client.Messages.New(ctx, messageParams(prompt, o))
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", 0, 0, classifyStatus("anthropic", apiErr.StatusCode, apiErr.Error(), err)
		}
		return "", 0, 0, classifyTransport("anthropic", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	content := sb.String()
	if content == "" {
		return "", 0, 0, &ProviderError{Type: ErrorTypeUnknown, Provider: "anthropic", Message: "no text blocks in response", Err: ErrEmptyResponse}
	}

	in, out := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	if in == 0 {
		in = RuneEstimator{}.EstimateTokens(prompt)
	}
	if out == 0 {
		out = RuneEstimator{}.EstimateTokens(content)
	}
	return content, in, out, nil
}

func messageParams(prompt string, o requestOptions) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(o.Model),
		MaxTokens: int64(o.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if o.Temperature != nil {
		params.Temperature = anthropic.Float(min(*o.Temperature, 1))
	}
	if o.TopP != nil {
		params.TopP = anthropic.Float(*o.TopP)
	}

	system := o.System
	if o.JSONMode {
		system = strings.TrimSpace(jsonPreamble + "\n" + system)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}
