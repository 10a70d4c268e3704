package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIDefaultModel is used when no OpenAI model is configured.
const OpenAIDefaultModel = "gpt-4o-mini"

type openAIProvider struct {
	client *openai.Client
	model  string
}

func newOpenAIProvider(cfg ClientConfig) (CoreLLM, error) {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &openAIProvider{client: openai.NewClientWithConfig(oc), model: cfg.Model}, nil
}

func (p *openAIProvider) Provider() string { return "openai" }

func (p *openAIProvider) GetModel() string { return p.model }

func (p *openAIProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	o := parseOptions(opts, p.model)

	resp, err := p.client.CreateChatCompletion(ctx, chatRequest(prompt, o))
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", 0, 0, classifyStatus("openai", apiErr.HTTPStatusCode, apiErr.Message, err)
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return "", 0, 0, classifyStatus("openai", reqErr.HTTPStatusCode, http.StatusText(reqErr.HTTPStatusCode), err)
		}
		return "", 0, 0, classifyTransport("openai", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", 0, 0, &ProviderError{Type: ErrorTypeUnknown, Provider: "openai", Message: "no choices in response", Err: ErrEmptyResponse}
	}

	content := resp.Choices[0].Message.Content
	in, out := resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	if in == 0 {
		in = RuneEstimator{}.EstimateTokens(prompt)
	}
	if out == 0 {
		out = RuneEstimator{}.EstimateTokens(content)
	}
	return content, in, out, nil
}

func chatRequest(prompt string, o requestOptions) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if o.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: o.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	req := openai.ChatCompletionRequest{
		Model:     o.Model,
		Messages:  messages,
		MaxTokens: o.MaxTokens,
	}
	if o.Temperature != nil {
		req.Temperature = float32(*o.Temperature)
	}
	if o.TopP != nil {
		req.TopP = float32(*o.TopP)
	}
	if o.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return req
}
