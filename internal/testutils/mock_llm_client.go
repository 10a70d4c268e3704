// Package testutils holds deterministic stand-ins for the external services
// the summarizer talks to: an LLM provider and the remote inference server.
package testutils

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/tomtat/tomtat/internal/ports"
)

// MockResponse is a canned answer returned when a prompt contains Pattern.
// An empty Pattern matches every prompt.
type MockResponse struct {
	Pattern  string
	Response string
	Err      error
}

// Call is one recorded Complete invocation.
type Call struct {
	Prompt  string
	Options map[string]any
}

// MockLLMClient implements ports.LLMClient with scripted responses. Patterns
// are tried in the order they were added; the first substring match wins.
type MockLLMClient struct {
	mu        sync.Mutex
	model     string
	responses []MockResponse
	calls     []Call
}

// NewMockLLMClient creates a client reporting model from GetModel.
func NewMockLLMClient(model string, responses ...MockResponse) *MockLLMClient {
	return &MockLLMClient{model: model, responses: responses}
}

// AddResponse appends a response pattern.
func (m *MockLLMClient) AddResponse(r MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, r)
}

// Complete returns the first matching canned response.
func (m *MockLLMClient) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if prompt == "" {
		return "", errors.New("prompt cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Prompt: prompt, Options: options})
	for _, r := range m.responses {
		if r.Pattern == "" || strings.Contains(prompt, r.Pattern) {
			return r.Response, r.Err
		}
	}
	return "", errors.New("mock llm: no response scripted for prompt")
}

// EstimateTokens approximates four bytes per token.
func (m *MockLLMClient) EstimateTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return max(len(text)/4, 1), nil
}

func (m *MockLLMClient) GetModel() string { return m.model }

// Calls returns a copy of the recorded invocations.
func (m *MockLLMClient) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// LastCall returns the most recent invocation, or the zero Call.
func (m *MockLLMClient) LastCall() Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return Call{}
	}
	return m.calls[len(m.calls)-1]
}

var _ ports.LLMClient = (*MockLLMClient)(nil)
