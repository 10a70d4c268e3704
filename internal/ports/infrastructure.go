package ports

import (
	"context"
	"time"
)

// LLMClient defines the interface for interacting with Large Language
// Model providers. The AI judge uses it to compare summaries.
// Implementations should handle provider-specific details like authentication,
// request formatting, and response parsing.
type LLMClient interface {
	// Complete sends a completion request to the LLM provider.
	// It returns the generated text and any error encountered.
	//
	// The options map allows flexibility for different providers without
	// changing the interface. Common options include:
	//   - "temperature": float64 (0.0-1.0)
	//   - "max_tokens": int
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// EstimateTokens calculates the approximate token count for a given text.
	EstimateTokens(text string) (int, error)

	// GetModel returns the model identifier being used by this client.
	GetModel() string
}

// SummarizeRequest is the payload sent to the remote inference server.
type SummarizeRequest struct {
	Text                  string   `json:"text"`
	Model                 string   `json:"model"`
	MaxLength             int      `json:"max_length"`
	PreprocessedSentences []string `json:"preprocessed_sentences,omitempty"`
}

// SummarizeResponse is the raw answer of the remote inference server.
type SummarizeResponse struct {
	Summary         string  `json:"summary"`
	InferenceTimeMs float64 `json:"inference_time_ms"`
	ModelUsed       string  `json:"model_used"`
}

// InferenceHealth reports whether the remote inference server is reachable.
type InferenceHealth struct {
	Status       string `json:"status"`
	URL          string `json:"inference_url,omitempty"`
	GPUAvailable bool   `json:"gpu_available"`
	Error        string `json:"error,omitempty"`
}

// Summarizer is the remote model server that performs the actual
// summarization. Implementations translate transport failures into
// ErrServiceUnavailable, ErrGatewayTimeout and *UpstreamError.
type Summarizer interface {
	// Summarize runs one inference request.
	Summarize(ctx context.Context, req SummarizeRequest) (SummarizeResponse, error)

	// Health checks the server. It never returns an error; failures are
	// reported in the Status and Error fields.
	Health(ctx context.Context) InferenceHealth
}

// TokenEmbedder produces contextual token embeddings for raw texts.
// The result holds one matrix per input text, one row per token.
type TokenEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][][]float32, error)
}

// CacheStore defines the interface for caching summarization results.
// Caching is optional; a miss or a failing cache never fails a request.
type CacheStore interface {
	// Get retrieves a cached value by key.
	// Returns the value and true if found, or nil and false if not found.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value in the cache with an expiration time.
	// A zero duration means the item doesn't expire.
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error

	// Delete removes a value from the cache.
	// Returns nil if the key doesn't exist.
	Delete(ctx context.Context, key string) error

	// Clear removes all values written by this store.
	Clear(ctx context.Context) error
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus,
// OpenTelemetry, or custom monitoring solutions.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	// This is useful for tracking events like cache hits/misses, errors, etc.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	// This is useful for tracking distributions like scores.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
