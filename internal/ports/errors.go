package ports

import (
	"errors"
	"fmt"
	"time"
)

// Failure classes shared by the inference server, LLM judge and cache
// adapters. Handlers map them to HTTP statuses.
var (
	// ErrRateLimited indicates that the service has rate limited the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrServiceUnavailable indicates that the external service could not be
	// reached.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrGatewayTimeout indicates that the external service did not answer
	// within the configured timeout.
	ErrGatewayTimeout = errors.New("gateway timeout")

	// ErrInvalidResponse indicates that the service returned an invalid
	// response.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrUpstream indicates that the external service answered with a
	// non-success status.
	ErrUpstream = errors.New("upstream error")

	// ErrConfigNotFound indicates that required configuration is missing.
	ErrConfigNotFound = errors.New("configuration not found")
)

// UpstreamError carries the status and body of a failed inference call.
type UpstreamError struct {
	// StatusCode is the HTTP status returned by the inference server.
	StatusCode int

	// Body is the raw response body, trimmed.
	Body string
}

// Error implements the error interface for UpstreamError.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("inference server error %d: %s", e.StatusCode, e.Body)
}

// Unwrap returns ErrUpstream.
func (e *UpstreamError) Unwrap() error { return ErrUpstream }

// LLMError wraps a judge provider failure with the model and call site.
type LLMError struct {
	Model     string
	Operation string
	Err       error

	// RetryAfter is set when the provider asked for a backoff.
	RetryAfter *time.Duration
}

func (e *LLMError) Error() string {
	msg := fmt.Sprintf("LLM error: model=%s, operation=%s, err=%v", e.Model, e.Operation, e.Err)
	if e.RetryAfter != nil {
		msg += fmt.Sprintf(", retry_after=%v", *e.RetryAfter)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *LLMError) Unwrap() error { return e.Err }

// IsRetryable reports whether the provider may succeed on a later attempt.
func (e *LLMError) IsRetryable() bool {
	return errors.Is(e.Err, ErrRateLimited) ||
		errors.Is(e.Err, ErrServiceUnavailable) ||
		errors.Is(e.Err, ErrGatewayTimeout)
}

func NewLLMError(model, operation string, err error) *LLMError {
	return &LLMError{
		Model:     model,
		Operation: operation,
		Err:       err,
	}
}

// CacheError is a failed Valkey round trip for a summary key.
type CacheError struct {
	Key       string
	Operation string
	Err       error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache error: operation=%s, key=%s, err=%v", e.Operation, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

func NewCacheError(key, operation string, err error) *CacheError {
	return &CacheError{
		Key:       key,
		Operation: operation,
		Err:       err,
	}
}

// ConfigError points at the config file or key that could not be loaded.
type ConfigError struct {
	ConfigKey string
	Err       error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: key=%s, err=%v", e.ConfigKey, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{
		ConfigKey: key,
		Err:       err,
	}
}
