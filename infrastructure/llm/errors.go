package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/tomtat/tomtat/internal/ports"
)

var (
	// ErrEmptyResponse means the provider answered without any text.
	ErrEmptyResponse = errors.New("empty response from provider")

	// ErrCircuitOpen is returned without calling the provider while the
	// circuit breaker is open. It matches ports.ErrServiceUnavailable.
	ErrCircuitOpen = fmt.Errorf("circuit breaker is open: %w", ports.ErrServiceUnavailable)
)

// ErrorType classifies provider failures.
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeAuthentication
	ErrorTypeRateLimit
	ErrorTypeBadRequest
	ErrorTypeNotFound
	ErrorTypeServerError
	ErrorTypeContentPolicy
	ErrorTypeNetwork
	ErrorTypeTimeout
	ErrorTypeCanceled
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeAuthentication:
		return "authentication"
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeBadRequest:
		return "bad_request"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeServerError:
		return "server_error"
	case ErrorTypeContentPolicy:
		return "content_policy"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// ProviderError is the normalized failure of a provider call. It unwraps to
// both the provider's own error and the ports sentinel for its type, so the
// HTTP layer can map it with errors.Is.
type ProviderError struct {
	Type       ErrorType
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Provider + " error"
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	msg += " [" + e.Type.String() + "]"
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *ProviderError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (e *ProviderError) sentinel() error {
	switch e.Type {
	case ErrorTypeRateLimit:
		return ports.ErrRateLimited
	case ErrorTypeServerError, ErrorTypeNetwork:
		return ports.ErrServiceUnavailable
	case ErrorTypeTimeout:
		return ports.ErrGatewayTimeout
	case ErrorTypeCanceled:
		return nil
	default:
		return ports.ErrUpstream
	}
}

// IsRetryable reports whether the same request may succeed later.
func (e *ProviderError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeNetwork, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// isRetryable reports whether err, anywhere in its chain, is a retryable
// ProviderError.
func isRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.IsRetryable()
}

func classifyStatus(provider string, status int, message string, err error) *ProviderError {
	var typ ErrorType
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		typ = ErrorTypeAuthentication
	case status == http.StatusTooManyRequests:
		typ = ErrorTypeRateLimit
	case status == http.StatusNotFound:
		typ = ErrorTypeNotFound
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		typ = ErrorTypeTimeout
	case status >= 500:
		typ = ErrorTypeServerError
	case status >= 400:
		typ = ErrorTypeBadRequest
	default:
		typ = ErrorTypeUnknown
	}
	return &ProviderError{Type: typ, Provider: provider, StatusCode: status, Message: message, Err: err}
}

// classifyTransport handles failures that never produced an HTTP status.
func classifyTransport(provider string, err error) *ProviderError {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ProviderError{Type: ErrorTypeTimeout, Provider: provider, Message: "deadline exceeded", Err: err}
	case errors.Is(err, context.Canceled):
		return &ProviderError{Type: ErrorTypeCanceled, Provider: provider, Message: "request canceled", Err: err}
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return &ProviderError{Type: ErrorTypeTimeout, Provider: provider, Message: "network timeout", Err: err}
		}
		return &ProviderError{Type: ErrorTypeNetwork, Provider: provider, Message: "network failure", Err: err}
	default:
		return &ProviderError{Type: ErrorTypeUnknown, Provider: provider, Message: "request failed", Err: err}
	}
}
