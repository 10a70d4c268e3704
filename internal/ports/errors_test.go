package ports

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestLLMError tests message formatting and retry classification.
func TestLLMError(t *testing.T) {
	t.Run("basic error", func(t *testing.T) {
		err := NewLLMError("gemini-2.0-flash", "Complete", ErrInvalidResponse)

		assert.Equal(t, "LLM error: model=gemini-2.0-flash, operation=Complete, err=invalid response", err.Error())
		assert.True(t, errors.Is(err, ErrInvalidResponse))
	})

	t.Run("with retry after", func(t *testing.T) {
		retryAfter := 30 * time.Second
		err := &LLMError{Model: "gpt-4o-mini", Operation: "Complete", Err: ErrRateLimited, RetryAfter: &retryAfter}

		assert.Contains(t, err.Error(), "retry_after=30s")
	})

	t.Run("retryable errors", func(t *testing.T) {
		for _, baseErr := range []error{ErrRateLimited, ErrServiceUnavailable, ErrGatewayTimeout} {
			assert.True(t, NewLLMError("m", "Test", baseErr).IsRetryable(), "%v should be retryable", baseErr)
		}
		for _, baseErr := range []error{ErrInvalidResponse, ErrUpstream} {
			assert.False(t, NewLLMError("m", "Test", baseErr).IsRetryable(), "%v should not be retryable", baseErr)
		}
	})
}

func TestUpstreamError(t *testing.T) {
	err := fmt.Errorf("summarize: %w", &UpstreamError{StatusCode: 500, Body: "CUDA out of memory"})

	assert.True(t, errors.Is(err, ErrUpstream))
	assert.Contains(t, err.Error(), "inference server error 500: CUDA out of memory")

	var upErr *UpstreamError
	assert.True(t, errors.As(err, &upErr))
	assert.Equal(t, 500, upErr.StatusCode)
}

func TestCacheError(t *testing.T) {
	err := NewCacheError("summary:abc", "Get", errors.New("connection refused"))

	assert.Equal(t, "cache error: operation=Get, key=summary:abc, err=connection refused", err.Error())
	assert.Equal(t, "connection refused", errors.Unwrap(err).Error())
}

func TestConfigError(t *testing.T) {
	err := NewConfigError("jwt.secret", ErrConfigNotFound)

	assert.Equal(t, "config error: key=jwt.secret, err=configuration not found", err.Error())
	assert.True(t, errors.Is(err, ErrConfigNotFound))
}
