package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"

	"github.com/tomtat/tomtat/internal/ports"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status    int
		wantType  ErrorType
		sentinel  error
		retryable bool
	}{
		{401, ErrorTypeAuthentication, ports.ErrUpstream, false},
		{403, ErrorTypeAuthentication, ports.ErrUpstream, false},
		{400, ErrorTypeBadRequest, ports.ErrUpstream, false},
		{404, ErrorTypeNotFound, ports.ErrUpstream, false},
		{422, ErrorTypeBadRequest, ports.ErrUpstream, false},
		{429, ErrorTypeRateLimit, ports.ErrRateLimited, true},
		{500, ErrorTypeServerError, ports.ErrServiceUnavailable, true},
		{503, ErrorTypeServerError, ports.ErrServiceUnavailable, true},
		{504, ErrorTypeTimeout, ports.ErrGatewayTimeout, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			cause := errors.New("cause")
			err := classifyStatus("openai", tt.status, "msg", cause)
			assert.Equal(t, tt.wantType, err.Type)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.ErrorIs(t, err, cause)
			assert.Equal(t, tt.retryable, err.IsRetryable())
			assert.Contains(t, err.Error(), fmt.Sprintf("openai error (HTTP %d) [%s]: msg", tt.status, tt.wantType))
		})
	}
}

type timeoutNetErr struct{ timeout bool }

func (e timeoutNetErr) Error() string   { return "net" }
func (e timeoutNetErr) Timeout() bool   { return e.timeout }
func (e timeoutNetErr) Temporary() bool { return false }

var _ net.Error = timeoutNetErr{}

func TestClassifyTransport(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType ErrorType
	}{
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), ErrorTypeTimeout},
		{"canceled", context.Canceled, ErrorTypeCanceled},
		{"net timeout", timeoutNetErr{timeout: true}, ErrorTypeTimeout},
		{"net failure", &net.OpError{Op: "dial", Err: errors.New("refused")}, ErrorTypeNetwork},
		{"other", errors.New("weird"), ErrorTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, classifyTransport("p", tt.err).Type)
		})
	}
}

func TestCanceledHasNoSentinel(t *testing.T) {
	err := classifyTransport("p", context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ports.ErrUpstream)
	assert.NotErrorIs(t, err, ports.ErrServiceUnavailable)
}

func TestClassifyGoogleError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType ErrorType
	}{
		{"quota", &googleapi.Error{Code: 429, Message: "quota"}, ErrorTypeRateLimit},
		{"safety", &googleapi.Error{Code: 400, Message: "Request blocked by SAFETY settings"}, ErrorTypeContentPolicy},
		{"bad request", &googleapi.Error{Code: 400, Errors: []googleapi.ErrorItem{{Message: "bad field"}}}, ErrorTypeBadRequest},
		{"deadline", context.DeadlineExceeded, ErrorTypeTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pe *ProviderError
			err := classifyGoogleError(tt.err)
			assert.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.wantType, pe.Type)
			assert.Equal(t, "google", pe.Provider)
		})
	}
}
