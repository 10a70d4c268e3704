package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tomtat/tomtat/internal/auth"
	"github.com/tomtat/tomtat/internal/batch"
	"github.com/tomtat/tomtat/internal/domain"
	"github.com/tomtat/tomtat/internal/judge"
	"github.com/tomtat/tomtat/internal/ports"
)

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Error     string   `json:"error"`
	Details   []string `json:"details,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

var requestValidate = newRequestValidator()

// newRequestValidator reports fields by their JSON (or form) names.
func newRequestValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		verr   *domain.ValidationError
		maxErr *http.MaxBytesError
	)
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &verr),
		errors.Is(err, domain.ErrLengthMismatch),
		errors.Is(err, domain.ErrMissingColumn),
		errors.Is(err, domain.ErrUnsupportedModel),
		errors.Is(err, domain.ErrUnsupportedFormat),
		errors.Is(err, domain.ErrEmptyText),
		errors.Is(err, batch.ErrNoHeader),
		errors.Is(err, batch.ErrUnreadableFile):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ports.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ports.ErrGatewayTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ports.ErrServiceUnavailable), errors.Is(err, judge.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ports.ErrUpstream), errors.Is(err, ports.ErrInvalidResponse):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error(), RequestID: RequestID(r.Context())}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		body.Details = verr.Errors
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("request_id", body.RequestID),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		body.Error = http.StatusText(status)
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeJSON(w, status, body)
}

// decodeJSON reads a JSON body into dst and validates it. Malformed bodies
// and failed constraints become *domain.ValidationError.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		verr := domain.NewValidationError("request body")
		if errors.Is(err, io.EOF) {
			verr.AddError("body is required")
		} else {
			verr.AddError(err.Error())
		}
		return verr
	}
	return validateRequest(dst)
}

func validateRequest(v any) error {
	err := requestValidate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	verr := domain.NewValidationError("request")
	for _, fe := range fieldErrs {
		verr.AddError(describe(fe))
	}
	return verr
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "min", "max", "oneof":
		return fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}

func invalid(entity, msg string) error {
	verr := domain.NewValidationError(entity)
	verr.AddError(msg)
	return verr
}
