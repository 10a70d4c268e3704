package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrorsUnwrap(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		target  error
		wantMsg string
	}{
		{
			name:    "unsupported model",
			err:     &UnsupportedModelError{Key: "made_up_model"},
			target:  ErrUnsupportedModel,
			wantMsg: `unsupported model: "made_up_model"`,
		},
		{
			name:    "length mismatch",
			err:     &LengthMismatchError{Predictions: 3, References: 2},
			target:  ErrLengthMismatch,
			wantMsg: "predictions and references must have the same length: predictions=3, references=2",
		},
		{
			name:    "missing column",
			err:     &MissingColumnError{Column: "text", Available: []string{"content", "summary"}},
			target:  ErrMissingColumn,
			wantMsg: "column 'text' not found. Available columns: [content, summary]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
			assert.True(t, errors.Is(tt.err, tt.target), "Should unwrap to sentinel")
		})
	}
}

func TestValidationError(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		err := NewValidationError("SummarizeRequest")
		err.AddError("text is required")

		assert.Equal(t, "validation error for SummarizeRequest: text is required", err.Error())
		assert.True(t, err.HasErrors())
		assert.Len(t, err.Errors, 1)
	})

	t.Run("multiple errors", func(t *testing.T) {
		err := NewValidationError("BatchRequest")
		err.AddError("model is invalid")
		err.AddError("max_length out of range")

		assert.Contains(t, err.Error(), "validation errors for BatchRequest")
		assert.Len(t, err.Errors, 2)
	})

	t.Run("no errors", func(t *testing.T) {
		err := NewValidationError("Config")

		assert.False(t, err.HasErrors())
		assert.Empty(t, err.Errors)
	})
}
