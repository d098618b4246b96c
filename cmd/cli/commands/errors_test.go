package commands

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jakechorley/volunteer-portal/pkg/apperr"
	"github.com/jakechorley/volunteer-portal/pkg/core/services"
)

func TestReportError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     int
		contains []string
	}{
		{
			name:     "declined confirmation",
			err:      fmt.Errorf("failed to unenroll: %w", services.ErrDeclined),
			code:     0,
			contains: []string{"Cancelled"},
		},
		{
			name:     "conflict",
			err:      apperr.Conflict(apperr.CodeNoCapacity, "This activity is full"),
			code:     apperr.ExitConflict,
			contains: []string{"This activity is full"},
		},
		{
			name:     "auth with hint",
			err:      apperr.Auth(apperr.CodeNotAuthenticated, "You need to log in first", nil).WithHint("Run: volunteer login"),
			code:     apperr.ExitAuth,
			contains: []string{"You need to log in first", "Run: volunteer login"},
		},
		{
			name:     "validation fields",
			err:      apperr.Validation("Invalid activity", apperr.FieldError{Field: "name", Message: "name is required"}),
			code:     apperr.ExitValidation,
			contains: []string{"Invalid activity: name is required"},
		},
		{
			name:     "plain error",
			err:      errors.New(`unknown flag: --bogus`),
			code:     apperr.ExitGeneral,
			contains: []string{"unknown flag: --bogus"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			assert.Equal(t, tt.code, ReportError(&buf, tt.err))
			for _, s := range tt.contains {
				assert.Contains(t, buf.String(), s)
			}
		})
	}
}

func TestReportError_Nil(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, 0, ReportError(&buf, nil))
	assert.Empty(t, buf.String())
}
