package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf_WrappedError(t *testing.T) {
	base := Conflict(CodeNoCapacity, "no seats left")
	wrapped := fmt.Errorf("enroll failed: %w", base)

	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindConflict))
	assert.True(t, HasCode(wrapped, CodeNoCapacity))
	assert.False(t, HasCode(wrapped, CodeAlreadyEnrolled))
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.False(t, Is(nil, KindInternal))
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, ExitAuth, Auth(CodeInvalidCredentials, "bad", nil).ExitCode())
	assert.Equal(t, ExitValidation, Validation("bad").ExitCode())
	assert.Equal(t, ExitConflict, Conflict(CodeConflict, "bad").ExitCode())
	assert.Equal(t, ExitNetwork, Network("bad", nil).ExitCode())
	assert.Equal(t, ExitNotFound, NotFound("bad").ExitCode())
	assert.Equal(t, ExitGeneral, Internal("bad", nil).ExitCode())
}

func TestNetwork_IsRetryableAndUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := Network("could not reach the server", cause)

	assert.True(t, err.Retryable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWithHint_DoesNotMutateOriginal(t *testing.T) {
	original := Conflict(CodeNoCapacity, "no seats left")
	hinted := original.WithHint("try another activity")

	assert.Empty(t, original.Hint)
	assert.Equal(t, "try another activity", hinted.Hint)
}

func TestNotice(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", errors.New("x"), "Something went wrong, please try again"},
		{"conflict", Conflict(CodeAlreadyEnrolled, "You are already enrolled"), "You are already enrolled"},
		{"network", Network("Could not enroll", nil), "Could not enroll (you can retry)"},
		{
			"validation",
			Validation("Invalid activity", FieldError{Field: "name", Message: "name must be 5-100 characters"}),
			"Invalid activity: name must be 5-100 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Notice(tt.err))
		})
	}
}

func TestError_MessageIncludesFields(t *testing.T) {
	err := Validation("invalid", FieldError{Field: "capacity", Message: "1-500"})
	require.Len(t, err.Fields, 1)
	assert.Equal(t, "invalid (capacity: 1-500)", err.Error())
}
