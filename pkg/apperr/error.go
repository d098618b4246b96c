package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for handling at the action boundary
type Kind int

const (
	KindInternal Kind = iota
	KindAuth
	KindValidation
	KindConflict
	KindNetwork
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNetwork:
		return "network"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Exit codes used by the CLI
const (
	ExitSuccess    = 0
	ExitGeneral    = 1
	ExitAuth       = 2
	ExitValidation = 3
	ExitConflict   = 4
	ExitNetwork    = 5
	ExitNotFound   = 6
)

// Error codes for programmatic handling
const (
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeNotAuthenticated   = "NOT_AUTHENTICATED"
	CodeForbidden          = "FORBIDDEN"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeNoCapacity         = "NO_CAPACITY"
	CodeAlreadyEnrolled    = "ALREADY_ENROLLED"
	CodeAlreadyAttended    = "ALREADY_ATTENDED"
	CodeNotEnrolled        = "NOT_ENROLLED"
	CodeConflict           = "CONFLICT"
	CodeRequestFailed      = "REQUEST_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeCancelled          = "CANCELLED"
	CodeInternal           = "INTERNAL_ERROR"
)

// FieldError describes one failed client-side field check
type FieldError struct {
	Field   string
	Message string
}

// Error is the structured error surfaced to users
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	Hint      string
	Retryable bool
	Fields    []FieldError
	Status    int // HTTP status when the error came from the backend
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithHint returns a copy of the error carrying a remediation hint
func (e *Error) WithHint(hint string) *Error {
	c := *e
	c.Hint = hint
	return &c
}

// ExitCode maps the error kind to a process exit code
func (e *Error) ExitCode() int {
	switch e.Kind {
	case KindAuth:
		return ExitAuth
	case KindValidation:
		return ExitValidation
	case KindConflict:
		return ExitConflict
	case KindNetwork:
		return ExitNetwork
	case KindNotFound:
		return ExitNotFound
	default:
		return ExitGeneral
	}
}

// Auth creates an authentication error
func Auth(code, message string, err error) *Error {
	return &Error{
		Kind:    KindAuth,
		Code:    code,
		Message: message,
		Hint:    "Run 'login' to start a new session",
		Err:     err,
	}
}

// Validation creates a client-side validation error
func Validation(message string, fields ...FieldError) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeInvalidInput,
		Message: message,
		Fields:  fields,
	}
}

// Conflict creates a conflict error; conflicts are never retried automatically
func Conflict(code, message string) *Error {
	return &Error{
		Kind:    KindConflict,
		Code:    code,
		Message: message,
	}
}

// Network creates a retryable transport or server error
func Network(message string, err error) *Error {
	return &Error{
		Kind:      KindNetwork,
		Code:      CodeRequestFailed,
		Message:   message,
		Retryable: true,
		Err:       err,
	}
}

// NotFound creates an error for a missing resource
func NotFound(message string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    CodeNotFound,
		Message: message,
	}
}

// Internal wraps an unexpected failure
func Internal(message string, err error) *Error {
	return &Error{
		Kind:    KindInternal,
		Code:    CodeInternal,
		Message: message,
		Err:     err,
	}
}

// As extracts the *Error from an error chain
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindInternal if it carries none
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is an *Error of the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HasCode reports whether err is an *Error with the given code
func HasCode(err error, code string) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

// Notice translates err into the short message shown to the user
func Notice(err error) string {
	if err == nil {
		return ""
	}
	e, ok := As(err)
	if !ok {
		return "Something went wrong, please try again"
	}
	switch e.Kind {
	case KindNetwork:
		if e.Message != "" {
			return e.Message + " (you can retry)"
		}
		return "The request failed, please try again"
	case KindValidation:
		if len(e.Fields) == 0 {
			return e.Message
		}
		parts := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			parts = append(parts, f.Message)
		}
		return e.Message + ": " + strings.Join(parts, "; ")
	default:
		return e.Message
	}
}
