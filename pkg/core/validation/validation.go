// Package validation runs the client-side form checks. A failed check is an
// apperr validation error and the request never reaches the network.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/jakechorley/volunteer-portal/pkg/apperr"
)

// MinLeadTime is how far in the future a new activity must be scheduled
const MinLeadTime = 24 * time.Hour

// Validator wraps a validator.Validate with the custom tags used by the model
type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

// New creates a Validator using the given clock for date checks
func New(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	v := &Validator{
		validate: validator.New(),
		now:      now,
	}
	// Registration only fails on an empty tag or nil func
	_ = v.validate.RegisterValidation("trimmedlen", trimmedLen)
	_ = v.validate.RegisterValidation("leadtime", v.leadTime)
	return v
}

var defaultValidator = New(nil)

// Struct validates s with the default validator
func Struct(s any, message string) error {
	return defaultValidator.Struct(s, message)
}

// Struct validates s and converts failures into an apperr validation error
// carrying one FieldError per failed field.
func (v *Validator) Struct(s any, message string) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Internal("validation could not run", err)
	}

	fields := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		name := lowerFirst(fe.Field())
		fields = append(fields, apperr.FieldError{
			Field:   name,
			Message: describe(name, fe),
		})
	}
	return apperr.Validation(message, fields...)
}

// trimmedLen checks the length of the trimmed string against "min-max"
func trimmedLen(fl validator.FieldLevel) bool {
	lo, hi, ok := parseRange(fl.Param())
	if !ok {
		return false
	}
	n := utf8.RuneCountInString(strings.TrimSpace(fl.Field().String()))
	return n >= lo && n <= hi
}

func (v *Validator) leadTime(fl validator.FieldLevel) bool {
	t, ok := fl.Field().Interface().(time.Time)
	if !ok {
		return false
	}
	return !t.Before(v.now().Add(MinLeadTime))
}

func parseRange(param string) (int, int, bool) {
	lo, hi, found := strings.Cut(param, "-")
	if !found {
		return 0, 0, false
	}
	lower, err := strconv.Atoi(lo)
	if err != nil {
		return 0, 0, false
	}
	upper, err := strconv.Atoi(hi)
	if err != nil {
		return 0, 0, false
	}
	return lower, upper, true
}

func describe(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "trimmedlen":
		return fmt.Sprintf("%s must be %s characters", field, fe.Param())
	case "leadtime":
		return fmt.Sprintf("%s must be at least %d hours in the future", field, int(MinLeadTime.Hours()))
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must not be negative", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
