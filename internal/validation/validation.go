package validation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/zonia3000/regifair/internal/domain/event"
)

// FieldError is an expected per-field validation failure with a message
// meant for the submitter.
type FieldError struct {
	Message string
}

func (e *FieldError) Error() string {
	return e.Message
}

func fieldErrorf(format string, args ...any) *FieldError {
	return &FieldError{Message: fmt.Sprintf(format, args...)}
}

var validate = validator.New()

// Validate checks a single submitted value against its field definition.
// A nil return means the value passed. Optional fields accept empty values
// and skip the type-specific checks.
func Validate(f event.FormField, value any) error {
	if isEmpty(value) {
		if f.Required {
			return &FieldError{Message: "Required field"}
		}
		return nil
	}

	switch f.Type {
	case event.FieldText:
		return validateText(value)
	case event.FieldEmail:
		return validateEmail(value)
	case event.FieldNumber:
		return validateNumber(f, value)
	case event.FieldRadio:
		return validateRadio(f, value)
	case event.FieldPrivacy:
		return validatePrivacy(f, value)
	}

	return fieldErrorf("Unknown field type %q", f.Type)
}

// ValidateSubmission validates a whole positional payload against the active
// fields. The result maps field index to message; an empty map means the
// submission is accepted. The payload is positional, so a value count that
// differs from the field count is rejected outright.
func ValidateSubmission(fields []event.FormField, values []any) map[int]string {
	errs := map[int]string{}

	for i := len(fields); i < len(values); i++ {
		errs[i] = "Invalid number of fields"
	}

	for i, f := range fields {
		if i >= len(values) {
			errs[i] = "Invalid number of fields"
			continue
		}

		if err := Validate(f, values[i]); err != nil {
			errs[i] = err.Error()
		}
	}

	return errs
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	}
	return false
}

func validateText(value any) error {
	_, ok := value.(string)

	if !ok {
		return &FieldError{Message: "The value must be a string"}
	}

	return nil
}

func validateEmail(value any) error {
	s, ok := value.(string)

	if !ok {
		return &FieldError{Message: "The value must be a string"}
	}

	if err := validate.Var(strings.TrimSpace(s), "email"); err != nil {
		return &FieldError{Message: "Invalid email address"}
	}

	return nil
}

func validateNumber(f event.FormField, value any) error {
	n, err := toNumber(value)

	if err != nil {
		return &FieldError{Message: "The value must be a number"}
	}

	ex, ok := f.Extras.(event.NumberExtras)

	if !ok {
		return nil
	}

	if ex.Min != nil && n < *ex.Min {
		return fieldErrorf("The value must be greater than or equal to %s", formatBound(*ex.Min))
	}
	if ex.Max != nil && n > *ex.Max {
		return fieldErrorf("The value must be less than or equal to %s", formatBound(*ex.Max))
	}

	return nil
}

func validateRadio(f event.FormField, value any) error {
	s, ok := value.(string)

	if !ok {
		return &FieldError{Message: "Invalid option"}
	}

	ex, hasOptions := f.Extras.(event.RadioExtras)

	if hasOptions {
		for _, opt := range ex.Options {
			if opt == s {
				return nil
			}
		}
	}

	return &FieldError{Message: "Invalid option"}
}

// validatePrivacy demands consent only on required fields; an optional
// privacy box may stay unchecked.
func validatePrivacy(f event.FormField, value any) error {
	var accepted bool

	switch v := value.(type) {
	case bool:
		accepted = v
	case string:
		accepted = v == "true" || v == "1"
	default:
		return &FieldError{Message: "The privacy policy must be accepted"}
	}

	if !accepted && f.Required {
		return &FieldError{Message: "The privacy policy must be accepted"}
	}

	return nil
}

func toNumber(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	}
	return 0, fmt.Errorf("not a number")
}

func formatBound(b float64) string {
	return strconv.FormatFloat(b, 'f', -1, 64)
}

// Stringify converts an accepted submission value to its stored text form.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
