package validation

import (
	"fmt"
	"regexp"
)

var (
	nameConstraint   = `can only contain alphanumeric characters, '-', '_', and '.', must start with an alphanumeric character`
	lengthConstraint = func(i int) string { return fmt.Sprintf("must be between 1-%d characters in length", i) }

	ErrMissingRequiredField = Error("missing required field")
	ErrInvalidValue         = Error("invalid value")
	ErrInvalidID            = Errorf("ids %s, and %s", nameConstraint, lengthConstraint(128))
	ErrInvalidLabelName     = Errorf("label names %s, and %s", nameConstraint, lengthConstraint(64))
	ErrInvalidLabelValue    = Errorf("label values %s, and %s", nameConstraint, lengthConstraint(64))

	idRegex         = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-_.]{0,127}$`)
	labelNameRegex  = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-_./]{0,63}$`)
	labelValueRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-_.]{0,63}$`)
)

type Validator interface {
	Validate() error
}

// Validate runs the object's own validation if it implements Validator.
func Validate(v any) error {
	if validator, ok := v.(Validator); ok {
		return validator.Validate()
	}
	return nil
}

func ValidateID(id string) error {
	if id == "" {
		return ErrMissingRequiredField
	}
	if !idRegex.MatchString(id) {
		return ErrInvalidID
	}
	return nil
}

func ValidateLabels(labels map[string]string) error {
	for k, v := range labels {
		if !labelNameRegex.MatchString(k) {
			return ErrInvalidLabelName
		}
		if !labelValueRegex.MatchString(v) {
			return ErrInvalidLabelValue
		}
	}
	return nil
}
