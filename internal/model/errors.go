package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies caller-input failures.
type ErrorKind string

const (
	KindInvalidParameter ErrorKind = "invalid_parameter"
	KindUnknownBranch    ErrorKind = "unknown_branch"
	KindUnknownShift     ErrorKind = "unknown_shift"
)

// InputError reports invalid caller input. It is the only failure engines
// raise; missing data and degenerate statistics are reported in results.
type InputError struct {
	Kind   ErrorKind
	Field  string
	Value  any
	Reason string
}

func (e *InputError) Error() string {
	if e.Value == nil || e.Value == "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s=%v: %s", e.Kind, e.Field, e.Value, e.Reason)
}

// InvalidParam builds an InputError of kind invalid_parameter.
func InvalidParam(field string, value any, reason string) *InputError {
	return &InputError{Kind: KindInvalidParameter, Field: field, Value: value, Reason: reason}
}

// IsInputError returns true if err (or any error in its chain) is an
// InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// AsInputError extracts the InputError from err's chain.
func AsInputError(err error) (*InputError, bool) {
	var ie *InputError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}
