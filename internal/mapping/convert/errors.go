package convert

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrConversion is matched by every ConversionError
	ErrConversion = errors.New("conversion failed")

	// ErrNoConverter is returned when no converter is registered for a type
	ErrNoConverter = errors.New("no converter registered")

	// ErrOverflow is returned when a number does not fit the target type
	ErrOverflow = errors.New("value out of range")
)

// ConversionError reports a value a converter rejected
type ConversionError struct {
	Type  reflect.Type
	Value any
	Err   error
}

// Error implements the error interface
func (e *ConversionError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("conversion failed for %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("conversion failed for %s (value %v): %v", e.Type, e.Value, e.Err)
}

// Unwrap returns the underlying cause
func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Is matches ErrConversion
func (e *ConversionError) Is(target error) bool {
	return target == ErrConversion
}

// IsConversion returns true if the error is a conversion failure
func IsConversion(err error) bool {
	return errors.Is(err, ErrConversion)
}
