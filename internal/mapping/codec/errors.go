package codec

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/conduit-lang/docmap/internal/store"
)

var (
	// ErrReferenceNotFound is returned when a referenced document is absent
	ErrReferenceNotFound = errors.New("referenced document not found")

	// ErrUnknownDiscriminator is returned when a document names no registered type
	ErrUnknownDiscriminator = errors.New("unknown discriminator")

	// ErrAccess is matched by every AccessError
	ErrAccess = errors.New("field access failed")

	// ErrNoStore is returned when a reference must be fetched but no store is configured
	ErrNoStore = errors.New("no document store configured")

	// ErrNullIdentity is returned when a referenced entity or saved key has a zero identity
	ErrNullIdentity = errors.New("entity has no identity value")

	// ErrNoIdentityField is returned when a type without identity field is referenced
	ErrNoIdentityField = errors.New("type has no identity field")

	// ErrUnresolvable is returned by Ref.Get on references built without a resolver
	ErrUnresolvable = errors.New("reference has no resolver")

	// ErrEmbeddedCycle is returned when embedded values form a loop
	ErrEmbeddedCycle = errors.New("embedded value cycle")

	// ErrMalformedDocument is returned when a wire value has the wrong shape
	ErrMalformedDocument = errors.New("malformed document")
)

// ReferenceError reports a reference whose target is missing
type ReferenceError struct {
	Field string
	Key   store.Key
}

// Error implements the error interface
func (e *ReferenceError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("referenced document %s not found", e.Key)
	}
	return fmt.Sprintf("field %s: referenced document %s not found", e.Field, e.Key)
}

// Is matches ErrReferenceNotFound
func (e *ReferenceError) Is(target error) bool {
	return target == ErrReferenceNotFound
}

// AccessError wraps a failure reading or writing a field through reflection
type AccessError struct {
	Type  reflect.Type
	Cause error
}

// Error implements the error interface
func (e *AccessError) Error() string {
	if e.Type == nil {
		return fmt.Sprintf("field access failed: %v", e.Cause)
	}
	return fmt.Sprintf("field access failed on %s: %v", e.Type, e.Cause)
}

// Unwrap returns the underlying cause
func (e *AccessError) Unwrap() error {
	return e.Cause
}

// Is matches ErrAccess
func (e *AccessError) Is(target error) bool {
	return target == ErrAccess
}

// IsReferenceNotFound returns true if the error is a missing reference
func IsReferenceNotFound(err error) bool {
	return errors.Is(err, ErrReferenceNotFound)
}

// recoverAccess turns reflection panics into AccessErrors
func recoverAccess(t reflect.Type, err *error) {
	if r := recover(); r != nil {
		cause, ok := r.(error)
		if !ok {
			cause = fmt.Errorf("%v", r)
		}
		*err = &AccessError{Type: t, Cause: cause}
	}
}

func fieldError(model reflect.Type, field string, err error) error {
	return fmt.Errorf("%s.%s: %w", model, field, err)
}
