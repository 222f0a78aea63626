package schema

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrDiscovery is matched by every DiscoveryError
var ErrDiscovery = errors.New("type discovery failed")

// DiscoveryError reports a type that cannot be mapped
type DiscoveryError struct {
	Type   reflect.Type
	Field  string
	Reason string
}

// Error implements the error interface
func (e *DiscoveryError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("cannot map %s: %s", e.Type, e.Reason)
	}
	return fmt.Sprintf("cannot map %s.%s: %s", e.Type, e.Field, e.Reason)
}

// Is matches ErrDiscovery
func (e *DiscoveryError) Is(target error) bool {
	return target == ErrDiscovery
}

// IsDiscovery returns true if the error is a discovery failure
func IsDiscovery(err error) bool {
	return errors.Is(err, ErrDiscovery)
}

func discoveryErrorf(t reflect.Type, field string, format string, args ...any) error {
	return &DiscoveryError{Type: t, Field: field, Reason: fmt.Sprintf(format, args...)}
}
