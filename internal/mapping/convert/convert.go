// Package convert holds the scalar converters that turn Go values into BSON wire values
// and back, plus the string conversions used for map keys.
package convert

import (
	"encoding"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Converter translates between one Go type and its wire representation.
type Converter interface {
	// ToWire returns the wire value for v
	ToWire(v reflect.Value) (any, error)
	// FromWire builds a value of type t from a raw wire value
	FromWire(raw any, t reflect.Type) (reflect.Value, error)
}

// Funcs adapts a pair of functions to the Converter interface.
type Funcs struct {
	To   func(v reflect.Value) (any, error)
	From func(raw any, t reflect.Type) (reflect.Value, error)
}

// ToWire implements Converter
func (f Funcs) ToWire(v reflect.Value) (any, error) {
	return f.To(v)
}

// FromWire implements Converter
func (f Funcs) FromWire(raw any, t reflect.Type) (reflect.Value, error) {
	return f.From(raw, t)
}

var (
	textMarshalerType   = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
	bytesType           = reflect.TypeOf([]byte(nil))
)

// Registry maps Go types to converters. Lookups fall back from the exact type to
// text-marshalling types and finally to the type's kind.
type Registry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]Converter
	byKind map[reflect.Kind]Converter
}

// NewRegistry creates a registry preloaded with the built-in converters
func NewRegistry() *Registry {
	r := &Registry{
		byType: make(map[reflect.Type]Converter),
		byKind: make(map[reflect.Kind]Converter),
	}

	for _, k := range []reflect.Kind{reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64} {
		r.byKind[k] = intConverter{}
	}
	for _, k := range []reflect.Kind{reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64} {
		r.byKind[k] = uintConverter{}
	}
	r.byKind[reflect.Float32] = floatConverter{}
	r.byKind[reflect.Float64] = floatConverter{}
	r.byKind[reflect.Bool] = boolConverter{}
	r.byKind[reflect.String] = stringConverter{}

	r.byType[bytesType] = bytesConverter{}
	r.byType[reflect.TypeOf(time.Time{})] = timeConverter{}
	r.byType[reflect.TypeOf(primitive.ObjectID{})] = objectIDConverter{}
	r.byType[reflect.TypeOf(uuid.UUID{})] = uuidConverter{}
	for _, t := range []reflect.Type{
		reflect.TypeOf(primitive.DateTime(0)),
		reflect.TypeOf(primitive.Decimal128{}),
		reflect.TypeOf(primitive.Binary{}),
		reflect.TypeOf(primitive.Timestamp{}),
		reflect.TypeOf(primitive.Regex{}),
	} {
		r.byType[t] = passthroughConverter{}
	}

	return r
}

// Register installs a converter for an exact type, replacing any existing one
func (r *Registry) Register(t reflect.Type, c Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[t] = c
}

// Lookup returns the converter for t, if any
func (r *Registry) Lookup(t reflect.Type) (Converter, bool) {
	r.mu.RLock()
	c, ok := r.byType[t]
	r.mu.RUnlock()
	if ok {
		return c, true
	}

	if isTextType(t) {
		return textConverter{}, true
	}

	c, ok = r.byKind[t.Kind()]
	return c, ok
}

// Has reports whether a converter exists for t
func (r *Registry) Has(t reflect.Type) bool {
	_, ok := r.Lookup(t)
	return ok
}

// ToWire converts v using the converter registered for its type
func (r *Registry) ToWire(v reflect.Value) (any, error) {
	c, ok := r.Lookup(v.Type())
	if !ok {
		return nil, &ConversionError{Type: v.Type(), Err: ErrNoConverter}
	}
	raw, err := c.ToWire(v)
	if err != nil {
		return nil, wrap(v.Type(), v.Interface(), err)
	}
	return raw, nil
}

// FromWire converts raw into a value of type t
func (r *Registry) FromWire(raw any, t reflect.Type) (reflect.Value, error) {
	c, ok := r.Lookup(t)
	if !ok {
		return reflect.Value{}, &ConversionError{Type: t, Value: raw, Err: ErrNoConverter}
	}
	if raw == nil {
		return reflect.Zero(t), nil
	}
	v, err := c.FromWire(raw, t)
	if err != nil {
		return reflect.Value{}, wrap(t, raw, err)
	}
	return v, nil
}

func isTextType(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer || t.Kind() == reflect.Interface {
		return false
	}
	return t.Implements(textMarshalerType) && reflect.PointerTo(t).Implements(textUnmarshalerType)
}

func wrap(t reflect.Type, value any, err error) error {
	if _, ok := err.(*ConversionError); ok {
		return err
	}
	return &ConversionError{Type: t, Value: value, Err: err}
}

func mismatch(raw any, t reflect.Type) error {
	return fmt.Errorf("cannot convert %T to %s", raw, t)
}
