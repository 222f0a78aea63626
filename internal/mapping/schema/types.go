// Package schema discovers and caches the mapping metadata of Go struct types: the
// stored collection name, the ordered field descriptors, the identity field and the
// lifecycle hooks.
package schema

import (
	"reflect"

	"github.com/conduit-lang/docmap/internal/mapping/hooks"
)

// IdentityKey is the reserved document key holding an entity's identity
const IdentityKey = "_id"

// MappingKind selects the codec a field is written and read with
type MappingKind int

const (
	MappingIdentity MappingKind = iota
	MappingValue
	MappingEmbedded
	MappingReference
	MappingSerialized
)

// String returns the string representation of the mapping kind
func (k MappingKind) String() string {
	switch k {
	case MappingIdentity:
		return "identity"
	case MappingValue:
		return "value"
	case MappingEmbedded:
		return "embedded"
	case MappingReference:
		return "reference"
	case MappingSerialized:
		return "serialized"
	default:
		return "unknown"
	}
}

// ValueKind describes the shape of a field's value
type ValueKind int

const (
	KindSingle ValueKind = iota
	KindList
	KindSet
	KindMap
	KindArray
)

// String returns the string representation of the value kind
func (k ValueKind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	case KindMap:
		return "map"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// IsMultiValued returns true for lists, sets, maps and arrays
func (k ValueKind) IsMultiValued() bool {
	return k != KindSingle
}

// LazyReference is implemented by reference holders that resolve on first access.
// LazyTarget returns the struct type the reference points to.
type LazyReference interface {
	LazyTarget() reflect.Type
}

var lazyReferenceType = reflect.TypeOf((*LazyReference)(nil)).Elem()

// IsLazyReference reports whether t is a lazy reference holder
func IsLazyReference(t reflect.Type) bool {
	return t.Kind() != reflect.Interface && t.Implements(lazyReferenceType)
}

// LazyTarget returns the target struct type of a lazy reference holder type
func LazyTarget(t reflect.Type) reflect.Type {
	return reflect.Zero(t).Interface().(LazyReference).LazyTarget()
}

// TypeModel is the cached mapping metadata of one struct type. It is never mutated
// after the registry publishes it.
type TypeModel struct {
	Type            reflect.Type
	Collection      string
	Discriminator   string
	NoDiscriminator bool

	// Fields in declaration order, promoted fields of embedded structs inline
	Fields   []*Field
	Identity *Field

	Hooks *hooks.Registry

	byKey map[string]*Field
}

// Field returns the field stored under key
func (m *TypeModel) Field(key string) (*Field, bool) {
	f, ok := m.byKey[key]
	return f, ok
}

// FieldByName returns the field with the given Go name
func (m *TypeModel) FieldByName(name string) (*Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// New allocates a zero instance and returns a pointer to it
func (m *TypeModel) New() reflect.Value {
	return reflect.New(m.Type)
}

// Field describes how one struct field is stored
type Field struct {
	// Name is the Go field name, Key the stored document key
	Name string
	Key  string

	Type      reflect.Type
	ValueKind ValueKind
	ElemType  reflect.Type
	KeyType   reflect.Type
	Mapping   MappingKind

	Lazy          bool
	IDOnly        bool
	IgnoreMissing bool
	Dynamic       bool
	Final         bool

	path []step
}

type step struct {
	index    int
	exported bool
}
