package codec

import (
	"context"
	"reflect"

	"github.com/conduit-lang/docmap/internal/store"
)

// Ref is a reference to an entity of type T that is resolved explicitly. T is a struct
// or an interface implemented by registered struct types. A Ref
// is either zero (no reference), resolved (holding the entity) or unresolved (holding
// the key and a resolver). Copies of a Ref share their state, so resolving one copy
// resolves all of them.
//
// Declaring a field as Ref[T], []Ref[T] or map[K]Ref[T] maps it as a lazy reference:
// decoding stores the key without fetching, and Get fetches on first call. Get may
// therefore perform I/O long after the decode call that produced the Ref.
type Ref[T any] struct {
	st *refState
}

type refState struct {
	key      store.Key
	value    reflect.Value
	resolved bool
	err      error
	resolve  func(ctx context.Context) (reflect.Value, error)
}

// reference is the non-generic view of a Ref used by the codec
type reference interface {
	state() *refState
	withState(st *refState) any
}

// NewRef returns a resolved reference to v
func NewRef[T any](v *T) Ref[T] {
	if v == nil {
		return Ref[T]{}
	}
	return Ref[T]{st: &refState{value: reflect.ValueOf(v), resolved: true}}
}

// RefByKey returns an unresolved reference that can be encoded but not resolved
func RefByKey[T any](key store.Key) Ref[T] {
	return Ref[T]{st: &refState{key: key}}
}

// Get resolves the reference on first call and returns the entity. A reference whose
// target is missing but ignorable resolves to nil. The outcome, error included, is
// memoised.
func (r Ref[T]) Get(ctx context.Context) (*T, error) {
	if r.st == nil {
		return nil, nil
	}

	if !r.st.resolved {
		if r.st.resolve == nil {
			return nil, ErrUnresolvable
		}
		r.st.value, r.st.err = r.st.resolve(ctx)
		r.st.resolved = true
		r.st.resolve = nil
	}

	if r.st.err != nil {
		return nil, r.st.err
	}
	if !r.st.value.IsValid() {
		return nil, nil
	}
	if p, ok := r.st.value.Interface().(*T); ok {
		return p, nil
	}

	// T is an interface: box the resolved *X in a fresh *T
	p := new(T)
	slot := reflect.ValueOf(p).Elem()
	v, err := adapt(r.st.value, slot.Type())
	if err != nil {
		return nil, err
	}
	slot.Set(v)
	r.st.value = reflect.ValueOf(p)
	return p, nil
}

// IsZero returns true if r refers to nothing
func (r Ref[T]) IsZero() bool {
	return r.st == nil
}

// IsResolved returns true once the entity has been loaded or was set directly
func (r Ref[T]) IsResolved() bool {
	return r.st != nil && r.st.resolved
}

// Key returns the key of an unresolved reference
func (r Ref[T]) Key() (store.Key, bool) {
	if r.st == nil || r.st.resolved {
		return store.Key{}, false
	}
	return r.st.key, true
}

// LazyTarget returns T; it marks Ref as a lazy reference holder during discovery
func (r Ref[T]) LazyTarget() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func (r Ref[T]) state() *refState {
	return r.st
}

func (r Ref[T]) withState(st *refState) any {
	return Ref[T]{st: st}
}

// newLazyRef builds an unresolved Ref of holder type t for key. Resolution runs as its
// own decode call with a fresh EntityCache.
func (m *Mapper) newLazyRef(t reflect.Type, key store.Key, target reflect.Type, field string, ignoreMissing bool) reflect.Value {
	st := &refState{key: key}
	st.resolve = func(ctx context.Context) (v reflect.Value, err error) {
		defer recoverAccess(target, &err)

		s := m.newDecodeState(ctx)
		instance, found, err := s.resolve(key, target)
		if err != nil {
			return reflect.Value{}, err
		}
		if !found {
			if ignoreMissing {
				return reflect.Value{}, nil
			}
			return reflect.Value{}, &ReferenceError{Field: field, Key: key}
		}
		return instance, nil
	}

	holder := reflect.Zero(t).Interface().(reference).withState(st)
	return reflect.ValueOf(holder)
}
