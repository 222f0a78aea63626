package schema

import (
	"reflect"
	"unsafe"
)

// Value returns the settable field value inside the struct ptr points to. Nil embedded
// struct pointers on the way are allocated.
func (f *Field) Value(ptr reflect.Value) reflect.Value {
	v, _ := f.locate(ptr.Elem(), true)
	return v
}

// Peek returns the field value without allocating. ok is false when the field sits
// behind a nil embedded pointer.
func (f *Field) Peek(ptr reflect.Value) (reflect.Value, bool) {
	return f.locate(ptr.Elem(), false)
}

// Get returns the field value of entity, which must be a pointer to the model's type
func (f *Field) Get(entity any) any {
	v, ok := f.Peek(reflect.ValueOf(entity))
	if !ok {
		return reflect.Zero(f.Type).Interface()
	}
	return v.Interface()
}

// Set assigns value to the field of entity, which must be a pointer to the model's type
func (f *Field) Set(entity any, value any) {
	fv := f.Value(reflect.ValueOf(entity))
	if value == nil {
		fv.Set(reflect.Zero(f.Type))
		return
	}
	fv.Set(reflect.ValueOf(value))
}

func (f *Field) locate(v reflect.Value, alloc bool) (reflect.Value, bool) {
	last := len(f.path) - 1
	for i, s := range f.path {
		fv := v.Field(s.index)
		if !s.exported {
			fv = reflect.NewAt(fv.Type(), unsafe.Pointer(fv.UnsafeAddr())).Elem()
		}
		if i < last && fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				if !alloc {
					return reflect.Value{}, false
				}
				fv.Set(reflect.New(fv.Type().Elem()))
			}
			fv = fv.Elem()
		}
		v = fv
	}
	return v, true
}
