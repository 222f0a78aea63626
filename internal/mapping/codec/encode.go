package codec

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/conduit-lang/docmap/internal/mapping/convert"
	"github.com/conduit-lang/docmap/internal/mapping/hooks"
	"github.com/conduit-lang/docmap/internal/mapping/schema"
)

type visitKey struct {
	addr uintptr
	t    reflect.Type
}

// encodeState carries one Encode call
type encodeState struct {
	ctx      context.Context
	mapper   *Mapper
	visiting map[visitKey]bool
}

// encodeEntity writes the struct ptr points to. declared is the static type the value
// was found under, nil for the top-level entity.
func (s *encodeState) encodeEntity(ptr reflect.Value, declared reflect.Type) (bson.D, error) {
	m := s.mapper
	model, err := m.registry.GetOrCreate(ptr.Type())
	if err != nil {
		return nil, err
	}

	vk := visitKey{addr: ptr.Pointer(), t: model.Type}
	if s.visiting[vk] {
		return nil, fmt.Errorf("%s: %w", model.Type, ErrEmbeddedCycle)
	}
	s.visiting[vk] = true
	defer delete(s.visiting, vk)

	doc := bson.D{}
	if s.writeDiscriminator(model, declared) {
		doc = append(doc, bson.E{Key: m.options.DiscriminatorKey, Value: model.Discriminator})
	}

	entity := ptr.Interface()
	doc, err = m.dispatcher.Fire(s.ctx, hooks.PrePersist, model.Hooks, entity, doc)
	if err != nil {
		return nil, err
	}

	for _, f := range model.Fields {
		doc, err = s.encodeField(doc, f, ptr)
		if err != nil {
			return nil, fieldError(model.Type, f.Name, err)
		}
	}

	return m.dispatcher.Fire(s.ctx, hooks.PreSave, model.Hooks, entity, doc)
}

// writeDiscriminator decides whether the discriminator is written. Top-level entities
// always carry it; nested values only when their runtime type differs from the
// declared one.
func (s *encodeState) writeDiscriminator(model *schema.TypeModel, declared reflect.Type) bool {
	if model.NoDiscriminator {
		return false
	}
	if declared == nil {
		return true
	}
	for declared.Kind() == reflect.Pointer {
		declared = declared.Elem()
	}
	return declared != model.Type
}

func (s *encodeState) encodeField(doc bson.D, f *schema.Field, ptr reflect.Value) (bson.D, error) {
	opts := s.mapper.options

	fv, ok := f.Peek(ptr)
	if !ok {
		if opts.StoreNulls {
			doc = append(doc, bson.E{Key: f.Key, Value: nil})
		}
		return doc, nil
	}

	var (
		raw any
		err error
	)
	switch f.Mapping {
	case schema.MappingIdentity:
		if fv.IsZero() {
			return doc, nil
		}
		raw, err = s.mapper.converters.ToWire(fv)
	case schema.MappingReference:
		raw, err = s.encodeReference(f, fv)
	case schema.MappingSerialized:
		raw, err = serialize(fv)
	default:
		raw, err = s.encodeValue(fv, f.Type)
	}
	if err != nil {
		return nil, err
	}

	if raw == nil {
		if opts.StoreNulls {
			doc = append(doc, bson.E{Key: f.Key, Value: nil})
		}
		return doc, nil
	}
	if f.ValueKind.IsMultiValued() && isEmpty(raw) && !opts.StoreEmpties {
		return doc, nil
	}

	return append(doc, bson.E{Key: f.Key, Value: raw}), nil
}

// encodeValue converts v into its wire form. Nil pointers and interfaces become nil;
// nil slices and maps become empty containers.
func (s *encodeState) encodeValue(v reflect.Value, declared reflect.Type) (any, error) {
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Pointer && v.IsNil() {
		return nil, nil
	}

	converters := s.mapper.converters
	t := v.Type()
	if converters.Has(t) {
		return converters.ToWire(v)
	}

	switch t.Kind() {
	case reflect.Pointer:
		if converters.Has(t.Elem()) {
			return converters.ToWire(v.Elem())
		}
		if t.Elem().Kind() == reflect.Struct {
			return s.encodeEntity(v, declared)
		}
		return s.encodeValue(v.Elem(), elemOf(declared))

	case reflect.Struct:
		if v.CanAddr() {
			return s.encodeEntity(v.Addr(), declared)
		}
		ptr := reflect.New(t)
		ptr.Elem().Set(v)
		return s.encodeEntity(ptr, declared)

	case reflect.Slice, reflect.Array:
		arr := make(bson.A, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			raw, err := s.encodeValue(v.Index(i), t.Elem())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr = append(arr, raw)
		}
		return arr, nil

	case reflect.Map:
		if t.Elem() == emptyStruct {
			return s.encodeSet(v)
		}
		keys, err := sortedKeys(v)
		if err != nil {
			return nil, err
		}
		doc := make(bson.D, 0, len(keys))
		for _, k := range keys {
			raw, err := s.encodeValue(v.MapIndex(k.value), t.Elem())
			if err != nil {
				return nil, fmt.Errorf("[%s]: %w", k.name, err)
			}
			doc = append(doc, bson.E{Key: k.name, Value: raw})
		}
		return doc, nil

	default:
		return nil, &convert.ConversionError{Type: t, Value: v.Interface(), Err: convert.ErrNoConverter}
	}
}

// encodeSet writes the keys of a set as a sequence, in key order
func (s *encodeState) encodeSet(v reflect.Value) (any, error) {
	keys, err := sortedKeys(v)
	if err != nil {
		return nil, err
	}
	arr := make(bson.A, 0, len(keys))
	for _, k := range keys {
		raw, err := s.encodeValue(k.value, v.Type().Key())
		if err != nil {
			return nil, fmt.Errorf("[%s]: %w", k.name, err)
		}
		arr = append(arr, raw)
	}
	return arr, nil
}

type mapKey struct {
	name  string
	value reflect.Value
}

func sortedKeys(v reflect.Value) ([]mapKey, error) {
	keys := make([]mapKey, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		name, err := convert.KeyString(iter.Key())
		if err != nil {
			return nil, err
		}
		keys = append(keys, mapKey{name: name, value: iter.Key()})
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].name < keys[j].name
	})
	return keys, nil
}

// serialize writes v as an opaque binary blob
func serialize(v reflect.Value) (any, error) {
	if (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface || v.Kind() == reflect.Map || v.Kind() == reflect.Slice) && v.IsNil() {
		return nil, nil
	}
	data, err := bson.Marshal(bson.D{{Key: "v", Value: v.Interface()}})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s: %w", v.Type(), err)
	}
	return primitive.Binary{Subtype: 0x00, Data: data}, nil
}

func isEmpty(raw any) bool {
	switch c := raw.(type) {
	case bson.A:
		return len(c) == 0
	case bson.D:
		return len(c) == 0
	default:
		return false
	}
}

func elemOf(t reflect.Type) reflect.Type {
	if t != nil && t.Kind() == reflect.Pointer {
		return t.Elem()
	}
	return t
}

var emptyStruct = reflect.TypeOf(struct{}{})
