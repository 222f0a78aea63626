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
	"github.com/conduit-lang/docmap/internal/store"
)

// decodeState carries one Decode call and its entity cache
type decodeState struct {
	ctx    context.Context
	mapper *Mapper
	cache  *EntityCache
}

// decodeEntity populates the struct ptr points to. A top-level entity is registered in
// the cache under its own key before its fields are read, so references back to it
// resolve to ptr.
func (s *decodeState) decodeEntity(doc bson.D, ptr reflect.Value, top bool) error {
	m := s.mapper
	model, err := m.registry.GetOrCreate(ptr.Type())
	if err != nil {
		return err
	}

	if top && model.Identity != nil {
		if id, ok := lookup(doc, schema.IdentityKey); ok && id != nil {
			s.cache.Put(store.Key{Collection: model.Collection, ID: id}, ptr)
		}
	}

	entity := ptr.Interface()
	doc, err = m.dispatcher.Fire(s.ctx, hooks.PreLoad, model.Hooks, entity, doc)
	if err != nil {
		return err
	}

	values := make(map[string]any, len(doc))
	for _, e := range doc {
		values[e.Key] = e.Value
	}

	for _, f := range model.Fields {
		raw, ok := values[f.Key]
		if !ok {
			continue
		}
		if err := s.decodeField(f, ptr, raw); err != nil {
			return fieldError(model.Type, f.Name, err)
		}
	}

	_, err = m.dispatcher.Fire(s.ctx, hooks.PostLoad, model.Hooks, entity, doc)
	return err
}

func (s *decodeState) decodeField(f *schema.Field, ptr reflect.Value, raw any) error {
	fv := f.Value(ptr)

	switch f.Mapping {
	case schema.MappingReference:
		return s.decodeReference(f, fv, raw)
	case schema.MappingSerialized:
		v, err := deserialize(raw, f.Type)
		if err != nil {
			return err
		}
		fv.Set(v)
		return nil
	case schema.MappingIdentity:
		v, err := s.mapper.converters.FromWire(raw, f.Type)
		if err != nil {
			return err
		}
		fv.Set(v)
		return nil
	default:
		v, err := s.decodeValue(raw, f.Type)
		if err != nil {
			return err
		}
		fv.Set(v)
		return nil
	}
}

// decodeValue converts raw into a value of type t
func (s *decodeState) decodeValue(raw any, t reflect.Type) (reflect.Value, error) {
	if raw == nil {
		return reflect.Zero(t), nil
	}

	converters := s.mapper.converters
	if converters.Has(t) {
		return converters.FromWire(raw, t)
	}

	switch t.Kind() {
	case reflect.Interface:
		return s.decodeInterface(raw, t)

	case reflect.Pointer:
		if t.Elem().Kind() == reflect.Struct && !converters.Has(t.Elem()) {
			doc, ok := asDocument(raw)
			if !ok {
				return reflect.Value{}, shapeError(raw, t)
			}
			instance := reflect.New(t.Elem())
			if err := s.decodeEntity(doc, instance, false); err != nil {
				return reflect.Value{}, err
			}
			return instance, nil
		}
		v, err := s.decodeValue(raw, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(v)
		return p, nil

	case reflect.Struct:
		doc, ok := asDocument(raw)
		if !ok {
			return reflect.Value{}, shapeError(raw, t)
		}
		instance := reflect.New(t)
		if err := s.decodeEntity(doc, instance, false); err != nil {
			return reflect.Value{}, err
		}
		return instance.Elem(), nil

	case reflect.Slice:
		arr, ok := asArray(raw)
		if !ok {
			return reflect.Value{}, shapeError(raw, t)
		}
		out := s.mapper.containers.MakeSlice(t, len(arr))
		for i, item := range arr {
			v, err := s.decodeValue(item, t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			out.Index(i).Set(v)
		}
		return out, nil

	case reflect.Array:
		arr, ok := asArray(raw)
		if !ok {
			return reflect.Value{}, shapeError(raw, t)
		}
		if len(arr) > t.Len() {
			return reflect.Value{}, &convert.ConversionError{Type: t, Value: raw,
				Err: fmt.Errorf("%d elements do not fit in %s", len(arr), t)}
		}
		tmp := s.mapper.containers.MakeSlice(reflect.SliceOf(t.Elem()), len(arr))
		for i, item := range arr {
			v, err := s.decodeValue(item, t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			tmp.Index(i).Set(v)
		}
		out := reflect.New(t).Elem()
		reflect.Copy(out, tmp)
		return out, nil

	case reflect.Map:
		if t.Elem() == emptyStruct {
			return s.decodeSet(raw, t)
		}
		doc, ok := asDocument(raw)
		if !ok {
			return reflect.Value{}, shapeError(raw, t)
		}
		out := s.mapper.containers.MakeMap(t, len(doc))
		for _, e := range doc {
			k, err := convert.ParseKey(e.Key, t.Key())
			if err != nil {
				return reflect.Value{}, err
			}
			v, err := s.decodeValue(e.Value, t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("[%s]: %w", e.Key, err)
			}
			out.SetMapIndex(k, v)
		}
		return out, nil

	default:
		return reflect.Value{}, &convert.ConversionError{Type: t, Value: raw, Err: convert.ErrNoConverter}
	}
}

func (s *decodeState) decodeSet(raw any, t reflect.Type) (reflect.Value, error) {
	arr, ok := asArray(raw)
	if !ok {
		return reflect.Value{}, shapeError(raw, t)
	}
	out := s.mapper.containers.MakeMap(t, len(arr))
	present := reflect.Zero(emptyStruct)
	for i, item := range arr {
		k, err := s.decodeValue(item, t.Key())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("[%d]: %w", i, err)
		}
		out.SetMapIndex(k, present)
	}
	return out, nil
}

// decodeInterface fills an interface-typed value. Documents are instantiated from their
// discriminator; dynamic values without one keep their wire form.
func (s *decodeState) decodeInterface(raw any, t reflect.Type) (reflect.Value, error) {
	dynamic := t.NumMethod() == 0

	if doc, ok := asDocument(raw); ok {
		if _, has := lookup(doc, s.mapper.options.DiscriminatorKey); !has && dynamic {
			return reflect.ValueOf(doc), nil
		}
		concrete, err := s.discriminatedType(doc, t)
		if err != nil {
			return reflect.Value{}, err
		}
		instance := reflect.New(concrete)
		if err := s.decodeEntity(doc, instance, false); err != nil {
			return reflect.Value{}, err
		}
		// value form when the struct itself satisfies t
		if concrete.AssignableTo(t) {
			return instance.Elem(), nil
		}
		return adapt(instance, t)
	}

	if !dynamic {
		return reflect.Value{}, shapeError(raw, t)
	}

	if arr, ok := asArray(raw); ok {
		out := make([]any, len(arr))
		for i, item := range arr {
			v, err := s.decodeValue(item, t)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			if v.IsValid() && !(v.Kind() == reflect.Interface && v.IsNil()) {
				out[i] = v.Interface()
			}
		}
		return reflect.ValueOf(out), nil
	}

	return reflect.ValueOf(raw), nil
}

// discriminatedType returns the struct type named by doc's discriminator. It must be
// assignable to declared, directly or through a pointer.
func (s *decodeState) discriminatedType(doc bson.D, declared reflect.Type) (reflect.Type, error) {
	key := s.mapper.options.DiscriminatorKey
	raw, ok := lookup(doc, key)
	if !ok {
		return nil, fmt.Errorf("%w: document has no %s for %s", ErrUnknownDiscriminator, key, declared)
	}
	name, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownDiscriminator, raw)
	}

	t, ok := s.mapper.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDiscriminator, name)
	}
	if !reflect.PointerTo(t).AssignableTo(declared) && !t.AssignableTo(declared) {
		return nil, fmt.Errorf("%w: %q names %s which does not implement %s", ErrUnknownDiscriminator, name, t, declared)
	}
	return t, nil
}

// deserialize reads a blob written by serialize
func deserialize(raw any, t reflect.Type) (reflect.Value, error) {
	bin, ok := raw.(primitive.Binary)
	if !ok {
		return reflect.Value{}, shapeError(raw, t)
	}

	holder := reflect.New(reflect.StructOf([]reflect.StructField{{
		Name: "V",
		Type: t,
		Tag:  `bson:"v"`,
	}}))
	if err := bson.Unmarshal(bin.Data, holder.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("failed to deserialize %s: %w", t, err)
	}
	return holder.Elem().Field(0), nil
}

func lookup(doc bson.D, key string) (any, bool) {
	for _, e := range doc {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func asDocument(raw any) (bson.D, bool) {
	switch d := raw.(type) {
	case bson.D:
		return d, true
	case bson.M:
		return sortedDocument(d), true
	case map[string]any:
		return sortedDocument(d), true
	default:
		return nil, false
	}
}

func sortedDocument(m map[string]any) bson.D {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	doc := make(bson.D, 0, len(keys))
	for _, k := range keys {
		doc = append(doc, bson.E{Key: k, Value: m[k]})
	}
	return doc
}

func asArray(raw any) ([]any, bool) {
	switch a := raw.(type) {
	case bson.A:
		return a, true
	case []any:
		return a, true
	default:
		return nil, false
	}
}

func shapeError(raw any, t reflect.Type) error {
	return fmt.Errorf("%w: cannot decode %T into %s", ErrMalformedDocument, raw, t)
}
