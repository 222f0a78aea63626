package codec

import (
	"fmt"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/conduit-lang/docmap/internal/mapping/convert"
	"github.com/conduit-lang/docmap/internal/mapping/schema"
	"github.com/conduit-lang/docmap/internal/store"
)

const (
	refCollectionKey = "$ref"
	refIDKey         = "$id"
)

// encodeReference writes the key of each referenced entity. Absent elements of
// collections are dropped.
func (s *encodeState) encodeReference(f *schema.Field, v reflect.Value) (any, error) {
	switch f.ValueKind {
	case schema.KindList, schema.KindArray:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return bson.A{}, nil
		}
		arr := make(bson.A, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			raw, err := s.referenceValue(f, v.Index(i))
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			if raw != nil {
				arr = append(arr, raw)
			}
		}
		return arr, nil

	case schema.KindMap:
		keys, err := sortedKeys(v)
		if err != nil {
			return nil, err
		}
		doc := make(bson.D, 0, len(keys))
		for _, k := range keys {
			raw, err := s.referenceValue(f, v.MapIndex(k.value))
			if err != nil {
				return nil, fmt.Errorf("[%s]: %w", k.name, err)
			}
			if raw != nil {
				doc = append(doc, bson.E{Key: k.name, Value: raw})
			}
		}
		return doc, nil

	default:
		return s.referenceValue(f, v)
	}
}

// referenceValue writes one reference: the bare identity for id-only fields, otherwise
// a {$ref, $id} document. It returns nil when nothing is referenced.
func (s *encodeState) referenceValue(f *schema.Field, v reflect.Value) (any, error) {
	key, ok, err := s.referencedKey(f, v)
	if err != nil || !ok {
		return nil, err
	}
	if f.IDOnly {
		return key.ID, nil
	}
	return bson.D{
		{Key: refCollectionKey, Value: key.Collection},
		{Key: refIDKey, Value: key.ID},
	}, nil
}

func (s *encodeState) referencedKey(f *schema.Field, v reflect.Value) (store.Key, bool, error) {
	if f.Lazy {
		st := v.Interface().(reference).state()
		switch {
		case st == nil:
			return store.Key{}, false, nil
		case !st.resolved:
			return st.key, true, nil
		case !st.value.IsValid() || st.err != nil:
			return store.Key{}, false, nil
		default:
			v = st.value
		}
	}

	if v.Kind() == reflect.Pointer && v.Type().Elem().Kind() == reflect.Interface {
		if v.IsNil() {
			return store.Key{}, false, nil
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return store.Key{}, false, nil
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return store.Key{}, false, nil
		}
	} else {
		ptr := reflect.New(v.Type())
		ptr.Elem().Set(v)
		v = ptr
	}

	key, err := s.mapper.keyOf(v)
	if err != nil {
		return store.Key{}, false, err
	}
	return key, true, nil
}

// decodeReference fills a reference field. Missing targets are skipped when the field
// ignores them; collection elements that are skipped are dropped.
func (s *decodeState) decodeReference(f *schema.Field, fv reflect.Value, raw any) error {
	if raw == nil {
		return nil
	}
	t := f.Type

	switch f.ValueKind {
	case schema.KindList, schema.KindArray:
		arr, ok := asArray(raw)
		if !ok {
			return shapeError(raw, t)
		}
		items := s.mapper.containers.MakeSlice(reflect.SliceOf(t.Elem()), 0)
		for i, item := range arr {
			v, found, err := s.referenceFromWire(f, item, t.Elem())
			if err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
			if found {
				items = reflect.Append(items, v)
			}
		}
		if f.ValueKind == schema.KindList {
			out := s.mapper.containers.MakeSlice(t, items.Len())
			reflect.Copy(out, items)
			fv.Set(out)
			return nil
		}
		if items.Len() > t.Len() {
			return &convert.ConversionError{Type: t, Value: raw,
				Err: fmt.Errorf("%d references do not fit in %s", items.Len(), t)}
		}
		out := reflect.New(t).Elem()
		reflect.Copy(out, items)
		fv.Set(out)
		return nil

	case schema.KindMap:
		doc, ok := asDocument(raw)
		if !ok {
			return shapeError(raw, t)
		}
		out := s.mapper.containers.MakeMap(t, len(doc))
		for _, e := range doc {
			k, err := convert.ParseKey(e.Key, t.Key())
			if err != nil {
				return err
			}
			v, found, err := s.referenceFromWire(f, e.Value, t.Elem())
			if err != nil {
				return fmt.Errorf("[%s]: %w", e.Key, err)
			}
			if found {
				out.SetMapIndex(k, v)
			}
		}
		fv.Set(out)
		return nil

	default:
		v, found, err := s.referenceFromWire(f, raw, t)
		if err != nil {
			return err
		}
		if found {
			fv.Set(v)
		}
		return nil
	}
}

// referenceFromWire turns one stored reference into a value of type t. Lazy holders are
// built without touching the store.
func (s *decodeState) referenceFromWire(f *schema.Field, raw any, t reflect.Type) (reflect.Value, bool, error) {
	if raw == nil {
		return reflect.Value{}, false, nil
	}

	target := t
	if f.Lazy {
		target = schema.LazyTarget(t)
	}
	for target.Kind() == reflect.Pointer {
		target = target.Elem()
	}

	key, err := s.referenceKey(raw, target)
	if err != nil {
		return reflect.Value{}, false, err
	}

	if f.Lazy {
		return s.mapper.newLazyRef(t, key, target, f.Name, f.IgnoreMissing), true, nil
	}

	instance, found, err := s.resolve(key, target)
	if err != nil {
		return reflect.Value{}, false, err
	}
	if !found {
		if f.IgnoreMissing {
			s.mapper.logger.Debug("ignoring missing reference",
				zap.String("field", f.Name), zap.String("key", key.String()))
			return reflect.Value{}, false, nil
		}
		return reflect.Value{}, false, &ReferenceError{Field: f.Name, Key: key}
	}

	v, err := adapt(instance, t)
	if err != nil {
		return reflect.Value{}, false, err
	}
	return v, true, nil
}

// referenceKey reads the key of a stored reference. A structured reference names its
// collection; a bare identity belongs to the target's collection.
func (s *decodeState) referenceKey(raw any, target reflect.Type) (store.Key, error) {
	if doc, ok := asDocument(raw); ok {
		coll, hasColl := lookup(doc, refCollectionKey)
		id, hasID := lookup(doc, refIDKey)
		name, isString := coll.(string)
		if !hasColl || !hasID || !isString {
			return store.Key{}, fmt.Errorf("%w: reference must hold %s and %s", ErrMalformedDocument, refCollectionKey, refIDKey)
		}

		if target.Kind() == reflect.Struct {
			model, err := s.mapper.registry.GetOrCreate(target)
			if err != nil {
				return store.Key{}, err
			}
			if model.Collection != name {
				s.mapper.logger.Warn("reference collection differs from target type",
					zap.String("collection", name),
					zap.String("type", target.String()),
					zap.String("expected", model.Collection))
			}
		}
		return store.Key{Collection: name, ID: id}, nil
	}

	if target.Kind() != reflect.Struct {
		return store.Key{}, fmt.Errorf("%w: bare reference to %s has no collection", ErrMalformedDocument, target)
	}
	model, err := s.mapper.registry.GetOrCreate(target)
	if err != nil {
		return store.Key{}, err
	}
	return store.Key{Collection: model.Collection, ID: raw}, nil
}

// resolve returns the instance for key: from the cache when this call already met it,
// otherwise fetched, registered and then decoded. found is false when the document does
// not exist.
func (s *decodeState) resolve(key store.Key, target reflect.Type) (reflect.Value, bool, error) {
	if instance, ok := s.cache.Get(key); ok {
		return instance, true, nil
	}
	if exists, known := s.cache.Exists(key); known && !exists {
		return reflect.Value{}, false, nil
	}

	if s.mapper.store == nil {
		return reflect.Value{}, false, fmt.Errorf("resolving %s: %w", key, ErrNoStore)
	}

	doc, err := s.mapper.store.Fetch(s.ctx, key)
	if store.IsNotFound(err) {
		s.cache.SetExists(key, false)
		return reflect.Value{}, false, nil
	}
	if err != nil {
		return reflect.Value{}, false, fmt.Errorf("failed to fetch %s: %w", key, err)
	}

	concrete := target
	if target.Kind() == reflect.Interface {
		concrete, err = s.discriminatedType(doc, target)
		if err != nil {
			return reflect.Value{}, false, err
		}
	}

	instance := reflect.New(concrete)
	s.cache.Put(key, instance)
	if err := s.decodeEntity(doc, instance, false); err != nil {
		return reflect.Value{}, false, err
	}
	return instance, true, nil
}
