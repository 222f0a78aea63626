// Package codec converts entities to documents and back. It dispatches every field to
// the identity, value, embedded, reference or serialized codec chosen at discovery,
// resolves references through a per-call entity cache, and fires lifecycle events.
package codec

import (
	"context"
	"fmt"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/conduit-lang/docmap/internal/mapping/convert"
	"github.com/conduit-lang/docmap/internal/mapping/hooks"
	"github.com/conduit-lang/docmap/internal/mapping/schema"
	"github.com/conduit-lang/docmap/internal/store"
)

// DefaultDiscriminatorKey is the document key holding the type discriminator
const DefaultDiscriminatorKey = "_t"

// Options are the policy flags that affect encoding
type Options struct {
	// StoreNulls writes absent values as explicit nulls
	StoreNulls bool
	// StoreEmpties writes empty collections instead of omitting them
	StoreEmpties bool
	// DiscriminatorKey names the document key holding the type discriminator
	DiscriminatorKey string
}

// DefaultOptions returns the default encoding options
func DefaultOptions() Options {
	return Options{
		DiscriminatorKey: DefaultDiscriminatorKey,
	}
}

// Mapper encodes and decodes entities. It is safe for concurrent use; every Decode call
// owns a private entity cache.
type Mapper struct {
	registry   *schema.Registry
	converters *convert.Registry
	store      store.Store
	dispatcher *hooks.Dispatcher
	containers ContainerFactory
	options    Options
	logger     *zap.Logger
}

// Option configures a Mapper
type Option func(*Mapper)

// WithOptions sets the encoding options
func WithOptions(options Options) Option {
	return func(m *Mapper) {
		m.options = options
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(m *Mapper) {
		m.logger = logger
	}
}

// WithContainerFactory replaces the allocator of decoded collections
func WithContainerFactory(factory ContainerFactory) Option {
	return func(m *Mapper) {
		m.containers = factory
	}
}

// WithInterceptor registers a global lifecycle interceptor
func WithInterceptor(interceptor hooks.Interceptor) Option {
	return func(m *Mapper) {
		m.dispatcher.AddInterceptor(interceptor)
	}
}

// New creates a mapper over registry. st is used to resolve references and may be nil
// when no entity holds references.
func New(registry *schema.Registry, st store.Store, opts ...Option) *Mapper {
	if registry == nil {
		registry = schema.NewRegistry(nil, schema.DefaultOptions(), nil)
	}

	m := &Mapper{
		registry:   registry,
		converters: registry.Converters(),
		store:      st,
		dispatcher: hooks.NewDispatcher(nil),
		containers: DefaultContainers{},
		options:    DefaultOptions(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.options.DiscriminatorKey == "" {
		m.options.DiscriminatorKey = DefaultDiscriminatorKey
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}

	interceptors := m.dispatcher.Interceptors()
	m.dispatcher = hooks.NewDispatcher(m.logger)
	for _, interceptor := range interceptors {
		m.dispatcher.AddInterceptor(interceptor)
	}

	return m
}

// Registry returns the type model registry
func (m *Mapper) Registry() *schema.Registry {
	return m.registry
}

// Store returns the document store used for reference resolution
func (m *Mapper) Store() store.Store {
	return m.store
}

// Options returns the encoding options
func (m *Mapper) Options() Options {
	return m.options
}

// Encode converts entity into a document. entity is a struct or a pointer to one.
// Lifecycle hooks receive the pointer, so hooks of value arguments act on a copy.
func (m *Mapper) Encode(ctx context.Context, entity any) (doc bson.D, err error) {
	ptr, err := entityPointer(entity)
	if err != nil {
		return nil, err
	}
	defer recoverAccess(ptr.Type().Elem(), &err)

	s := &encodeState{
		ctx:      ctx,
		mapper:   m,
		visiting: make(map[visitKey]bool),
	}
	return s.encodeEntity(ptr, nil)
}

// Decode populates target from doc. target must be a non-nil pointer to a struct, to a
// struct pointer, or to an interface; an interface target is filled with the type the
// document's discriminator names.
func (m *Mapper) Decode(ctx context.Context, doc bson.D, target any) (err error) {
	_, err = m.decode(ctx, doc, target)
	return err
}

// DecodeWithStats is Decode that also reports the entity cache statistics of the call
func (m *Mapper) DecodeWithStats(ctx context.Context, doc bson.D, target any) (CacheStats, error) {
	s, err := m.decode(ctx, doc, target)
	if s == nil {
		return CacheStats{}, err
	}
	return s.cache.Stats(), err
}

func (m *Mapper) decode(ctx context.Context, doc bson.D, target any) (s *decodeState, err error) {
	pv := reflect.ValueOf(target)
	if !pv.IsValid() || pv.Kind() != reflect.Pointer || pv.IsNil() {
		return nil, fmt.Errorf("decode target must be a non-nil pointer, got %T", target)
	}
	defer recoverAccess(pv.Type().Elem(), &err)

	s = m.newDecodeState(ctx)
	elem := pv.Elem()

	switch elem.Kind() {
	case reflect.Struct:
		return s, s.decodeEntity(doc, pv, true)

	case reflect.Pointer:
		if elem.Type().Elem().Kind() != reflect.Struct {
			return s, fmt.Errorf("decode target must point to a struct, got %T", target)
		}
		instance := reflect.New(elem.Type().Elem())
		if err := s.decodeEntity(doc, instance, true); err != nil {
			return s, err
		}
		elem.Set(instance)
		return s, nil

	case reflect.Interface:
		concrete, err := s.discriminatedType(doc, elem.Type())
		if err != nil {
			return s, err
		}
		instance := reflect.New(concrete)
		if err := s.decodeEntity(doc, instance, true); err != nil {
			return s, err
		}
		assigned, err := adapt(instance, elem.Type())
		if err != nil {
			return s, err
		}
		elem.Set(assigned)
		return s, nil

	default:
		return s, fmt.Errorf("decode target must point to a struct, got %T", target)
	}
}

// DecodeAs decodes doc into a new instance of T
func DecodeAs[T any](ctx context.Context, m *Mapper, doc bson.D) (*T, error) {
	out := new(T)
	if err := m.Decode(ctx, doc, out); err != nil {
		return nil, err
	}
	return out, nil
}

// KeyOf returns the store key of entity
func (m *Mapper) KeyOf(entity any) (store.Key, error) {
	ptr, err := entityPointer(entity)
	if err != nil {
		return store.Key{}, err
	}
	return m.keyOf(ptr)
}

// Fire runs the lifecycle hooks of entity's type for event. The datastore uses it for
// events raised outside Encode and Decode.
func (m *Mapper) Fire(ctx context.Context, event hooks.Event, entity any, doc bson.D) (bson.D, error) {
	model, err := m.registry.ModelOf(entity)
	if err != nil {
		return nil, err
	}
	return m.dispatcher.Fire(ctx, event, model.Hooks, entity, doc)
}

func (m *Mapper) keyOf(ptr reflect.Value) (store.Key, error) {
	model, err := m.registry.GetOrCreate(ptr.Type())
	if err != nil {
		return store.Key{}, err
	}
	if model.Identity == nil {
		return store.Key{}, fmt.Errorf("%s: %w", model.Type, ErrNoIdentityField)
	}

	id, ok := model.Identity.Peek(ptr)
	if !ok || id.IsZero() {
		return store.Key{}, fmt.Errorf("%s: %w", model.Type, ErrNullIdentity)
	}

	raw, err := m.converters.ToWire(id)
	if err != nil {
		return store.Key{}, err
	}
	return store.Key{Collection: model.Collection, ID: raw}, nil
}

func (m *Mapper) newDecodeState(ctx context.Context) *decodeState {
	return &decodeState{
		ctx:    ctx,
		mapper: m,
		cache:  NewEntityCache(),
	}
}

// entityPointer returns a pointer to the struct held by entity, copying struct values
func entityPointer(entity any) (reflect.Value, error) {
	v := reflect.ValueOf(entity)
	if !v.IsValid() {
		return reflect.Value{}, fmt.Errorf("cannot map nil entity")
	}

	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("cannot map nil %s", v.Type())
		}
		if v.Elem().Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("cannot map %s: not a struct", v.Type())
		}
		return v, nil
	}

	if v.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("cannot map %s: not a struct", v.Type())
	}
	ptr := reflect.New(v.Type())
	ptr.Elem().Set(v)
	return ptr, nil
}

// adapt converts a freshly decoded *X into a value assignable to t
func adapt(instance reflect.Value, t reflect.Type) (reflect.Value, error) {
	if instance.Type().AssignableTo(t) {
		return instance, nil
	}
	if instance.Elem().Type().AssignableTo(t) {
		return instance.Elem(), nil
	}
	return reflect.Value{}, fmt.Errorf("decoded %s is not assignable to %s", instance.Type().Elem(), t)
}
