package schema

import (
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/conduit-lang/docmap/internal/mapping/convert"
)

// Options are the global policy flags that affect discovery
type Options struct {
	// MapUnmarked maps untagged struct-valued fields as embedded documents
	MapUnmarked bool
	// IgnoreFinals excludes fields tagged final
	IgnoreFinals bool
}

// DefaultOptions returns the default discovery options
func DefaultOptions() Options {
	return Options{
		MapUnmarked: true,
	}
}

// Registry discovers and caches type models. Discovery of a type runs once; concurrent
// first discoveries of the same type may both run, but only the first published model
// is ever returned.
type Registry struct {
	models     sync.Map // reflect.Type -> *TypeModel
	names      sync.Map // discriminator -> reflect.Type
	converters *convert.Registry
	options    Options
	logger     *zap.Logger
}

// NewRegistry creates a new type model registry
func NewRegistry(converters *convert.Registry, options Options, logger *zap.Logger) *Registry {
	if converters == nil {
		converters = convert.NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		converters: converters,
		options:    options,
		logger:     logger,
	}
}

// Converters returns the scalar converter registry used for discovery
func (r *Registry) Converters() *convert.Registry {
	return r.converters
}

// Options returns the discovery options
func (r *Registry) Options() Options {
	return r.options
}

// GetOrCreate returns the model of t, discovering it on first use. Pointer types are
// dereferenced.
func (r *Registry) GetOrCreate(t reflect.Type) (*TypeModel, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if cached, ok := r.models.Load(t); ok {
		return cached.(*TypeModel), nil
	}

	if t.Kind() != reflect.Struct {
		return nil, discoveryErrorf(t, "", "no usable constructor for kind %s", t.Kind())
	}

	model, err := r.discover(t)
	if err != nil {
		return nil, err
	}

	actual, loaded := r.models.LoadOrStore(t, model)
	if loaded {
		return actual.(*TypeModel), nil
	}

	if other, exists := r.names.LoadOrStore(model.Discriminator, t); exists && other.(reflect.Type) != t {
		r.logger.Warn("discriminator already registered for another type",
			zap.String("discriminator", model.Discriminator),
			zap.String("type", t.String()),
			zap.String("registered", other.(reflect.Type).String()))
	}

	r.logger.Debug("discovered type",
		zap.String("type", t.String()),
		zap.String("collection", model.Collection),
		zap.Int("fields", len(model.Fields)))

	return model, nil
}

// ModelOf returns the model of v's dynamic type
func (r *Registry) ModelOf(v any) (*TypeModel, error) {
	if v == nil {
		return nil, fmt.Errorf("cannot map nil value")
	}
	return r.GetOrCreate(reflect.TypeOf(v))
}

// Register discovers the types of samples up front so that their discriminators resolve
// during decode
func (r *Registry) Register(samples ...any) error {
	for _, sample := range samples {
		if _, err := r.ModelOf(sample); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the type registered under a discriminator
func (r *Registry) Lookup(discriminator string) (reflect.Type, bool) {
	t, ok := r.names.Load(discriminator)
	if !ok {
		return nil, false
	}
	return t.(reflect.Type), true
}

// Count returns the number of discovered types
func (r *Registry) Count() int {
	n := 0
	r.models.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Reset drops every cached model (useful for testing)
func (r *Registry) Reset() {
	r.models.Range(func(key, _ any) bool {
		r.models.Delete(key)
		return true
	})
	r.names.Range(func(key, _ any) bool {
		r.names.Delete(key)
		return true
	})
}
