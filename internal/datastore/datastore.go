// Package datastore ties the mapper to a document store: it assigns identities, saves
// entities, loads them back by id and raises the PostPersist event.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/conduit-lang/docmap/internal/mapping/codec"
	"github.com/conduit-lang/docmap/internal/mapping/hooks"
	"github.com/conduit-lang/docmap/internal/mapping/schema"
	"github.com/conduit-lang/docmap/internal/store"
)

var (
	// ErrNotPointer is returned when an entity is not passed by pointer
	ErrNotPointer = errors.New("entity must be a non-nil pointer to a struct")

	// ErrNoIdentity is returned when a saved type has no identity field
	ErrNoIdentity = errors.New("type has no identity field")

	// ErrCannotAssignID is returned when a zero identity cannot be generated
	ErrCannotAssignID = errors.New("cannot generate identity")
)

var (
	objectIDType = reflect.TypeOf(primitive.ObjectID{})
	uuidType     = reflect.TypeOf(uuid.UUID{})
)

// Datastore saves and loads entities through a Mapper
type Datastore struct {
	mapper *codec.Mapper
	store  store.Store
	logger *zap.Logger
}

// New creates a datastore. The mapper should resolve references against the same store.
func New(mapper *codec.Mapper, st store.Store, logger *zap.Logger) *Datastore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Datastore{
		mapper: mapper,
		store:  st,
		logger: logger,
	}
}

// Mapper returns the underlying mapper
func (d *Datastore) Mapper() *codec.Mapper {
	return d.mapper
}

// Save writes entity, generating its identity when the identity is zero, and returns
// the key it was stored under
func (d *Datastore) Save(ctx context.Context, entity any) (store.Key, error) {
	model, ptr, err := d.modelOf(entity)
	if err != nil {
		return store.Key{}, err
	}
	if model.Identity == nil {
		return store.Key{}, fmt.Errorf("%s: %w", model.Type, ErrNoIdentity)
	}

	if err := assignIdentity(model.Identity, ptr); err != nil {
		return store.Key{}, fmt.Errorf("%s: %w", model.Type, err)
	}

	doc, err := d.mapper.Encode(ctx, entity)
	if err != nil {
		return store.Key{}, fmt.Errorf("failed to encode %s: %w", model.Type, err)
	}

	key, err := d.mapper.KeyOf(entity)
	if err != nil {
		return store.Key{}, err
	}

	if err := d.store.Persist(ctx, model.Collection, doc); err != nil {
		return store.Key{}, fmt.Errorf("failed to persist %s: %w", key, err)
	}

	if _, err := d.mapper.Fire(ctx, hooks.PostPersist, entity, doc); err != nil {
		return key, err
	}

	d.logger.Debug("saved entity",
		zap.String("type", model.Type.String()),
		zap.String("key", key.String()))
	return key, nil
}

// Get loads the entity of out's type with the given identity into out
func (d *Datastore) Get(ctx context.Context, id any, out any) error {
	model, _, err := d.modelOf(out)
	if err != nil {
		return err
	}
	if model.Identity == nil {
		return fmt.Errorf("%s: %w", model.Type, ErrNoIdentity)
	}

	raw, err := d.mapper.Registry().Converters().ToWire(reflect.ValueOf(id))
	if err != nil {
		return err
	}
	return d.Load(ctx, store.Key{Collection: model.Collection, ID: raw}, out)
}

// Load decodes the document stored under key into out
func (d *Datastore) Load(ctx context.Context, key store.Key, out any) error {
	doc, err := d.store.Fetch(ctx, key)
	if err != nil {
		return err
	}
	return d.mapper.Decode(ctx, doc, out)
}

// Delete removes the stored document of entity
func (d *Datastore) Delete(ctx context.Context, entity any) error {
	key, err := d.mapper.KeyOf(entity)
	if err != nil {
		return err
	}
	return d.Remove(ctx, key)
}

// Remove deletes the document stored under key
func (d *Datastore) Remove(ctx context.Context, key store.Key) error {
	if err := d.store.Delete(ctx, key); err != nil {
		return err
	}

	d.logger.Debug("deleted document", zap.String("key", key.String()))
	return nil
}

// Exists reports whether a document is stored under key
func (d *Datastore) Exists(ctx context.Context, key store.Key) (bool, error) {
	return d.store.Exists(ctx, key)
}

func (d *Datastore) modelOf(entity any) (*schema.TypeModel, reflect.Value, error) {
	ptr := reflect.ValueOf(entity)
	if !ptr.IsValid() || ptr.Kind() != reflect.Pointer || ptr.IsNil() || ptr.Elem().Kind() != reflect.Struct {
		return nil, reflect.Value{}, ErrNotPointer
	}
	model, err := d.mapper.Registry().GetOrCreate(ptr.Type())
	if err != nil {
		return nil, reflect.Value{}, err
	}
	return model, ptr, nil
}

// assignIdentity fills a zero identity with a generated ObjectID or UUID
func assignIdentity(f *schema.Field, ptr reflect.Value) error {
	fv := f.Value(ptr)
	if !fv.IsZero() {
		return nil
	}

	switch {
	case f.Type == objectIDType:
		fv.Set(reflect.ValueOf(primitive.NewObjectID()))
	case f.Type == uuidType:
		fv.Set(reflect.ValueOf(uuid.New()))
	case f.Type.Kind() == reflect.String:
		fv.SetString(uuid.NewString())
	default:
		return fmt.Errorf("%w of type %s", ErrCannotAssignID, f.Type)
	}
	return nil
}
