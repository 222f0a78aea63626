package hooks

import (
	"context"
	"fmt"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
)

// Entity-level hooks. Entities implement these on their pointer receiver.

type PrePersister interface {
	PrePersist(ctx context.Context, doc bson.D) (bson.D, error)
}

type PreSaver interface {
	PreSave(ctx context.Context, doc bson.D) (bson.D, error)
}

type PostPersister interface {
	PostPersist(ctx context.Context, doc bson.D) error
}

type PreLoader interface {
	PreLoad(ctx context.Context, doc bson.D) (bson.D, error)
}

type PostLoader interface {
	PostLoad(ctx context.Context, doc bson.D) error
}

// ListenerProvider is implemented by entities that declare listener objects. Listeners
// run after the entity's own hooks, in the order returned.
type ListenerProvider interface {
	EntityListeners() []any
}

// Listener-level hooks receive the entity they fire for.

type PrePersistListener interface {
	PrePersist(ctx context.Context, entity any, doc bson.D) (bson.D, error)
}

type PreSaveListener interface {
	PreSave(ctx context.Context, entity any, doc bson.D) (bson.D, error)
}

type PostPersistListener interface {
	PostPersist(ctx context.Context, entity any, doc bson.D) error
}

type PreLoadListener interface {
	PreLoad(ctx context.Context, entity any, doc bson.D) (bson.D, error)
}

type PostLoadListener interface {
	PostLoad(ctx context.Context, entity any, doc bson.D) error
}

var listenerProviderType = reflect.TypeOf((*ListenerProvider)(nil)).Elem()

// Discover builds the hook registry for entity type t: hooks implemented by *t first,
// then those of each declared listener.
func Discover(t reflect.Type) *Registry {
	registry := NewRegistry()
	ptr := reflect.PointerTo(t)
	typeName := t.String()

	for _, event := range Events {
		if fn := entityHook(ptr, event); fn != nil {
			registry.Register(event, &Hook{Level: LevelType, Source: typeName, Fn: fn})
		}
	}

	if ptr.Implements(listenerProviderType) {
		provider := reflect.New(t).Interface().(ListenerProvider)
		for _, listener := range provider.EntityListeners() {
			source := fmt.Sprintf("%T", listener)
			for _, event := range Events {
				if fn := listenerHook(listener, event); fn != nil {
					registry.Register(event, &Hook{Level: LevelListener, Source: source, Fn: fn})
				}
			}
		}
	}

	return registry
}

func entityHook(ptr reflect.Type, event Event) HookFunc {
	switch event {
	case PrePersist:
		if ptr.Implements(reflect.TypeOf((*PrePersister)(nil)).Elem()) {
			return func(ctx context.Context, entity any, doc bson.D) (bson.D, error) {
				return entity.(PrePersister).PrePersist(ctx, doc)
			}
		}
	case PreSave:
		if ptr.Implements(reflect.TypeOf((*PreSaver)(nil)).Elem()) {
			return func(ctx context.Context, entity any, doc bson.D) (bson.D, error) {
				return entity.(PreSaver).PreSave(ctx, doc)
			}
		}
	case PostPersist:
		if ptr.Implements(reflect.TypeOf((*PostPersister)(nil)).Elem()) {
			return func(ctx context.Context, entity any, doc bson.D) (bson.D, error) {
				return nil, entity.(PostPersister).PostPersist(ctx, doc)
			}
		}
	case PreLoad:
		if ptr.Implements(reflect.TypeOf((*PreLoader)(nil)).Elem()) {
			return func(ctx context.Context, entity any, doc bson.D) (bson.D, error) {
				return entity.(PreLoader).PreLoad(ctx, doc)
			}
		}
	case PostLoad:
		if ptr.Implements(reflect.TypeOf((*PostLoader)(nil)).Elem()) {
			return func(ctx context.Context, entity any, doc bson.D) (bson.D, error) {
				return nil, entity.(PostLoader).PostLoad(ctx, doc)
			}
		}
	}
	return nil
}

func listenerHook(listener any, event Event) HookFunc {
	switch event {
	case PrePersist:
		if l, ok := listener.(PrePersistListener); ok {
			return l.PrePersist
		}
	case PreSave:
		if l, ok := listener.(PreSaveListener); ok {
			return l.PreSave
		}
	case PostPersist:
		if l, ok := listener.(PostPersistListener); ok {
			return func(ctx context.Context, entity any, doc bson.D) (bson.D, error) {
				return nil, l.PostPersist(ctx, entity, doc)
			}
		}
	case PreLoad:
		if l, ok := listener.(PreLoadListener); ok {
			return l.PreLoad
		}
	case PostLoad:
		if l, ok := listener.(PostLoadListener); ok {
			return func(ctx context.Context, entity any, doc bson.D) (bson.D, error) {
				return nil, l.PostLoad(ctx, entity, doc)
			}
		}
	}
	return nil
}
