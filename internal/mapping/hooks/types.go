// Package hooks provides the lifecycle events fired around entity encode and decode,
// the per-type hook registry and the dispatcher that runs them in order.
package hooks

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// Event represents the type of lifecycle event
type Event int

const (
	PrePersist Event = iota
	PreSave
	PostPersist
	PreLoad
	PostLoad
)

// Events lists every lifecycle event in firing order
var Events = []Event{PrePersist, PreSave, PostPersist, PreLoad, PostLoad}

// String returns the string representation of the event
func (e Event) String() string {
	switch e {
	case PrePersist:
		return "pre_persist"
	case PreSave:
		return "pre_save"
	case PostPersist:
		return "post_persist"
	case PreLoad:
		return "pre_load"
	case PostLoad:
		return "post_load"
	default:
		return "unknown"
	}
}

// Level records where a hook was declared
type Level int

const (
	// LevelType hooks are methods of the entity itself
	LevelType Level = iota
	// LevelListener hooks belong to a listener declared by the entity
	LevelListener
	// LevelGlobal hooks are interceptors registered on the mapper
	LevelGlobal
)

// HookFunc receives the entity and the working document. A non-nil returned document
// replaces the working document.
type HookFunc func(ctx context.Context, entity any, doc bson.D) (bson.D, error)

// Hook represents a registered lifecycle hook
type Hook struct {
	Event  Event
	Level  Level
	Source string
	Fn     HookFunc
}

// Registry manages the hooks of one entity type, grouped by event in registration order
type Registry struct {
	hooks map[Event][]*Hook
}

// NewRegistry creates a new hook registry
func NewRegistry() *Registry {
	return &Registry{
		hooks: make(map[Event][]*Hook),
	}
}

// Register adds a hook to the registry
func (r *Registry) Register(event Event, hook *Hook) {
	hook.Event = event
	r.hooks[event] = append(r.hooks[event], hook)
}

// GetHooks returns all hooks for a given event
func (r *Registry) GetHooks(event Event) []*Hook {
	if r == nil {
		return nil
	}
	return r.hooks[event]
}

// HasHooks returns true if there are any hooks registered for the given event
func (r *Registry) HasHooks(event Event) bool {
	return len(r.GetHooks(event)) > 0
}

// Count returns the number of registered hooks across all events
func (r *Registry) Count() int {
	n := 0
	for _, hooks := range r.hooks {
		n += len(hooks)
	}
	return n
}
