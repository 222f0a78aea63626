package hooks

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// Interceptor is a global hook that sees every entity the mapper handles
type Interceptor interface {
	Intercept(ctx context.Context, event Event, entity any, doc bson.D) (bson.D, error)
}

// InterceptorFunc adapts a function to the Interceptor interface
type InterceptorFunc func(ctx context.Context, event Event, entity any, doc bson.D) (bson.D, error)

// Intercept implements Interceptor
func (f InterceptorFunc) Intercept(ctx context.Context, event Event, entity any, doc bson.D) (bson.D, error) {
	return f(ctx, event, entity, doc)
}

// Dispatcher fires lifecycle events: type-level hooks, then listener hooks, then global
// interceptors, all synchronously.
type Dispatcher struct {
	interceptors []Interceptor
	logger       *zap.Logger
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{logger: logger}
}

// AddInterceptor registers a global interceptor
func (d *Dispatcher) AddInterceptor(interceptor Interceptor) {
	d.interceptors = append(d.interceptors, interceptor)
}

// Interceptors returns the registered global interceptors
func (d *Dispatcher) Interceptors() []Interceptor {
	return d.interceptors
}

// Fire runs every hook for event and returns the resulting document. The first failing
// hook stops execution.
func (d *Dispatcher) Fire(ctx context.Context, event Event, registry *Registry, entity any, doc bson.D) (bson.D, error) {
	for _, hook := range registry.GetHooks(event) {
		replaced, err := hook.Fn(ctx, entity, doc)
		if err != nil {
			return nil, fmt.Errorf("hook %s (%s) failed: %w", event.String(), hook.Source, err)
		}
		if replaced != nil {
			d.logger.Debug("hook replaced document",
				zap.String("event", event.String()),
				zap.String("source", hook.Source))
			doc = replaced
		}
	}

	for _, interceptor := range d.interceptors {
		replaced, err := interceptor.Intercept(ctx, event, entity, doc)
		if err != nil {
			return nil, fmt.Errorf("interceptor %s failed: %w", event.String(), err)
		}
		if replaced != nil {
			doc = replaced
		}
	}

	return doc, nil
}
