package store

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

// MemoryStore implements an in-process document store. Documents are kept in their
// marshalled form so that no two callers ever share a bson.D.
type MemoryStore struct {
	data sync.Map
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Fetch retrieves a document from the store
func (m *MemoryStore) Fetch(ctx context.Context, key Key) (bson.D, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	value, ok := m.data.Load(key.String())
	if !ok {
		return nil, ErrNotFound
	}
	return unmarshal(value.([]byte))
}

// Persist stores a document under its _id
func (m *MemoryStore) Persist(ctx context.Context, collection string, doc bson.D) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	id, err := IdentityOf(doc)
	if err != nil {
		return err
	}
	data, err := marshal(doc)
	if err != nil {
		return err
	}

	m.data.Store(Key{Collection: collection, ID: id}.String(), data)
	return nil
}

// Delete removes a document from the store
func (m *MemoryStore) Delete(ctx context.Context, key Key) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m.data.Delete(key.String())
	return nil
}

// Exists checks if a document is stored under key
func (m *MemoryStore) Exists(ctx context.Context, key Key) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	_, ok := m.data.Load(key.String())
	return ok, nil
}

// Len returns the number of stored documents
func (m *MemoryStore) Len() int {
	n := 0
	m.data.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
