package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMemoryStore_PersistAndFetch(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	doc := bson.D{{Key: "_id", Value: "u1"}, {Key: "name", Value: "Alice"}}
	require.NoError(t, s.Persist(ctx, "users", doc))

	fetched, err := s.Fetch(ctx, Key{Collection: "users", ID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, doc, fetched)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_DocumentsAreNotShared(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	doc := bson.D{{Key: "_id", Value: "u1"}, {Key: "name", Value: "Alice"}}
	require.NoError(t, s.Persist(ctx, "users", doc))
	doc[1].Value = "Mallory"

	first, err := s.Fetch(ctx, Key{Collection: "users", ID: "u1"})
	require.NoError(t, err)
	first[1].Value = "Eve"

	second, err := s.Fetch(ctx, Key{Collection: "users", ID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", second[1].Value)
}

func TestMemoryStore_FetchMiss(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Fetch(context.Background(), Key{Collection: "users", ID: "nope"})
	assert.True(t, IsNotFound(err))
}

func TestMemoryStore_PersistWithoutIdentity(t *testing.T) {
	s := NewMemoryStore()

	err := s.Persist(context.Background(), "users", bson.D{{Key: "name", Value: "Alice"}})
	assert.ErrorIs(t, err, ErrMissingIdentity)
}

func TestMemoryStore_DeleteAndExists(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	key := Key{Collection: "users", ID: "u1"}

	require.NoError(t, s.Persist(ctx, "users", bson.D{{Key: "_id", Value: "u1"}}))

	exists, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.Delete(ctx, key))

	exists, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Fetch(ctx, Key{Collection: "users", ID: "u1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_DistinctIdentityTypes(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	oid, err := primitive.ObjectIDFromHex("64b7f0c2a1b2c3d4e5f60718")
	require.NoError(t, err)

	require.NoError(t, s.Persist(ctx, "users", bson.D{{Key: "_id", Value: int64(1)}, {Key: "kind", Value: "int"}}))
	require.NoError(t, s.Persist(ctx, "users", bson.D{{Key: "_id", Value: oid.Hex()}, {Key: "kind", Value: "hex"}}))

	exists, err := s.Exists(ctx, Key{Collection: "users", ID: "1"})
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = s.Exists(ctx, Key{Collection: "users", ID: oid})
	require.NoError(t, err)
	assert.False(t, exists)

	doc, err := s.Fetch(ctx, Key{Collection: "users", ID: int32(1)})
	require.NoError(t, err)
	assert.Equal(t, "int", doc[1].Value)
}

func TestKey_String(t *testing.T) {
	oid, err := primitive.ObjectIDFromHex("64b7f0c2a1b2c3d4e5f60718")
	require.NoError(t, err)

	tests := []struct {
		name string
		key  Key
		want string
	}{
		{"string id", Key{Collection: "users", ID: "u1"}, "users/u1"},
		{"string id with colon", Key{Collection: "users", ID: "i:7"}, "users/s:i:7"},
		{"numeric string id", Key{Collection: "users", ID: "7"}, "users/7"},
		{"int32 id", Key{Collection: "users", ID: int32(7)}, "users/i:7"},
		{"int64 id", Key{Collection: "users", ID: int64(7)}, "users/i:7"},
		{"object id", Key{Collection: "users", ID: oid}, "users/oid:64b7f0c2a1b2c3d4e5f60718"},
		{"binary id", Key{Collection: "users", ID: primitive.Binary{Subtype: 4, Data: []byte{0xab, 0xcd}}}, "users/bin4:abcd"},
		{"slash in collection", Key{Collection: "a/b", ID: "c"}, "a%2Fb/c"},
		{"slash in id", Key{Collection: "a", ID: "b/c"}, "a/b/c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.String())
		})
	}
}
