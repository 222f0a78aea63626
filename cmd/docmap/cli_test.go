package main

import (
	"bytes"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// inTempDir keeps a docmap.yaml in the working directory from leaking into tests
func inTempDir(t *testing.T) {
	t.Helper()
	oldWd, _ := os.Getwd()
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(oldWd) })
}

func setupRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	t.Setenv("DOCMAP_STORE_DRIVER", "redis")
	t.Setenv("DOCMAP_STORE_REDIS_ADDR", mr.Addr())
	return mr
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "docmap version: dev")
}

func TestConfigCommand(t *testing.T) {
	inTempDir(t)

	out, err := runCLI(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "discriminator_key: _t")
	assert.Contains(t, out, "driver: memory")
}

func TestGetCommand(t *testing.T) {
	inTempDir(t)
	mr := setupRedis(t)

	data, err := bson.Marshal(bson.D{{Key: "_id", Value: "u1"}, {Key: "name", Value: "Alice"}})
	require.NoError(t, err)
	require.NoError(t, mr.Set("docmap:users/u1", string(data)))

	out, err := runCLI(t, "get", "users", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, "users/u1")
	assert.Contains(t, out, `"name": "Alice"`)

	_, err = runCLI(t, "get", "users", "u2")
	assert.ErrorContains(t, err, "not found")
}

func TestDeleteCommand(t *testing.T) {
	inTempDir(t)
	mr := setupRedis(t)

	oid := primitive.NewObjectID()
	data, err := bson.Marshal(bson.D{{Key: "_id", Value: oid}})
	require.NoError(t, err)
	require.NoError(t, mr.Set("docmap:orders/oid:"+oid.Hex(), string(data)))

	out, err := runCLI(t, "delete", "orders", oid.Hex(), "--id-type", "objectid")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted")
	assert.False(t, mr.Exists("docmap:orders/oid:"+oid.Hex()))

	_, err = runCLI(t, "delete", "orders", oid.Hex(), "--id-type", "objectid")
	assert.ErrorContains(t, err, "not found")
}

func TestParseID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		idType  string
		want    any
		wantErr bool
	}{
		{"string", "abc", idTypeString, "abc", false},
		{"int", "42", idTypeInt, int64(42), false},
		{"bad int", "x", idTypeInt, nil, true},
		{"bad objectid", "zz", idTypeObjectID, nil, true},
		{"uuid", "6ba7b810-9dad-11d1-80b4-00c04fd430c8", idTypeUUID, primitive.Binary{
			Subtype: 0x04,
			Data:    []byte{0x6b, 0xa7, 0xb8, 0x10, 0x9d, 0xad, 0x11, 0xd1, 0x80, 0xb4, 0x00, 0xc0, 0x4f, 0xd4, 0x30, 0xc8},
		}, false},
		{"unknown type", "1", "float", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseID(tt.raw, tt.idType)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
