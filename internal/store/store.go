// Package store defines the document store the mapper reads references from and the
// datastore persists into, together with memory, Redis and SQL backends.
package store

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IdentityKey is the reserved document key holding an entity's identity.
const IdentityKey = "_id"

// Store defines the interface for all document store backends
type Store interface {
	// Fetch returns the document stored under key, or ErrNotFound
	Fetch(ctx context.Context, key Key) (bson.D, error)

	// Persist stores doc in collection under the value of its _id key
	Persist(ctx context.Context, collection string, doc bson.D) error

	// Delete removes the document stored under key
	Delete(ctx context.Context, key Key) error

	// Exists checks if a document is stored under key
	Exists(ctx context.Context, key Key) (bool, error)
}

// Key names one persisted entity. ID holds the wire form of the identity.
type Key struct {
	Collection string
	ID         any
}

// String returns the canonical "collection/id" form of the key. Distinct keys have
// distinct forms: "%" and "/" in the collection are escaped and the id is rendered by
// IDString.
func (k Key) String() string {
	return collectionEscaper.Replace(k.Collection) + "/" + IDString(k.ID)
}

var collectionEscaper = strings.NewReplacer("%", "%25", "/", "%2F")

// IDString renders a wire identity value canonically. Strings without a colon are kept
// as they are; every other id carries a type tag. All integer widths share the "i" tag
// so the int32 and int64 forms of one id coincide.
func IDString(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		if strings.Contains(v, ":") {
			return "s:" + v
		}
		return v
	case primitive.ObjectID:
		return "oid:" + v.Hex()
	case primitive.Binary:
		return "bin" + strconv.Itoa(int(v.Subtype)) + ":" + hex.EncodeToString(v.Data)
	case []byte:
		return "bin0:" + hex.EncodeToString(v)
	case int:
		return "i:" + strconv.FormatInt(int64(v), 10)
	case int32:
		return "i:" + strconv.FormatInt(int64(v), 10)
	case int64:
		return "i:" + strconv.FormatInt(v, 10)
	case float64:
		return "f:" + strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return "b:" + strconv.FormatBool(v)
	case fmt.Stringer:
		return fmt.Sprintf("%T:%s", v, v.String())
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}

// IdentityOf extracts the _id value of doc.
func IdentityOf(doc bson.D) (any, error) {
	for _, e := range doc {
		if e.Key == IdentityKey {
			if e.Value == nil {
				break
			}
			return e.Value, nil
		}
	}
	return nil, ErrMissingIdentity
}

// marshal and unmarshal keep stored documents isolated from the callers' values.
func marshal(doc bson.D) ([]byte, error) {
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return data, nil
}

func unmarshal(data []byte) (bson.D, error) {
	var doc bson.D
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return doc, nil
}
