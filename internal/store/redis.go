package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
)

// RedisStore implements a Redis-backed document store. Each document is one string key
// holding its BSON bytes.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	// Addr is the Redis server address (host:port)
	Addr string
	// Password is the Redis password (optional)
	Password string
	// DB is the Redis database number
	DB int
	// Prefix is prepended to all document keys
	Prefix string
}

// DefaultRedisConfig returns a default Redis configuration
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:   "localhost:6379",
		Prefix: "docmap:",
	}
}

// NewRedisStore creates a new Redis store and checks the connection
func NewRedisStore(config RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return NewRedisStoreWithClient(client, config.Prefix), nil
}

// NewRedisStoreWithClient creates a new Redis store with an existing client
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (r *RedisStore) redisKey(key Key) string {
	return r.prefix + key.String()
}

// Fetch retrieves a document from Redis
func (r *RedisStore) Fetch(ctx context.Context, key Key) (bson.D, error) {
	data, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return unmarshal(data)
}

// Persist stores a document under its _id
func (r *RedisStore) Persist(ctx context.Context, collection string, doc bson.D) error {
	id, err := IdentityOf(doc)
	if err != nil {
		return err
	}
	data, err := marshal(doc)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.redisKey(Key{Collection: collection, ID: id}), data, 0).Err()
}

// Delete removes a document from Redis
func (r *RedisStore) Delete(ctx context.Context, key Key) error {
	return r.client.Del(ctx, r.redisKey(key)).Err()
}

// Exists checks if a document is stored under key
func (r *RedisStore) Exists(ctx context.Context, key Key) (bool, error) {
	count, err := r.client.Exists(ctx, r.redisKey(key)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}
