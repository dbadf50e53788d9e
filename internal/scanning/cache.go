package scanning

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.etcd.io/bbolt"
)

const cacheBucketName = "recognitions"

// ErrCacheMiss is returned by a Cache when the key is absent
var ErrCacheMiss = errors.New("cache miss")

// Cache stores recognition results keyed by image content
type Cache interface {
	// Get returns ErrCacheMiss when the key is absent
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// BoltCache implements the Cache interface using BoltDB
type BoltCache struct {
	db *bbolt.DB
}

// NewBoltCache opens or creates a BoltDB cache file
func NewBoltCache(path string) (*BoltCache, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(cacheBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltCache{db: db}, nil
}

// Get retrieves a cached value
func (b *BoltCache) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(cacheBucketName)).Get([]byte(key))
		if data == nil {
			return ErrCacheMiss
		}
		// data is only valid inside the transaction
		value = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores a value
func (b *BoltCache) Set(_ context.Context, key string, value []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(cacheBucketName)).Put([]byte(key), value)
	})
}

// Close closes the database
func (b *BoltCache) Close() error {
	return b.db.Close()
}

// redisClient is the part of *redis.Client the cache uses
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisConfig configures a Redis-backed cache
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // 0 keeps entries forever
	Prefix   string
}

// RedisCache implements the Cache interface using Redis
type RedisCache struct {
	client redisClient
	ttl    time.Duration
	prefix string
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return newRedisCacheWithClient(client, cfg), nil
}

func newRedisCacheWithClient(client redisClient, cfg RedisConfig) *RedisCache {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "splitbill:recognition:"
	}
	return &RedisCache{client: client, ttl: cfg.TTL, prefix: prefix}
}

// Get retrieves a cached value
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("getting cache entry: %w", err)
	}
	return val, nil
}

// Set stores a value with the configured TTL
func (r *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.prefix+key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("setting cache entry: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// CachedRecognizer decorates a Recognizer with a Cache. Cache failures are
// logged and never fail a recognition.
type CachedRecognizer struct {
	next      Recognizer
	cache     Cache
	namespace string
}

// NewCachedRecognizer wraps next. namespace separates entries written by
// different recognizers or models sharing one cache.
func NewCachedRecognizer(next Recognizer, cache Cache, namespace string) *CachedRecognizer {
	return &CachedRecognizer{next: next, cache: cache, namespace: namespace}
}

// Recognize returns a cached recognition or delegates and stores the result
func (c *CachedRecognizer) Recognize(ctx context.Context, v Variant, hints []string) (*Recognition, error) {
	key := c.key(v, hints)

	data, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		var rec Recognition
		if err := json.Unmarshal(data, &rec); err == nil {
			slog.Debug("Recognition cache hit", "key", key, "variant", v.Kind)
			return &rec, nil
		}
		slog.Warn("Discarding corrupt cache entry", "key", key)
	case !errors.Is(err, ErrCacheMiss):
		slog.Warn("Recognition cache read failed", "key", key, "error", err)
	}

	rec, err := c.next.Recognize(ctx, v, hints)
	if err != nil {
		return nil, err
	}
	if rec.empty() {
		return rec, nil
	}

	if data, err := json.Marshal(rec); err == nil {
		if err := c.cache.Set(ctx, key, data); err != nil {
			slog.Warn("Recognition cache write failed", "key", key, "error", err)
		}
	}
	return rec, nil
}

// Close closes the wrapped recognizer and the cache
func (c *CachedRecognizer) Close() error {
	return errors.Join(c.next.Close(), c.cache.Close())
}

func (c *CachedRecognizer) key(v Variant, hints []string) string {
	h := sha256.New()
	h.Write([]byte(c.namespace))
	h.Write([]byte{0})
	h.Write([]byte(v.Kind))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(hints, "+")))
	h.Write([]byte{0})
	h.Write(v.Data)
	return hex.EncodeToString(h.Sum(nil))
}
