// Package cache stores JSON values with an optional time to live.
package cache

import (
	"context"
	"time"

	"github.com/jrife/kvbackend/storage/kv"
	"github.com/jrife/kvbackend/storage/kv/keys"
	"github.com/jrife/kvbackend/utils/log"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const flushBatchSize = 1000

var (
	// ErrBackendUnavailable is returned when the KV store fails
	ErrBackendUnavailable = kv.ErrUnavailable
	// ErrInvalidValue is returned by Set for values that
	// cannot be stored, such as raw byte slices
	ErrInvalidValue = errors.New("invalid cache value")
)

// Config contains configuration for a Cache
type Config struct {
	Client kv.Client
	Logger *zap.Logger
	// Prefix scopes every key of this cache. Caches with
	// different prefixes can share one store.
	Prefix string
}

// Cache is a key/value cache with per-entry expiry
type Cache struct {
	client kv.Client
	logger *zap.Logger
	prefix string
}

// New creates a cache over the KV store in config
func New(config Config) *Cache {
	cache := &Cache{client: config.Client, logger: config.Logger, prefix: config.Prefix}

	if cache.logger == nil {
		cache.logger = zap.L()
	}

	return cache
}

func (cache *Cache) key(key string) string {
	return keys.Cache(cache.prefix, key)
}

func (cache *Cache) fail(logger *zap.Logger, err error, msg string) error {
	logger.Error(msg, zap.Error(err))

	return errors.Wrap(err, msg)
}

// Set stores value at key. The entry expires after ttl
// when ttl is positive and never expires otherwise.
func (cache *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	logger := log.Operation(ctx, cache.logger, "Set")
	logger.Debug("start", zap.String("key", key), zap.Duration("ttl", ttl))

	if _, ok := value.([]byte); ok {
		return errors.Wrap(ErrInvalidValue, "raw bytes are not accepted")
	}

	encoded, err := json.Marshal(value)

	if err != nil {
		return errors.Wrapf(ErrInvalidValue, "could not encode value: %s", err)
	}

	if err := cache.client.Set(ctx, cache.key(key), encoded, ttl); err != nil {
		return cache.fail(logger, err, "could not store cache entry")
	}

	logger.Debug("return")

	return nil
}

// Get returns the value stored at key. ok is false when
// the key is absent or expired.
func (cache *Cache) Get(ctx context.Context, key string) (value interface{}, ok bool, err error) {
	logger := log.Operation(ctx, cache.logger, "Get")
	logger.Debug("start", zap.String("key", key))

	encoded, err := cache.client.Get(ctx, cache.key(key))

	if err != nil {
		return nil, false, cache.fail(logger, err, "could not read cache entry")
	}

	return cache.decode(logger, encoded)
}

// Delete removes the entry at key and returns what it held
func (cache *Cache) Delete(ctx context.Context, key string) (value interface{}, ok bool, err error) {
	logger := log.Operation(ctx, cache.logger, "Delete")
	logger.Debug("start", zap.String("key", key))

	encoded, err := cache.client.GetDel(ctx, cache.key(key))

	if err != nil {
		return nil, false, cache.fail(logger, err, "could not delete cache entry")
	}

	return cache.decode(logger, encoded)
}

func (cache *Cache) decode(logger *zap.Logger, encoded []byte) (interface{}, bool, error) {
	if encoded == nil {
		logger.Debug("return", zap.Bool("ok", false))

		return nil, false, nil
	}

	var value interface{}

	if err := json.Unmarshal(encoded, &value); err != nil {
		return nil, false, errors.Wrap(err, "could not decode cache entry")
	}

	logger.Debug("return", zap.Bool("ok", true))

	return value, true, nil
}

// TTL returns the remaining time to live of key.
// It returns kv.NoExpiry for an entry without expiry
// and kv.Missing for an absent entry.
func (cache *Cache) TTL(ctx context.Context, key string) (time.Duration, error) {
	logger := log.Operation(ctx, cache.logger, "TTL")

	ttl, err := cache.client.TTL(ctx, cache.key(key))

	if err != nil {
		return 0, cache.fail(logger, err, "could not read cache entry ttl")
	}

	return ttl, nil
}

// Expire sets the time to live of an existing entry. It
// returns false if there was no entry at key.
func (cache *Cache) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	logger := log.Operation(ctx, cache.logger, "Expire")
	logger.Debug("start", zap.String("key", key), zap.Duration("ttl", ttl))

	ok, err := cache.client.Expire(ctx, cache.key(key), ttl)

	if err != nil {
		return false, cache.fail(logger, err, "could not set cache entry ttl")
	}

	return ok, nil
}

// Flush deletes every entry of this cache. Entries of
// other prefixes and other backends are left alone.
func (cache *Cache) Flush(ctx context.Context) error {
	logger := log.Operation(ctx, cache.logger, "Flush")
	logger.Debug("start")

	entries, err := cache.client.Keys(ctx, keys.CachePrefix(cache.prefix))

	if err != nil {
		return cache.fail(logger, err, "could not list cache entries")
	}

	for start := 0; start < len(entries); start += flushBatchSize {
		end := start + flushBatchSize

		if end > len(entries) {
			end = len(entries)
		}

		if _, err := cache.client.Del(ctx, entries[start:end]...); err != nil {
			return cache.fail(logger, err, "could not delete cache entries")
		}
	}

	logger.Debug("return", zap.Int("deleted", len(entries)))

	return nil
}
