package kv

import (
	"context"
	"net/url"
	"time"
)

const (
	// NoExpiry is returned by TTL for a key that exists
	// but has no associated expiry.
	NoExpiry time.Duration = -1
	// Missing is returned by TTL for a key that does not exist.
	Missing time.Duration = -2
)

// Plugin represents a kv driver
type Plugin interface {
	// Name returns the name of the driver. It is also the
	// URL scheme that selects this driver.
	Name() string
	// Open returns a client connected to the store located
	// by options.URL.
	Open(options PluginOptions) (Client, error)
}

// PluginOptions are passed to a plugin when opening a client.
// PoolSize and PoolTimeout are hints: drivers without a
// connection pool ignore them.
type PluginOptions struct {
	URL         *url.URL
	PoolSize    int
	PoolTimeout time.Duration
}

// Client is the command interface of a key-value store.
// Absent keys are not errors: reads of an absent or expired
// key return nil/empty values.
type Client interface {
	// Get returns the string stored at key or nil if
	// the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	// MGet is like Get for several keys. The result has one
	// entry per key, nil for absent keys.
	MGet(ctx context.Context, keys ...string) ([][]byte, error)
	// Set stores value at key. ttl <= 0 means the key never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// GetDel atomically deletes key and returns what it held.
	GetDel(ctx context.Context, key string) ([]byte, error)
	// Del deletes keys of any kind and returns how many existed.
	Del(ctx context.Context, keys ...string) (int64, error)
	// TTL returns the remaining time to live of key, NoExpiry or Missing.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// Expire sets a time to live on an existing key. It returns
	// false if the key does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// SAdd adds members to the set at key and returns how many
	// were not already members.
	SAdd(ctx context.Context, key string, members ...string) (int64, error)
	// SRem removes members from the set at key and returns how many
	// were members. A set left empty is deleted.
	SRem(ctx context.Context, key string, members ...string) (int64, error)
	// SMembers lists the members of the set at key in no particular order.
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key string, member string) (bool, error)
	// SUnion returns the union of the sets at keys.
	SUnion(ctx context.Context, keys ...string) ([]string, error)

	// ZAdd adds or rescores member in the sorted set at key.
	ZAdd(ctx context.Context, key string, score int64, member string) error
	// ZRem removes members from the sorted set at key.
	ZRem(ctx context.Context, key string, members ...string) (int64, error)
	// ZRangeByScore lists members whose score is in [min, max], ordered
	// by score then member. Use math.MinInt64 and math.MaxInt64 for
	// open bounds.
	ZRangeByScore(ctx context.Context, key string, min, max int64) ([]string, error)

	// LPush prepends values to the list at key and returns its new length.
	LPush(ctx context.Context, key string, values ...[]byte) (int64, error)
	// LRange returns the elements between start and stop inclusive.
	// Negative indexes count from the end of the list.
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	LLen(ctx context.Context, key string) (int64, error)

	// Keys lists the live keys starting with prefix in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// BumpMax atomically stores max(candidate, current+1) at key,
	// where current is the integer held by key or 0, and returns
	// the stored value.
	BumpMax(ctx context.Context, key string, candidate int64) (int64, error)
	// Exec applies ops in order, atomically and in a single round trip.
	Exec(ctx context.Context, ops ...Op) error

	// Close releases the resources held by the client.
	Close() error
}
