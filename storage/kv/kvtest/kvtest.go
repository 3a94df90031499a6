// Package kvtest opens throwaway kv clients for tests
// and checks that drivers honor the kv.Client contract.
package kvtest

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrife/kvbackend/storage/kv"
	"github.com/jrife/kvbackend/storage/kv/local"
	"github.com/jrife/kvbackend/storage/kv/redis"
	goredis "github.com/redis/go-redis/v9"
)

// Clock is a clock that only moves when told to
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock stopped at now
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current time of the clock
func (clock *Clock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()

	return clock.now
}

// Advance moves the clock forward by d
func (clock *Clock) Advance(d time.Duration) {
	clock.mu.Lock()
	defer clock.mu.Unlock()

	clock.now = clock.now.Add(d)
}

// Store is a client opened for a single test
type Store struct {
	kv.Client
	// Advance moves the time of the store forward so
	// keys with a TTL can expire without sleeping.
	Advance func(d time.Duration)
}

// Builder opens a fresh, empty store that is
// closed when the test ends.
type Builder func(t *testing.T) Store

// Driver names a builder
type Driver struct {
	Name    string
	Builder Builder
}

// Drivers returns a builder for every driver
func Drivers() []Driver {
	return []Driver{
		{Name: local.MemoryDriverName, Builder: Memory},
		{Name: local.BBoltDriverName, Builder: BBolt},
		{Name: redis.DriverName, Builder: Redis},
	}
}

// Memory opens an in-memory engine
func Memory(t *testing.T) Store {
	clock := NewClock(time.Unix(1700000000, 0))
	engine := local.NewMemory(local.WithNow(clock.Now))

	t.Cleanup(func() { engine.Close() })

	return Store{Client: engine, Advance: clock.Advance}
}

// BBolt opens a bbolt engine in a temporary directory
func BBolt(t *testing.T) Store {
	clock := NewClock(time.Unix(1700000000, 0))
	engine, err := local.OpenBBolt(filepath.Join(t.TempDir(), "kv.db"), local.WithNow(clock.Now))

	if err != nil {
		t.Fatalf("could not open bbolt engine: %s", err)
	}

	t.Cleanup(func() { engine.Close() })

	return Store{Client: engine, Advance: clock.Advance}
}

// Redis opens a redis client connected to a miniredis server
func Redis(t *testing.T) Store {
	server := miniredis.RunT(t)
	client := redis.New(goredis.NewClient(&goredis.Options{Addr: server.Addr()}))

	t.Cleanup(func() { client.Close() })

	return Store{Client: client, Advance: server.FastForward}
}
