package local

import (
	"context"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/jrife/kvbackend/storage/kv"
	"github.com/jrife/kvbackend/storage/kv/keys"
)

var _ kv.Client = (*Engine)(nil)

// keyspace is an ordered map of keys to values valid for
// the duration of one view or update.
type keyspace interface {
	get(key string) (*value, error)
	put(key string, v *value) error
	del(key string) error
	// scan calls fn for every key in r in ascending order
	scan(r keys.Range, fn func(key string) error) error
}

// backend serializes access to a keyspace. update must apply
// every change made by fn or none of them.
type backend interface {
	view(fn func(ks keyspace) error) error
	update(fn func(ks keyspace) error) error
	close() error
}

// Option configures an Engine
type Option func(*Engine)

// WithNow replaces the clock used to expire keys
func WithNow(now func() time.Time) Option {
	return func(engine *Engine) {
		engine.now = now
	}
}

// Engine implements kv.Client in-process on top of a backend.
// Every command runs inside one view or update of the backend,
// which makes every command, BumpMax and Exec atomic.
type Engine struct {
	name    string
	now     func() time.Time
	backend backend
}

func newEngine(name string, b backend, opts ...Option) *Engine {
	engine := &Engine{name: name, now: time.Now, backend: b}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// Name returns the name of the backend
func (engine *Engine) Name() string {
	return engine.name
}

func (engine *Engine) read(ctx context.Context, command string, fn func(ks keyspace) error) error {
	if err := kv.ContextErr(ctx, command); err != nil {
		return err
	}

	return kv.Unavailable(command, engine.backend.view(fn))
}

func (engine *Engine) write(ctx context.Context, command string, fn func(ks keyspace) error) error {
	if err := kv.ContextErr(ctx, command); err != nil {
		return err
	}

	return kv.Unavailable(command, engine.backend.update(fn))
}

func (engine *Engine) nowMillis() int64 {
	return engine.now().UnixNano() / int64(time.Millisecond)
}

// lookup returns the live value at key or nil
func (engine *Engine) lookup(ks keyspace, key string, k kind) (*value, error) {
	v, err := ks.get(key)

	if err != nil || v == nil {
		return nil, err
	}

	if v.expired(engine.now()) {
		return nil, nil
	}

	if err := v.check(k); err != nil {
		return nil, err
	}

	return v, nil
}

// store writes v back to key. Emptied collections disappear.
func (engine *Engine) store(ks keyspace, key string, v *value) error {
	if v.empty() {
		return ks.del(key)
	}

	return ks.put(key, v)
}

func (engine *Engine) lookupOrCreate(ks keyspace, key string, k kind) (*value, error) {
	v, err := engine.lookup(ks, key, k)

	if err != nil {
		return nil, err
	}

	if v == nil {
		v = newValue(k)
	}

	return v, nil
}

// Get implements kv.Client.Get
func (engine *Engine) Get(ctx context.Context, key string) ([]byte, error) {
	var result []byte

	err := engine.read(ctx, "GET", func(ks keyspace) error {
		v, err := engine.lookup(ks, key, kindString)

		if err != nil || v == nil {
			return err
		}

		result = copyBytes(v.Str)

		return nil
	})

	return result, err
}

// MGet implements kv.Client.MGet
func (engine *Engine) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	result := make([][]byte, len(keys))

	err := engine.read(ctx, "MGET", func(ks keyspace) error {
		for i, key := range keys {
			v, err := engine.lookup(ks, key, kindAny)

			if err != nil {
				return err
			}

			// MGET reports non-strings as absent
			if v != nil && v.Kind == kindString {
				result[i] = copyBytes(v.Str)
			}
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}

// Set implements kv.Client.Set
func (engine *Engine) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return engine.write(ctx, "SET", func(ks keyspace) error {
		return engine.set(ks, key, value, ttl)
	})
}

func (engine *Engine) set(ks keyspace, key string, data []byte, ttl time.Duration) error {
	v := newValue(kindString)
	v.Str = copyBytes(data)

	if v.Str == nil {
		v.Str = []byte{}
	}

	if ttl > 0 {
		v.ExpireAt = engine.nowMillis() + int64(ttl/time.Millisecond)
	}

	return ks.put(key, v)
}

// GetDel implements kv.Client.GetDel
func (engine *Engine) GetDel(ctx context.Context, key string) ([]byte, error) {
	var result []byte

	err := engine.write(ctx, "GETDEL", func(ks keyspace) error {
		v, err := engine.lookup(ks, key, kindString)

		if err != nil || v == nil {
			return err
		}

		result = copyBytes(v.Str)

		return ks.del(key)
	})

	return result, err
}

// Del implements kv.Client.Del
func (engine *Engine) Del(ctx context.Context, keys ...string) (int64, error) {
	var n int64

	err := engine.write(ctx, "DEL", func(ks keyspace) error {
		for _, key := range keys {
			deleted, err := engine.del(ks, key)

			if err != nil {
				return err
			}

			n += deleted
		}

		return nil
	})

	return n, err
}

func (engine *Engine) del(ks keyspace, key string) (int64, error) {
	v, err := engine.lookup(ks, key, kindAny)

	if err != nil {
		return 0, err
	}

	if err := ks.del(key); err != nil {
		return 0, err
	}

	if v == nil {
		return 0, nil
	}

	return 1, nil
}

// TTL implements kv.Client.TTL
func (engine *Engine) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl := kv.Missing

	err := engine.read(ctx, "TTL", func(ks keyspace) error {
		v, err := engine.lookup(ks, key, kindAny)

		if err != nil || v == nil {
			return err
		}

		if v.ExpireAt == 0 {
			ttl = kv.NoExpiry

			return nil
		}

		ttl = time.Duration(v.ExpireAt-engine.nowMillis()) * time.Millisecond

		return nil
	})

	return ttl, err
}

// Expire implements kv.Client.Expire
func (engine *Engine) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	var ok bool

	err := engine.write(ctx, "EXPIRE", func(ks keyspace) error {
		v, err := engine.lookup(ks, key, kindAny)

		if err != nil || v == nil {
			return err
		}

		ok = true

		if ttl <= 0 {
			return ks.del(key)
		}

		v.ExpireAt = engine.nowMillis() + int64(ttl/time.Millisecond)

		return ks.put(key, v)
	})

	return ok, err
}

// SAdd implements kv.Client.SAdd
func (engine *Engine) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	var n int64

	err := engine.write(ctx, "SADD", func(ks keyspace) error {
		var err error

		n, err = engine.sadd(ks, key, members)

		return err
	})

	return n, err
}

func (engine *Engine) sadd(ks keyspace, key string, members []string) (int64, error) {
	v, err := engine.lookupOrCreate(ks, key, kindSet)

	if err != nil {
		return 0, err
	}

	var n int64

	for _, member := range members {
		if !v.Set[member] {
			v.Set[member] = true
			n++
		}
	}

	return n, engine.store(ks, key, v)
}

// SRem implements kv.Client.SRem
func (engine *Engine) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	var n int64

	err := engine.write(ctx, "SREM", func(ks keyspace) error {
		var err error

		n, err = engine.srem(ks, key, members)

		return err
	})

	return n, err
}

func (engine *Engine) srem(ks keyspace, key string, members []string) (int64, error) {
	v, err := engine.lookup(ks, key, kindSet)

	if err != nil || v == nil {
		return 0, err
	}

	var n int64

	for _, member := range members {
		if v.Set[member] {
			delete(v.Set, member)
			n++
		}
	}

	return n, engine.store(ks, key, v)
}

// SMembers implements kv.Client.SMembers
func (engine *Engine) SMembers(ctx context.Context, key string) ([]string, error) {
	var members []string

	err := engine.read(ctx, "SMEMBERS", func(ks keyspace) error {
		v, err := engine.lookup(ks, key, kindSet)

		if err != nil || v == nil {
			return err
		}

		members = setMembers(v)

		return nil
	})

	return members, err
}

func setMembers(v *value) []string {
	members := make([]string, 0, len(v.Set))

	for member := range v.Set {
		members = append(members, member)
	}

	sort.Strings(members)

	return members
}

// SIsMember implements kv.Client.SIsMember
func (engine *Engine) SIsMember(ctx context.Context, key string, member string) (bool, error) {
	var ok bool

	err := engine.read(ctx, "SISMEMBER", func(ks keyspace) error {
		v, err := engine.lookup(ks, key, kindSet)

		if err != nil || v == nil {
			return err
		}

		ok = v.Set[member]

		return nil
	})

	return ok, err
}

// SUnion implements kv.Client.SUnion
func (engine *Engine) SUnion(ctx context.Context, keys ...string) ([]string, error) {
	union := newValue(kindSet)

	err := engine.read(ctx, "SUNION", func(ks keyspace) error {
		for _, key := range keys {
			v, err := engine.lookup(ks, key, kindSet)

			if err != nil {
				return err
			}

			if v == nil {
				continue
			}

			for member := range v.Set {
				union.Set[member] = true
			}
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return setMembers(union), nil
}

// ZAdd implements kv.Client.ZAdd
func (engine *Engine) ZAdd(ctx context.Context, key string, score int64, member string) error {
	return engine.write(ctx, "ZADD", func(ks keyspace) error {
		return engine.zadd(ks, key, score, member)
	})
}

func (engine *Engine) zadd(ks keyspace, key string, score int64, member string) error {
	v, err := engine.lookupOrCreate(ks, key, kindZSet)

	if err != nil {
		return err
	}

	v.ZSet[member] = score

	return engine.store(ks, key, v)
}

// ZRem implements kv.Client.ZRem
func (engine *Engine) ZRem(ctx context.Context, key string, members ...string) (int64, error) {
	var n int64

	err := engine.write(ctx, "ZREM", func(ks keyspace) error {
		var err error

		n, err = engine.zrem(ks, key, members)

		return err
	})

	return n, err
}

func (engine *Engine) zrem(ks keyspace, key string, members []string) (int64, error) {
	v, err := engine.lookup(ks, key, kindZSet)

	if err != nil || v == nil {
		return 0, err
	}

	var n int64

	for _, member := range members {
		if _, ok := v.ZSet[member]; ok {
			delete(v.ZSet, member)
			n++
		}
	}

	return n, engine.store(ks, key, v)
}

// ZRangeByScore implements kv.Client.ZRangeByScore
func (engine *Engine) ZRangeByScore(ctx context.Context, key string, min, max int64) ([]string, error) {
	var members []string

	err := engine.read(ctx, "ZRANGEBYSCORE", func(ks keyspace) error {
		v, err := engine.lookup(ks, key, kindZSet)

		if err != nil || v == nil {
			return err
		}

		for member, score := range v.ZSet {
			if score >= min && score <= max {
				members = append(members, member)
			}
		}

		sort.Slice(members, func(i, j int) bool {
			if v.ZSet[members[i]] != v.ZSet[members[j]] {
				return v.ZSet[members[i]] < v.ZSet[members[j]]
			}

			return members[i] < members[j]
		})

		return nil
	})

	return members, err
}

// LPush implements kv.Client.LPush
func (engine *Engine) LPush(ctx context.Context, key string, values ...[]byte) (int64, error) {
	var n int64

	err := engine.write(ctx, "LPUSH", func(ks keyspace) error {
		v, err := engine.lookupOrCreate(ks, key, kindList)

		if err != nil {
			return err
		}

		list := make([][]byte, 0, len(values)+len(v.List))

		for i := len(values) - 1; i >= 0; i-- {
			list = append(list, copyBytes(values[i]))
		}

		v.List = append(list, v.List...)
		n = int64(len(v.List))

		return engine.store(ks, key, v)
	})

	return n, err
}

// LRange implements kv.Client.LRange
func (engine *Engine) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	var result [][]byte

	err := engine.read(ctx, "LRANGE", func(ks keyspace) error {
		v, err := engine.lookup(ks, key, kindList)

		if err != nil || v == nil {
			return err
		}

		length := int64(len(v.List))

		if start < 0 {
			start += length
		}

		if start < 0 {
			start = 0
		}

		if stop < 0 {
			stop += length
		}

		if stop >= length {
			stop = length - 1
		}

		for i := start; i <= stop; i++ {
			result = append(result, copyBytes(v.List[i]))
		}

		return nil
	})

	return result, err
}

// LLen implements kv.Client.LLen
func (engine *Engine) LLen(ctx context.Context, key string) (int64, error) {
	var n int64

	err := engine.read(ctx, "LLEN", func(ks keyspace) error {
		v, err := engine.lookup(ks, key, kindList)

		if err != nil || v == nil {
			return err
		}

		n = int64(len(v.List))

		return nil
	})

	return n, err
}

// Keys implements kv.Client.Keys
func (engine *Engine) Keys(ctx context.Context, prefix string) ([]string, error) {
	var result []string

	err := engine.read(ctx, "KEYS", func(ks keyspace) error {
		return ks.scan(keys.All().Prefix([]byte(prefix)), func(key string) error {
			v, err := ks.get(key)

			if err != nil {
				return err
			}

			if v != nil && !v.expired(engine.now()) {
				result = append(result, key)
			}

			return nil
		})
	})

	return result, err
}

// BumpMax implements kv.Client.BumpMax
func (engine *Engine) BumpMax(ctx context.Context, key string, candidate int64) (int64, error) {
	var next int64

	err := engine.write(ctx, "BUMPMAX", func(ks keyspace) error {
		v, err := engine.lookup(ks, key, kindString)

		if err != nil {
			return err
		}

		var current int64

		if v != nil {
			current, err = strconv.ParseInt(string(v.Str), 10, 64)

			if err != nil {
				return kv.ErrNotInteger
			}
		}

		if current == math.MaxInt64 {
			return kv.ErrNotInteger
		}

		next = current + 1

		if candidate > next {
			next = candidate
		}

		return engine.set(ks, key, []byte(strconv.FormatInt(next, 10)), 0)
	})

	return next, err
}

// Exec implements kv.Client.Exec
func (engine *Engine) Exec(ctx context.Context, ops ...kv.Op) error {
	if len(ops) == 0 {
		return nil
	}

	return engine.write(ctx, "EXEC", func(ks keyspace) error {
		for _, op := range ops {
			if err := engine.apply(ks, op); err != nil {
				return err
			}
		}

		return nil
	})
}

func (engine *Engine) apply(ks keyspace, op kv.Op) error {
	var err error

	switch op.Type {
	case kv.OpSet:
		err = engine.set(ks, op.Key, op.Value, op.TTL)
	case kv.OpDel:
		_, err = engine.del(ks, op.Key)
	case kv.OpSAdd:
		_, err = engine.sadd(ks, op.Key, op.Members)
	case kv.OpSRem:
		_, err = engine.srem(ks, op.Key, op.Members)
	case kv.OpZAdd:
		for _, member := range op.Members {
			if err = engine.zadd(ks, op.Key, op.Score, member); err != nil {
				break
			}
		}
	case kv.OpZRem:
		_, err = engine.zrem(ks, op.Key, op.Members)
	}

	return err
}

// Close implements kv.Client.Close
func (engine *Engine) Close() error {
	return engine.backend.close()
}
