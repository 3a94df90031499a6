package redis

import (
	"context"
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jrife/kvbackend/storage/kv"
	goredis "github.com/redis/go-redis/v9"
)

var _ kv.Client = (*Client)(nil)

// bumpMax stores max(candidate, current + 1) at KEYS[1]
var bumpMax = goredis.NewScript(`
local current = 0
local stored = redis.call('GET', KEYS[1])
if stored then
  current = tonumber(stored)
  if current == nil then
    return redis.error_reply('ERR value is not an integer')
  end
end
local candidate = tonumber(ARGV[1])
local next = current + 1
if candidate > next then
  next = candidate
end
redis.call('SET', KEYS[1], next)
return next
`)

// Client implements kv.Client against a redis server.
// Sorted set scores travel as doubles, which represent
// millisecond timestamps exactly.
type Client struct {
	rdb *goredis.Client
}

// New wraps a go-redis client
func New(rdb *goredis.Client) *Client {
	return &Client{rdb: rdb}
}

// translate maps redis replies onto the kv error model
func translate(command string, err error) error {
	if err == nil {
		return nil
	}

	var redisErr goredis.Error

	if errors.As(err, &redisErr) {
		switch msg := redisErr.Error(); {
		case strings.HasPrefix(msg, "WRONGTYPE"):
			return kv.ErrWrongType
		case strings.Contains(msg, "not an integer"):
			return kv.ErrNotInteger
		}
	}

	return kv.Unavailable(command, err)
}

func members(strs []string) []interface{} {
	result := make([]interface{}, len(strs))

	for i, s := range strs {
		result[i] = s
	}

	return result
}

// Get implements kv.Client.Get
func (client *Client) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := client.rdb.Get(ctx, key).Bytes()

	if err == goredis.Nil {
		return nil, nil
	}

	return value, translate("GET", err)
}

// MGet implements kv.Client.MGet
func (client *Client) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	if len(keys) == 0 {
		return [][]byte{}, nil
	}

	values, err := client.rdb.MGet(ctx, keys...).Result()

	if err != nil {
		return nil, translate("MGET", err)
	}

	result := make([][]byte, len(values))

	for i, value := range values {
		if s, ok := value.(string); ok {
			result[i] = []byte(s)
		}
	}

	return result, nil
}

// Set implements kv.Client.Set
func (client *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}

	return translate("SET", client.rdb.Set(ctx, key, value, ttl).Err())
}

// GetDel implements kv.Client.GetDel
func (client *Client) GetDel(ctx context.Context, key string) ([]byte, error) {
	value, err := client.rdb.GetDel(ctx, key).Bytes()

	if err == goredis.Nil {
		return nil, nil
	}

	return value, translate("GETDEL", err)
}

// Del implements kv.Client.Del
func (client *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	n, err := client.rdb.Del(ctx, keys...).Result()

	return n, translate("DEL", err)
}

// TTL implements kv.Client.TTL
func (client *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := client.rdb.PTTL(ctx, key).Result()

	if err != nil {
		return 0, translate("PTTL", err)
	}

	switch {
	case ttl == -2:
		return kv.Missing, nil
	case ttl < 0:
		return kv.NoExpiry, nil
	}

	return ttl, nil
}

// Expire implements kv.Client.Expire
func (client *Client) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		n, err := client.Del(ctx, key)

		return n > 0, err
	}

	ok, err := client.rdb.PExpire(ctx, key, ttl).Result()

	return ok, translate("PEXPIRE", err)
}

// SAdd implements kv.Client.SAdd
func (client *Client) SAdd(ctx context.Context, key string, m ...string) (int64, error) {
	if len(m) == 0 {
		return 0, nil
	}

	n, err := client.rdb.SAdd(ctx, key, members(m)...).Result()

	return n, translate("SADD", err)
}

// SRem implements kv.Client.SRem
func (client *Client) SRem(ctx context.Context, key string, m ...string) (int64, error) {
	if len(m) == 0 {
		return 0, nil
	}

	n, err := client.rdb.SRem(ctx, key, members(m)...).Result()

	return n, translate("SREM", err)
}

// SMembers implements kv.Client.SMembers
func (client *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	result, err := client.rdb.SMembers(ctx, key).Result()

	if err != nil {
		return nil, translate("SMEMBERS", err)
	}

	sort.Strings(result)

	return result, nil
}

// SIsMember implements kv.Client.SIsMember
func (client *Client) SIsMember(ctx context.Context, key string, member string) (bool, error) {
	ok, err := client.rdb.SIsMember(ctx, key, member).Result()

	return ok, translate("SISMEMBER", err)
}

// SUnion implements kv.Client.SUnion
func (client *Client) SUnion(ctx context.Context, keys ...string) ([]string, error) {
	if len(keys) == 0 {
		return []string{}, nil
	}

	result, err := client.rdb.SUnion(ctx, keys...).Result()

	if err != nil {
		return nil, translate("SUNION", err)
	}

	sort.Strings(result)

	return result, nil
}

// ZAdd implements kv.Client.ZAdd
func (client *Client) ZAdd(ctx context.Context, key string, score int64, member string) error {
	return translate("ZADD", client.rdb.ZAdd(ctx, key, goredis.Z{Score: float64(score), Member: member}).Err())
}

// ZRem implements kv.Client.ZRem
func (client *Client) ZRem(ctx context.Context, key string, m ...string) (int64, error) {
	if len(m) == 0 {
		return 0, nil
	}

	n, err := client.rdb.ZRem(ctx, key, members(m)...).Result()

	return n, translate("ZREM", err)
}

func scoreBound(score int64) string {
	switch score {
	case math.MinInt64:
		return "-inf"
	case math.MaxInt64:
		return "+inf"
	}

	return strconv.FormatInt(score, 10)
}

// ZRangeByScore implements kv.Client.ZRangeByScore
func (client *Client) ZRangeByScore(ctx context.Context, key string, min, max int64) ([]string, error) {
	result, err := client.rdb.ZRangeByScore(ctx, key, &goredis.ZRangeBy{
		Min: scoreBound(min),
		Max: scoreBound(max),
	}).Result()

	if err != nil {
		return nil, translate("ZRANGEBYSCORE", err)
	}

	return result, nil
}

// LPush implements kv.Client.LPush
func (client *Client) LPush(ctx context.Context, key string, values ...[]byte) (int64, error) {
	if len(values) == 0 {
		return client.LLen(ctx, key)
	}

	args := make([]interface{}, len(values))

	for i, value := range values {
		args[i] = value
	}

	n, err := client.rdb.LPush(ctx, key, args...).Result()

	return n, translate("LPUSH", err)
}

// LRange implements kv.Client.LRange
func (client *Client) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	values, err := client.rdb.LRange(ctx, key, start, stop).Result()

	if err != nil {
		return nil, translate("LRANGE", err)
	}

	result := make([][]byte, len(values))

	for i, value := range values {
		result[i] = []byte(value)
	}

	return result, nil
}

// LLen implements kv.Client.LLen
func (client *Client) LLen(ctx context.Context, key string) (int64, error) {
	n, err := client.rdb.LLen(ctx, key).Result()

	return n, translate("LLEN", err)
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// Keys implements kv.Client.Keys with SCAN, so it never blocks the
// server the way KEYS does. Keys written during the scan may be missed.
func (client *Client) Keys(ctx context.Context, prefix string) ([]string, error) {
	seen := map[string]bool{}
	iter := client.rdb.Scan(ctx, 0, globEscaper.Replace(prefix)+"*", 1000).Iterator()

	for iter.Next(ctx) {
		seen[iter.Val()] = true
	}

	if err := iter.Err(); err != nil {
		return nil, translate("SCAN", err)
	}

	result := make([]string, 0, len(seen))

	for key := range seen {
		result = append(result, key)
	}

	sort.Strings(result)

	return result, nil
}

// BumpMax implements kv.Client.BumpMax with a script
func (client *Client) BumpMax(ctx context.Context, key string, candidate int64) (int64, error) {
	next, err := bumpMax.Run(ctx, client.rdb, []string{key}, candidate).Int64()

	if err != nil {
		return 0, translate("BUMPMAX", err)
	}

	return next, nil
}

// Exec implements kv.Client.Exec in a MULTI/EXEC transaction
func (client *Client) Exec(ctx context.Context, ops ...kv.Op) error {
	if len(ops) == 0 {
		return nil
	}

	_, err := client.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, op := range ops {
			queue(ctx, pipe, op)
		}

		return nil
	})

	return translate("EXEC", err)
}

func queue(ctx context.Context, pipe goredis.Pipeliner, op kv.Op) {
	switch op.Type {
	case kv.OpSet:
		ttl := op.TTL

		if ttl < 0 {
			ttl = 0
		}

		pipe.Set(ctx, op.Key, op.Value, ttl)
	case kv.OpDel:
		pipe.Del(ctx, op.Key)
	case kv.OpSAdd:
		if len(op.Members) > 0 {
			pipe.SAdd(ctx, op.Key, members(op.Members)...)
		}
	case kv.OpSRem:
		if len(op.Members) > 0 {
			pipe.SRem(ctx, op.Key, members(op.Members)...)
		}
	case kv.OpZAdd:
		for _, member := range op.Members {
			pipe.ZAdd(ctx, op.Key, goredis.Z{Score: float64(op.Score), Member: member})
		}
	case kv.OpZRem:
		if len(op.Members) > 0 {
			pipe.ZRem(ctx, op.Key, members(op.Members)...)
		}
	}
}

// Close implements kv.Client.Close
func (client *Client) Close() error {
	return client.rdb.Close()
}
