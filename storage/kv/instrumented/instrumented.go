// Package instrumented records prometheus metrics
// for every command sent through a kv.Client.
package instrumented

import (
	"context"
	"errors"
	"time"

	"github.com/jrife/kvbackend/storage/kv"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusOK          = "ok"
	statusUnavailable = "unavailable"
	statusError       = "error"
)

// Metrics holds the collectors shared by instrumented clients
type Metrics struct {
	Commands *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with
// registerer. Collectors already registered by another client
// are reused.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kvbackend",
		Subsystem: "kv",
		Name:      "commands_total",
		Help:      "KV commands by command and outcome.",
	}, []string{"command", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kvbackend",
		Subsystem: "kv",
		Name:      "command_duration_seconds",
		Help:      "KV command latency.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"command"})

	var err error

	if commands, err = register(registerer, commands); err != nil {
		return nil, err
	}

	if duration, err = register(registerer, duration); err != nil {
		return nil, err
	}

	return &Metrics{Commands: commands, Duration: duration}, nil
}

func register[C prometheus.Collector](registerer prometheus.Registerer, collector C) (C, error) {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError

		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}

		return collector, err
	}

	return collector, nil
}

var _ kv.Client = (*Client)(nil)

// Client decorates a kv.Client with metrics
type Client struct {
	client  kv.Client
	metrics *Metrics
}

// Wrap returns a client recording metrics for every
// command sent to client
func Wrap(client kv.Client, metrics *Metrics) *Client {
	return &Client{client: client, metrics: metrics}
}

func (client *Client) observe(command string, start time.Time, err error) {
	status := statusOK

	switch {
	case errors.Is(err, kv.ErrUnavailable):
		status = statusUnavailable
	case err != nil:
		status = statusError
	}

	client.metrics.Commands.WithLabelValues(command, status).Inc()
	client.metrics.Duration.WithLabelValues(command).Observe(time.Since(start).Seconds())
}

// Get implements kv.Client.Get
func (client *Client) Get(ctx context.Context, key string) (value []byte, err error) {
	defer func(start time.Time) { client.observe("GET", start, err) }(time.Now())

	return client.client.Get(ctx, key)
}

// MGet implements kv.Client.MGet
func (client *Client) MGet(ctx context.Context, keys ...string) (values [][]byte, err error) {
	defer func(start time.Time) { client.observe("MGET", start, err) }(time.Now())

	return client.client.MGet(ctx, keys...)
}

// Set implements kv.Client.Set
func (client *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (err error) {
	defer func(start time.Time) { client.observe("SET", start, err) }(time.Now())

	return client.client.Set(ctx, key, value, ttl)
}

// GetDel implements kv.Client.GetDel
func (client *Client) GetDel(ctx context.Context, key string) (value []byte, err error) {
	defer func(start time.Time) { client.observe("GETDEL", start, err) }(time.Now())

	return client.client.GetDel(ctx, key)
}

// Del implements kv.Client.Del
func (client *Client) Del(ctx context.Context, keys ...string) (n int64, err error) {
	defer func(start time.Time) { client.observe("DEL", start, err) }(time.Now())

	return client.client.Del(ctx, keys...)
}

// TTL implements kv.Client.TTL
func (client *Client) TTL(ctx context.Context, key string) (ttl time.Duration, err error) {
	defer func(start time.Time) { client.observe("TTL", start, err) }(time.Now())

	return client.client.TTL(ctx, key)
}

// Expire implements kv.Client.Expire
func (client *Client) Expire(ctx context.Context, key string, ttl time.Duration) (ok bool, err error) {
	defer func(start time.Time) { client.observe("EXPIRE", start, err) }(time.Now())

	return client.client.Expire(ctx, key, ttl)
}

// SAdd implements kv.Client.SAdd
func (client *Client) SAdd(ctx context.Context, key string, members ...string) (n int64, err error) {
	defer func(start time.Time) { client.observe("SADD", start, err) }(time.Now())

	return client.client.SAdd(ctx, key, members...)
}

// SRem implements kv.Client.SRem
func (client *Client) SRem(ctx context.Context, key string, members ...string) (n int64, err error) {
	defer func(start time.Time) { client.observe("SREM", start, err) }(time.Now())

	return client.client.SRem(ctx, key, members...)
}

// SMembers implements kv.Client.SMembers
func (client *Client) SMembers(ctx context.Context, key string) (members []string, err error) {
	defer func(start time.Time) { client.observe("SMEMBERS", start, err) }(time.Now())

	return client.client.SMembers(ctx, key)
}

// SIsMember implements kv.Client.SIsMember
func (client *Client) SIsMember(ctx context.Context, key string, member string) (ok bool, err error) {
	defer func(start time.Time) { client.observe("SISMEMBER", start, err) }(time.Now())

	return client.client.SIsMember(ctx, key, member)
}

// SUnion implements kv.Client.SUnion
func (client *Client) SUnion(ctx context.Context, keys ...string) (members []string, err error) {
	defer func(start time.Time) { client.observe("SUNION", start, err) }(time.Now())

	return client.client.SUnion(ctx, keys...)
}

// ZAdd implements kv.Client.ZAdd
func (client *Client) ZAdd(ctx context.Context, key string, score int64, member string) (err error) {
	defer func(start time.Time) { client.observe("ZADD", start, err) }(time.Now())

	return client.client.ZAdd(ctx, key, score, member)
}

// ZRem implements kv.Client.ZRem
func (client *Client) ZRem(ctx context.Context, key string, members ...string) (n int64, err error) {
	defer func(start time.Time) { client.observe("ZREM", start, err) }(time.Now())

	return client.client.ZRem(ctx, key, members...)
}

// ZRangeByScore implements kv.Client.ZRangeByScore
func (client *Client) ZRangeByScore(ctx context.Context, key string, min, max int64) (members []string, err error) {
	defer func(start time.Time) { client.observe("ZRANGEBYSCORE", start, err) }(time.Now())

	return client.client.ZRangeByScore(ctx, key, min, max)
}

// LPush implements kv.Client.LPush
func (client *Client) LPush(ctx context.Context, key string, values ...[]byte) (n int64, err error) {
	defer func(start time.Time) { client.observe("LPUSH", start, err) }(time.Now())

	return client.client.LPush(ctx, key, values...)
}

// LRange implements kv.Client.LRange
func (client *Client) LRange(ctx context.Context, key string, start, stop int64) (values [][]byte, err error) {
	defer func(begin time.Time) { client.observe("LRANGE", begin, err) }(time.Now())

	return client.client.LRange(ctx, key, start, stop)
}

// LLen implements kv.Client.LLen
func (client *Client) LLen(ctx context.Context, key string) (n int64, err error) {
	defer func(start time.Time) { client.observe("LLEN", start, err) }(time.Now())

	return client.client.LLen(ctx, key)
}

// Keys implements kv.Client.Keys
func (client *Client) Keys(ctx context.Context, prefix string) (keys []string, err error) {
	defer func(start time.Time) { client.observe("KEYS", start, err) }(time.Now())

	return client.client.Keys(ctx, prefix)
}

// BumpMax implements kv.Client.BumpMax
func (client *Client) BumpMax(ctx context.Context, key string, candidate int64) (next int64, err error) {
	defer func(start time.Time) { client.observe("BUMPMAX", start, err) }(time.Now())

	return client.client.BumpMax(ctx, key, candidate)
}

// Exec implements kv.Client.Exec
func (client *Client) Exec(ctx context.Context, ops ...kv.Op) (err error) {
	defer func(start time.Time) { client.observe("EXEC", start, err) }(time.Now())

	return client.client.Exec(ctx, ops...)
}

// Close implements kv.Client.Close
func (client *Client) Close() error {
	return client.client.Close()
}
