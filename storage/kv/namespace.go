package kv

import (
	"context"
	"strings"
	"time"
)

// Namespace ensures that all keys referenced through the
// returned client are prefixed with ns. Keys listed by
// the returned client have the prefix stripped. An empty
// ns returns client unchanged.
func Namespace(client Client, ns string) Client {
	if ns == "" {
		return client
	}

	return &namespacedClient{client: client, ns: ns}
}

type namespacedClient struct {
	client Client
	ns     string
}

func (nsClient *namespacedClient) key(key string) string {
	return nsClient.ns + key
}

func (nsClient *namespacedClient) keys(keys []string) []string {
	namespaced := make([]string, len(keys))

	for i, key := range keys {
		namespaced[i] = nsClient.key(key)
	}

	return namespaced
}

func (nsClient *namespacedClient) Get(ctx context.Context, key string) ([]byte, error) {
	return nsClient.client.Get(ctx, nsClient.key(key))
}

func (nsClient *namespacedClient) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	return nsClient.client.MGet(ctx, nsClient.keys(keys)...)
}

func (nsClient *namespacedClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nsClient.client.Set(ctx, nsClient.key(key), value, ttl)
}

func (nsClient *namespacedClient) GetDel(ctx context.Context, key string) ([]byte, error) {
	return nsClient.client.GetDel(ctx, nsClient.key(key))
}

func (nsClient *namespacedClient) Del(ctx context.Context, keys ...string) (int64, error) {
	return nsClient.client.Del(ctx, nsClient.keys(keys)...)
}

func (nsClient *namespacedClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	return nsClient.client.TTL(ctx, nsClient.key(key))
}

func (nsClient *namespacedClient) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return nsClient.client.Expire(ctx, nsClient.key(key), ttl)
}

func (nsClient *namespacedClient) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	return nsClient.client.SAdd(ctx, nsClient.key(key), members...)
}

func (nsClient *namespacedClient) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	return nsClient.client.SRem(ctx, nsClient.key(key), members...)
}

func (nsClient *namespacedClient) SMembers(ctx context.Context, key string) ([]string, error) {
	return nsClient.client.SMembers(ctx, nsClient.key(key))
}

func (nsClient *namespacedClient) SIsMember(ctx context.Context, key string, member string) (bool, error) {
	return nsClient.client.SIsMember(ctx, nsClient.key(key), member)
}

func (nsClient *namespacedClient) SUnion(ctx context.Context, keys ...string) ([]string, error) {
	return nsClient.client.SUnion(ctx, nsClient.keys(keys)...)
}

func (nsClient *namespacedClient) ZAdd(ctx context.Context, key string, score int64, member string) error {
	return nsClient.client.ZAdd(ctx, nsClient.key(key), score, member)
}

func (nsClient *namespacedClient) ZRem(ctx context.Context, key string, members ...string) (int64, error) {
	return nsClient.client.ZRem(ctx, nsClient.key(key), members...)
}

func (nsClient *namespacedClient) ZRangeByScore(ctx context.Context, key string, min, max int64) ([]string, error) {
	return nsClient.client.ZRangeByScore(ctx, nsClient.key(key), min, max)
}

func (nsClient *namespacedClient) LPush(ctx context.Context, key string, values ...[]byte) (int64, error) {
	return nsClient.client.LPush(ctx, nsClient.key(key), values...)
}

func (nsClient *namespacedClient) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	return nsClient.client.LRange(ctx, nsClient.key(key), start, stop)
}

func (nsClient *namespacedClient) LLen(ctx context.Context, key string) (int64, error) {
	return nsClient.client.LLen(ctx, nsClient.key(key))
}

func (nsClient *namespacedClient) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := nsClient.client.Keys(ctx, nsClient.key(prefix))

	if err != nil {
		return nil, err
	}

	// strip the namespace prefix
	for i, key := range keys {
		keys[i] = strings.TrimPrefix(key, nsClient.ns)
	}

	return keys, nil
}

func (nsClient *namespacedClient) BumpMax(ctx context.Context, key string, candidate int64) (int64, error) {
	return nsClient.client.BumpMax(ctx, nsClient.key(key), candidate)
}

func (nsClient *namespacedClient) Exec(ctx context.Context, ops ...Op) error {
	namespaced := make([]Op, len(ops))

	for i, op := range ops {
		op.Key = nsClient.key(op.Key)
		namespaced[i] = op
	}

	return nsClient.client.Exec(ctx, namespaced...)
}

func (nsClient *namespacedClient) Close() error {
	return nsClient.client.Close()
}
