package redis_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrife/kvbackend/storage/kv"
	"github.com/jrife/kvbackend/storage/kv/kvtest"
	"github.com/jrife/kvbackend/storage/kv/redis"
	"github.com/stretchr/testify/require"
)

func TestRedis(t *testing.T) {
	kvtest.RunClientTests(t, kvtest.Redis)
}

func TestPluginSelectsDatabase(t *testing.T) {
	ctx := context.Background()
	server := miniredis.RunT(t)
	server.RequireAuth("secret")

	u, err := url.Parse("redis://:secret@" + server.Addr() + "/3")
	require.NoError(t, err)

	client, err := (&redis.Plugin{}).Open(kv.PluginOptions{URL: u, PoolSize: 5, PoolTimeout: time.Second})
	require.NoError(t, err)

	defer client.Close()

	require.NoError(t, client.Set(ctx, "k", []byte("v"), 0))

	server.Select(3)

	value, err := server.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", value)
}

func TestKeysEscapesGlobCharacters(t *testing.T) {
	ctx := context.Background()
	store := kvtest.Redis(t)

	for _, key := range []string{"a[1]", "a1", "a?", "ab"} {
		require.NoError(t, store.Set(ctx, key, []byte("v"), 0))
	}

	keys, err := store.Keys(ctx, "a[")
	require.NoError(t, err)
	require.Equal(t, []string{"a[1]"}, keys)

	keys, err = store.Keys(ctx, "a?")
	require.NoError(t, err)
	require.Equal(t, []string{"a?"}, keys)
}
