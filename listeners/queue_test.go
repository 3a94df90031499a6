package listeners_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jrife/kvbackend/listeners"
	"github.com/jrife/kvbackend/storage/kv/keys"
	"github.com/jrife/kvbackend/storage/kv/kvtest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestQueue(t *testing.T) {
	for _, driver := range kvtest.Drivers() {
		t.Run(driver.Name, func(t *testing.T) {
			testQueue(t, driver.Builder)
		})
	}
}

func testQueue(t *testing.T, builder kvtest.Builder) {
	t.Run("push", func(t *testing.T) {
		ctx := context.Background()
		store := builder(t)
		queue := listeners.NewQueue(listeners.QueueConfig{Client: store.Client})

		created := listeners.Event{Action: listeners.ActionCreate, Resource: "notes", Parent: "u1", ID: "a", Timestamp: 100, Record: map[string]interface{}{"id": "a"}}
		deleted := listeners.Event{Action: listeners.ActionDelete, Resource: "notes", Parent: "u1", ID: "a", Timestamp: 101}

		queue.Notify(ctx, created)
		queue.Notify(ctx, deleted)

		n, err := queue.Len(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(2), n)

		events, err := queue.Events(ctx)
		require.NoError(t, err)

		if diff := cmp.Diff([]listeners.Event{deleted, created}, events); diff != "" {
			t.Fatal(diff)
		}

		raw, err := store.LRange(ctx, keys.Queue(listeners.DefaultQueue), -1, -1)
		require.NoError(t, err)
		require.JSONEq(t, `{"action":"create","resource_name":"notes","parent_id":"u1","id":"a","timestamp":100,"record":{"id":"a"}}`, string(raw[0]))
	})

	t.Run("filters", func(t *testing.T) {
		ctx := context.Background()
		store := builder(t)
		queue := listeners.NewQueue(listeners.QueueConfig{
			Client:    store.Client,
			Queue:     "audit",
			Actions:   []listeners.Action{listeners.ActionDelete},
			Resources: []string{"notes"},
		})

		queue.Notify(ctx, listeners.Event{Action: listeners.ActionCreate, Resource: "notes", ID: "a"})
		queue.Notify(ctx, listeners.Event{Action: listeners.ActionDelete, Resource: "tasks", ID: "b"})
		queue.Notify(ctx, listeners.Event{Action: listeners.ActionDelete, Resource: "notes", ID: "c"})

		events, err := queue.Events(ctx)
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, "c", events[0].ID)

		n, err := store.LLen(ctx, keys.Queue(listeners.DefaultQueue))
		require.NoError(t, err)
		require.Equal(t, int64(0), n)
	})
}

func TestQueueSwallowsFailures(t *testing.T) {
	store := kvtest.Memory(t)
	core, logs := observer.New(zap.ErrorLevel)
	queue := listeners.NewQueue(listeners.QueueConfig{Client: store.Client, Logger: zap.New(core)})

	require.NoError(t, store.Close())

	queue.Notify(context.Background(), listeners.Event{Action: listeners.ActionCreate, Resource: "notes", ID: "a"})

	require.Equal(t, 1, logs.FilterMessage("could not queue event").Len())

	_, err := queue.Len(context.Background())
	require.Error(t, err)
}
