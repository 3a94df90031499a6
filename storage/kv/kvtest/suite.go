package kvtest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jrife/kvbackend/storage/kv"
	"github.com/stretchr/testify/require"
)

// RunClientTests checks the kv.Client contract against
// stores opened by builder.
func RunClientTests(t *testing.T, builder Builder) {
	t.Run("strings", func(t *testing.T) { testStrings(t, builder) })
	t.Run("expiry", func(t *testing.T) { testExpiry(t, builder) })
	t.Run("sets", func(t *testing.T) { testSets(t, builder) })
	t.Run("sorted sets", func(t *testing.T) { testSortedSets(t, builder) })
	t.Run("lists", func(t *testing.T) { testLists(t, builder) })
	t.Run("keys", func(t *testing.T) { testKeys(t, builder) })
	t.Run("bump max", func(t *testing.T) { testBumpMax(t, builder) })
	t.Run("exec", func(t *testing.T) { testExec(t, builder) })
	t.Run("errors", func(t *testing.T) { testErrors(t, builder) })
}

var equateEmpty = cmpopts.EquateEmpty()

func testStrings(t *testing.T, builder Builder) {
	ctx := context.Background()
	store := builder(t)

	value, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.Nil(t, value)

	require.NoError(t, store.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), 0))

	value, err = store.Get(ctx, "a")
	require.NoError(t, err)

	if diff := cmp.Diff([]byte("1"), value); diff != "" {
		t.Fatal(diff)
	}

	values, err := store.MGet(ctx, "a", "missing", "b")
	require.NoError(t, err)

	if diff := cmp.Diff([][]byte{[]byte("1"), nil, []byte("2")}, values); diff != "" {
		t.Fatal(diff)
	}

	value, err = store.GetDel(ctx, "a")
	require.NoError(t, err)

	if diff := cmp.Diff([]byte("1"), value); diff != "" {
		t.Fatal(diff)
	}

	value, err = store.GetDel(ctx, "a")
	require.NoError(t, err)
	require.Nil(t, value)

	require.NoError(t, store.Set(ctx, "c", []byte("3"), 0))

	n, err := store.Del(ctx, "b", "c", "missing")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	value, err = store.Get(ctx, "b")
	require.NoError(t, err)
	require.Nil(t, value)
}

func testExpiry(t *testing.T, builder Builder) {
	ctx := context.Background()
	store := builder(t)

	require.NoError(t, store.Set(ctx, "short", []byte("x"), 10*time.Second))
	require.NoError(t, store.Set(ctx, "forever", []byte("y"), 0))

	ttl, err := store.TTL(ctx, "short")
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, ttl)

	ttl, err = store.TTL(ctx, "forever")
	require.NoError(t, err)
	require.Equal(t, kv.NoExpiry, ttl)

	ttl, err = store.TTL(ctx, "missing")
	require.NoError(t, err)
	require.Equal(t, kv.Missing, ttl)

	ok, err := store.Expire(ctx, "forever", 20*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Expire(ctx, "missing", 20*time.Second)
	require.NoError(t, err)
	require.False(t, ok)

	store.Advance(11 * time.Second)

	value, err := store.Get(ctx, "short")
	require.NoError(t, err)
	require.Nil(t, value)

	value, err = store.Get(ctx, "forever")
	require.NoError(t, err)
	require.Equal(t, []byte("y"), value)

	store.Advance(10 * time.Second)

	ttl, err = store.TTL(ctx, "forever")
	require.NoError(t, err)
	require.Equal(t, kv.Missing, ttl)

	keys, err := store.Keys(ctx, "")
	require.NoError(t, err)
	require.Empty(t, keys)
}

func testSets(t *testing.T, builder Builder) {
	ctx := context.Background()
	store := builder(t)

	n, err := store.SAdd(ctx, "s1", "a", "b", "a")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	n, err = store.SAdd(ctx, "s1", "b", "c")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, err = store.SAdd(ctx, "s2", "c", "d")
	require.NoError(t, err)

	members, err := store.SMembers(ctx, "s1")
	require.NoError(t, err)

	if diff := cmp.Diff([]string{"a", "b", "c"}, members, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Fatal(diff)
	}

	ok, err := store.SIsMember(ctx, "s1", "a")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.SIsMember(ctx, "s1", "d")
	require.NoError(t, err)
	require.False(t, ok)

	union, err := store.SUnion(ctx, "s1", "s2", "missing")
	require.NoError(t, err)

	if diff := cmp.Diff([]string{"a", "b", "c", "d"}, union, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Fatal(diff)
	}

	n, err = store.SRem(ctx, "s1", "a", "z")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	members, err = store.SMembers(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, members, 2)

	_, err = store.SRem(ctx, "s1", "b", "c")
	require.NoError(t, err)

	members, err = store.SMembers(ctx, "s1")
	require.NoError(t, err)

	if diff := cmp.Diff([]string{}, members, equateEmpty); diff != "" {
		t.Fatal(diff)
	}

	keys, err := store.Keys(ctx, "s")
	require.NoError(t, err)

	if diff := cmp.Diff([]string{"s2"}, keys); diff != "" {
		t.Fatal(diff)
	}
}

func testSortedSets(t *testing.T, builder Builder) {
	ctx := context.Background()
	store := builder(t)

	require.NoError(t, store.ZAdd(ctx, "z", 2, "b"))
	require.NoError(t, store.ZAdd(ctx, "z", 1, "c"))
	require.NoError(t, store.ZAdd(ctx, "z", 2, "a"))

	testCases := map[string]struct {
		min      int64
		max      int64
		expected []string
	}{
		"open": {
			min:      math.MinInt64,
			max:      math.MaxInt64,
			expected: []string{"c", "a", "b"},
		},
		"lower bound is inclusive": {
			min:      2,
			max:      math.MaxInt64,
			expected: []string{"a", "b"},
		},
		"upper bound is inclusive": {
			min:      math.MinInt64,
			max:      1,
			expected: []string{"c"},
		},
		"empty": {
			min:      3,
			max:      10,
			expected: []string{},
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			members, err := store.ZRangeByScore(ctx, "z", testCase.min, testCase.max)
			require.NoError(t, err)

			if diff := cmp.Diff(testCase.expected, members, equateEmpty); diff != "" {
				t.Fatal(diff)
			}
		})
	}

	require.NoError(t, store.ZAdd(ctx, "z", 5, "c"))

	n, err := store.ZRem(ctx, "z", "a", "missing")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	members, err := store.ZRangeByScore(ctx, "z", math.MinInt64, math.MaxInt64)
	require.NoError(t, err)

	if diff := cmp.Diff([]string{"b", "c"}, members); diff != "" {
		t.Fatal(diff)
	}
}

func testLists(t *testing.T, builder Builder) {
	ctx := context.Background()
	store := builder(t)

	n, err := store.LPush(ctx, "l", []byte("a"))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = store.LPush(ctx, "l", []byte("b"), []byte("c"))
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	values, err := store.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)

	if diff := cmp.Diff([][]byte{[]byte("c"), []byte("b"), []byte("a")}, values); diff != "" {
		t.Fatal(diff)
	}

	values, err = store.LRange(ctx, "l", -2, 10)
	require.NoError(t, err)

	if diff := cmp.Diff([][]byte{[]byte("b"), []byte("a")}, values); diff != "" {
		t.Fatal(diff)
	}

	values, err = store.LRange(ctx, "missing", 0, -1)
	require.NoError(t, err)
	require.Empty(t, values)

	n, err = store.LLen(ctx, "l")
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}

func testKeys(t *testing.T, builder Builder) {
	ctx := context.Background()
	store := builder(t)

	for _, key := range []string{"b", "a:2", "ab", "a:1", "a:*x"} {
		require.NoError(t, store.Set(ctx, key, []byte("v"), 0))
	}

	_, err := store.SAdd(ctx, "a:set", "m")
	require.NoError(t, err)

	testCases := map[string][]string{
		"":    {"a:*x", "a:1", "a:2", "a:set", "ab", "b"},
		"a:":  {"a:*x", "a:1", "a:2", "a:set"},
		"a:*": {"a:*x"},
		"c":   {},
	}

	for prefix, expected := range testCases {
		t.Run(prefix, func(t *testing.T) {
			keys, err := store.Keys(ctx, prefix)
			require.NoError(t, err)

			if diff := cmp.Diff(expected, keys, equateEmpty); diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func testBumpMax(t *testing.T, builder Builder) {
	ctx := context.Background()
	store := builder(t)

	steps := []struct {
		candidate int64
		expected  int64
	}{
		{candidate: 100, expected: 100},
		{candidate: 100, expected: 101},
		{candidate: 50, expected: 102},
		{candidate: 200, expected: 200},
		{candidate: 0, expected: 201},
	}

	for i, step := range steps {
		next, err := store.BumpMax(ctx, "ts", step.candidate)
		require.NoError(t, err)
		require.Equalf(t, step.expected, next, "step %d", i)
	}

	value, err := store.Get(ctx, "ts")
	require.NoError(t, err)
	require.Equal(t, []byte("201"), value)

	next, err := store.BumpMax(ctx, "fresh", 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), next)

	require.NoError(t, store.Set(ctx, "text", []byte("abc"), 0))

	_, err = store.BumpMax(ctx, "text", 10)

	if !errors.Is(err, kv.ErrNotInteger) {
		t.Fatalf("expected ErrNotInteger, got %v", err)
	}
}

func testExec(t *testing.T, builder Builder) {
	ctx := context.Background()
	store := builder(t)

	require.NoError(t, store.Set(ctx, "old", []byte("x"), 0))
	require.NoError(t, store.Exec(ctx,
		kv.SetOp("record", []byte("r"), 0),
		kv.SAddOp("ids", "1", "2"),
		kv.SRemOp("ids", "2"),
		kv.ZAddOp("index", 7, "1"),
		kv.DelOp("old"),
	))
	require.NoError(t, store.Exec(ctx))

	value, err := store.Get(ctx, "record")
	require.NoError(t, err)
	require.Equal(t, []byte("r"), value)

	members, err := store.SMembers(ctx, "ids")
	require.NoError(t, err)

	if diff := cmp.Diff([]string{"1"}, members); diff != "" {
		t.Fatal(diff)
	}

	members, err = store.ZRangeByScore(ctx, "index", 7, 7)
	require.NoError(t, err)

	if diff := cmp.Diff([]string{"1"}, members); diff != "" {
		t.Fatal(diff)
	}

	require.NoError(t, store.Exec(ctx, kv.ZRemOp("index", "1"), kv.SetOp("expiring", []byte("e"), time.Minute)))

	keys, err := store.Keys(ctx, "")
	require.NoError(t, err)

	if diff := cmp.Diff([]string{"expiring", "ids", "record"}, keys); diff != "" {
		t.Fatal(diff)
	}

	ttl, err := store.TTL(ctx, "expiring")
	require.NoError(t, err)
	require.Equal(t, time.Minute, ttl)
}

func testErrors(t *testing.T, builder Builder) {
	store := builder(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "string", []byte("v"), 0))

	_, err := store.SAdd(ctx, "string", "m")

	if !errors.Is(err, kv.ErrWrongType) {
		t.Fatalf("expected ErrWrongType, got %v", err)
	}

	if errors.Is(err, kv.ErrUnavailable) {
		t.Fatalf("a wrong type error should not look like an outage: %v", err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()

	_, err = store.Get(canceled, "string")

	if !errors.Is(err, kv.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	require.NoError(t, store.Close())

	_, err = store.Get(ctx, "string")

	if !errors.Is(err, kv.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
