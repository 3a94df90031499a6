package storage_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jrife/kvbackend/listeners"
	"github.com/jrife/kvbackend/storage"
	"github.com/jrife/kvbackend/storage/kv"
	"github.com/jrife/kvbackend/storage/kv/keys"
	"github.com/jrife/kvbackend/storage/kv/kvtest"
	"github.com/stretchr/testify/require"
)

var (
	notes      = keys.Collection{Resource: "notes", Parent: "u1"}
	otherNotes = keys.Collection{Resource: "notes", Parent: "u2"}
	byID       = []storage.Sort{{Field: "id", Direction: 1}}
)

func TestStorage(t *testing.T) {
	for _, driver := range kvtest.Drivers() {
		t.Run(driver.Name, func(t *testing.T) {
			testStorage(t, driver.Builder)
		})
	}
}

type harness struct {
	storage *storage.Storage
	client  kv.Client
	wall    *kvtest.Clock
}

func newHarness(t *testing.T, builder kvtest.Builder, config storage.Config) harness {
	store := builder(t)
	wall := kvtest.NewClock(time.Unix(0, 100*int64(time.Millisecond)))
	config.Client = store.Client
	config.Now = wall.Now

	return harness{storage: storage.New(config), client: store.Client, wall: wall}
}

func ids(records []storage.Record) []string {
	result := []string{}

	for _, record := range records {
		result = append(result, record.ID())
	}

	return result
}

// hookedClient runs before once, just ahead of the next BumpMax
type hookedClient struct {
	kv.Client
	before func()
}

func (client *hookedClient) BumpMax(ctx context.Context, key string, candidate int64) (int64, error) {
	if before := client.before; before != nil {
		client.before = nil
		before()
	}

	return client.Client.BumpMax(ctx, key, candidate)
}

func newHookedHarness(t *testing.T, builder kvtest.Builder) (harness, *hookedClient) {
	store := builder(t)
	wall := kvtest.NewClock(time.Unix(0, 100*int64(time.Millisecond)))
	client := &hookedClient{Client: store.Client}

	return harness{storage: storage.New(storage.Config{Client: client, Now: wall.Now}), client: store.Client, wall: wall}, client
}

// requireConsistent checks that id is claimed exactly when
// its record can be read and that Create agrees with Get
func requireConsistent(t *testing.T, h harness, collection keys.Collection, id string) {
	ctx := context.Background()
	_, getErr := h.storage.Get(ctx, collection, id)

	if getErr != nil && !errors.Is(getErr, storage.ErrNotFound) {
		t.Fatalf("unexpected error %s", getErr)
	}

	claimed, err := h.client.SIsMember(ctx, collection.Records(), id)
	require.NoError(t, err)
	require.Equal(t, getErr == nil, claimed)

	_, err = h.storage.Create(ctx, collection, storage.Record{"id": id}, storage.CreateOptions{})

	if getErr == nil {
		require.True(t, errors.Is(err, storage.ErrUniqueConstraint), err)
	} else {
		require.NoError(t, err)
	}
}

func mustCreate(t *testing.T, s *storage.Storage, collection keys.Collection, record storage.Record) storage.Record {
	created, err := s.Create(context.Background(), collection, record, storage.CreateOptions{})
	require.NoError(t, err)

	return created
}

func testStorage(t *testing.T, builder kvtest.Builder) {
	t.Run("create update timestamps", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t, builder, storage.Config{})

		created, err := h.storage.Create(ctx, notes, storage.Record{"title": "a", "n": 1}, storage.CreateOptions{})
		require.NoError(t, err)
		require.NotEmpty(t, created.ID())
		require.Equal(t, int64(100), created.LastModified())

		fetched, err := h.storage.Get(ctx, notes, created.ID())
		require.NoError(t, err)

		if diff := cmp.Diff(created, fetched); diff != "" {
			t.Fatal(diff)
		}

		updated, err := h.storage.Update(ctx, notes, created.ID(), storage.Record{"title": "b"}, storage.UpdateOptions{})
		require.NoError(t, err)

		expected := storage.Record{"id": created.ID(), "title": "b", "last_modified": int64(101)}

		if diff := cmp.Diff(expected, updated); diff != "" {
			t.Fatal(diff)
		}

		fetched, err = h.storage.Get(ctx, notes, created.ID())
		require.NoError(t, err)

		if diff := cmp.Diff(expected, fetched); diff != "" {
			t.Fatal(diff)
		}

		timestamp, err := h.storage.ResourceTimestamp(ctx, notes)
		require.NoError(t, err)
		require.Equal(t, int64(101), timestamp)

		timestamp, err = h.storage.ResourceTimestamp(ctx, otherNotes)
		require.NoError(t, err)
		require.Equal(t, int64(0), timestamp)

		h.wall.Advance(time.Second)

		third := mustCreate(t, h.storage, notes, storage.Record{})
		require.Equal(t, int64(1100), third.LastModified())
	})

	t.Run("nested values survive storage", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t, builder, storage.Config{})

		created := mustCreate(t, h.storage, notes, storage.Record{
			"id":    "n1",
			"big":   int64(1) << 60,
			"ratio": 0.5,
			"tags":  []string{"a", "b"},
			"meta":  map[string]interface{}{"ok": true, "none": nil},
		})

		expected := storage.Record{
			"id":            "n1",
			"last_modified": int64(100),
			"big":           int64(1) << 60,
			"ratio":         0.5,
			"tags":          []interface{}{"a", "b"},
			"meta":          map[string]interface{}{"ok": true, "none": nil},
		}

		if diff := cmp.Diff(expected, created); diff != "" {
			t.Fatal(diff)
		}

		fetched, err := h.storage.Get(ctx, notes, "n1")
		require.NoError(t, err)

		if diff := cmp.Diff(expected, fetched); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("unique ids", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t, builder, storage.Config{})

		first := mustCreate(t, h.storage, notes, storage.Record{"id": "a", "v": 1})

		_, err := h.storage.Create(ctx, notes, storage.Record{"id": "a", "v": 2}, storage.CreateOptions{})

		var unique *storage.UniqueConstraintError

		if !errors.As(err, &unique) {
			t.Fatalf("expected a unique constraint error, got %v", err)
		}

		require.True(t, errors.Is(err, storage.ErrUniqueConstraint))
		require.Equal(t, "id", unique.Field)

		if diff := cmp.Diff(first, unique.Existing); diff != "" {
			t.Fatal(diff)
		}

		existing, err := h.storage.Create(ctx, notes, storage.Record{"id": "a", "v": 3}, storage.CreateOptions{IgnoreConflict: true})
		require.NoError(t, err)

		if diff := cmp.Diff(first, existing); diff != "" {
			t.Fatal(diff)
		}

		// same id in another collection
		mustCreate(t, h.storage, otherNotes, storage.Record{"id": "a"})

		_, err = h.storage.Delete(ctx, notes, "a", storage.DeleteOptions{})
		require.NoError(t, err)

		recreated := mustCreate(t, h.storage, notes, storage.Record{"id": "a", "v": 4})
		require.Equal(t, int64(4), recreated["v"])
	})

	t.Run("invalid records", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t, builder, storage.Config{})

		testCases := map[string]storage.Record{
			"numeric id": {"id": 1},
			"empty id":   {"id": ""},
			"bad value":  {"f": func() {}},
		}

		for name, record := range testCases {
			t.Run(name, func(t *testing.T) {
				_, err := h.storage.Create(ctx, notes, record, storage.CreateOptions{})

				if !errors.Is(err, storage.ErrInvalidRecord) {
					t.Fatalf("expected ErrInvalidRecord, got %v", err)
				}
			})
		}

		_, err := h.storage.Update(ctx, notes, "", storage.Record{}, storage.UpdateOptions{})
		require.True(t, errors.Is(err, storage.ErrInvalidRecord))
	})

	t.Run("update", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t, builder, storage.Config{})

		_, err := h.storage.Update(ctx, notes, "missing", storage.Record{}, storage.UpdateOptions{MustExist: true})

		if !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		upserted, err := h.storage.Update(ctx, notes, "b", storage.Record{"id": "ignored", "last_modified": 5, "v": 1}, storage.UpdateOptions{})
		require.NoError(t, err)

		if diff := cmp.Diff(storage.Record{"id": "b", "last_modified": int64(100), "v": int64(1)}, upserted); diff != "" {
			t.Fatal(diff)
		}

		_, err = h.storage.Update(ctx, notes, "b", storage.Record{"v": 2}, storage.UpdateOptions{MustExist: true})
		require.NoError(t, err)

		// updating a tombstoned id resurrects it
		_, err = h.storage.Delete(ctx, notes, "b", storage.DeleteOptions{})
		require.NoError(t, err)

		_, err = h.storage.Update(ctx, notes, "b", storage.Record{"v": 3}, storage.UpdateOptions{})
		require.NoError(t, err)

		page, err := h.storage.List(ctx, notes, storage.ListOptions{IncludeDeleted: true})
		require.NoError(t, err)

		if diff := cmp.Diff(storage.Page{
			Records: []storage.Record{{"id": "b", "last_modified": int64(103), "v": int64(3)}},
			Total:   1,
		}, page); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("delete", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t, builder, storage.Config{})

		mustCreate(t, h.storage, notes, storage.Record{"id": "a"})
		mustCreate(t, h.storage, notes, storage.Record{"id": "b"})
		mustCreate(t, h.storage, notes, storage.Record{"id": "c"})

		deleted, err := h.storage.Delete(ctx, notes, "a", storage.DeleteOptions{})
		require.NoError(t, err)

		if diff := cmp.Diff(storage.Record{"id": "a", "last_modified": int64(103), "deleted": true}, deleted); diff != "" {
			t.Fatal(diff)
		}

		_, err = h.storage.Get(ctx, notes, "a")
		require.True(t, errors.Is(err, storage.ErrNotFound))

		_, err = h.storage.Delete(ctx, notes, "a", storage.DeleteOptions{})
		require.True(t, errors.Is(err, storage.ErrNotFound))

		deleted, err = h.storage.Delete(ctx, notes, "b", storage.DeleteOptions{LastModified: 1000})
		require.NoError(t, err)
		require.Equal(t, int64(1000), deleted.LastModified())

		_, err = h.storage.Delete(ctx, notes, "c", storage.DeleteOptions{NoTombstone: true})
		require.NoError(t, err)

		timestamp, err := h.storage.ResourceTimestamp(ctx, notes)
		require.NoError(t, err)
		require.Equal(t, int64(1001), timestamp)

		page, err := h.storage.List(ctx, notes, storage.ListOptions{})
		require.NoError(t, err)
		require.Empty(t, page.Records)

		page, err = h.storage.List(ctx, notes, storage.ListOptions{IncludeDeleted: true, Sort: byID})
		require.NoError(t, err)

		expected := []storage.Record{
			{"id": "a", "last_modified": int64(103), "deleted": true},
			{"id": "b", "last_modified": int64(1000), "deleted": true},
		}

		if diff := cmp.Diff(expected, page.Records); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("create drops reserved fields", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t, builder, storage.Config{})

		created, err := h.storage.Create(ctx, notes, storage.Record{"id": "a", "deleted": true, "last_modified": 5}, storage.CreateOptions{})
		require.NoError(t, err)
		require.False(t, created.Deleted())

		fetched, err := h.storage.Get(ctx, notes, "a")
		require.NoError(t, err)

		if diff := cmp.Diff(storage.Record{"id": "a", "last_modified": int64(100)}, fetched); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("update during delete", func(t *testing.T) {
		ctx := context.Background()
		h, client := newHookedHarness(t, builder)

		mustCreate(t, h.storage, notes, storage.Record{"id": "a", "v": 1})

		var updated storage.Record

		client.before = func() {
			var err error
			updated, err = h.storage.Update(ctx, notes, "a", storage.Record{"v": 2}, storage.UpdateOptions{})
			require.NoError(t, err)
		}

		deleted, err := h.storage.Delete(ctx, notes, "a", storage.DeleteOptions{})
		require.NoError(t, err)
		require.Equal(t, int64(101), updated.LastModified())
		require.Equal(t, int64(102), deleted.LastModified())

		requireConsistent(t, h, notes, "a")
	})

	t.Run("delete during create", func(t *testing.T) {
		ctx := context.Background()
		h, client := newHookedHarness(t, builder)

		var deleted storage.Record

		client.before = func() {
			var err error
			deleted, err = h.storage.Delete(ctx, notes, "a", storage.DeleteOptions{})
			require.NoError(t, err)
		}

		created, err := h.storage.Create(ctx, notes, storage.Record{"id": "a"}, storage.CreateOptions{})
		require.NoError(t, err)
		require.Equal(t, int64(100), deleted.LastModified())
		require.Equal(t, int64(101), created.LastModified())

		page, err := h.storage.List(ctx, notes, storage.ListOptions{IncludeDeleted: true})
		require.NoError(t, err)

		if diff := cmp.Diff([]storage.Record{created}, page.Records); diff != "" {
			t.Fatal(diff)
		}

		requireConsistent(t, h, notes, "a")
	})

	t.Run("concurrent mutations of one record", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t, builder, storage.Config{})

		const workers = 8
		const rounds = 30

		var (
			wg         sync.WaitGroup
			mu         sync.Mutex
			timestamps = map[int64]bool{}
		)

		for w := 0; w < workers; w++ {
			wg.Add(1)

			go func(w int) {
				defer wg.Done()

				var last int64

				for i := 0; i < rounds; i++ {
					var (
						record storage.Record
						err    error
					)

					switch (w + i) % 3 {
					case 0:
						record, err = h.storage.Create(ctx, notes, storage.Record{"id": "a", "w": w}, storage.CreateOptions{})
					case 1:
						record, err = h.storage.Update(ctx, notes, "a", storage.Record{"w": w}, storage.UpdateOptions{})
					default:
						record, err = h.storage.Delete(ctx, notes, "a", storage.DeleteOptions{})
					}

					if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrUniqueConstraint) {
						continue
					}

					if err != nil {
						t.Errorf("unexpected error %s", err)

						return
					}

					if record.LastModified() <= last {
						t.Errorf("timestamp %d is not after %d", record.LastModified(), last)
					}

					last = record.LastModified()

					mu.Lock()

					if timestamps[last] {
						t.Errorf("timestamp %d returned twice", last)
					}

					timestamps[last] = true
					mu.Unlock()
				}
			}(w)
		}

		wg.Wait()
		requireConsistent(t, h, notes, "a")
	})

	t.Run("filters", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t, builder, storage.Config{})

		// last_modified: a=100 b=101 c=102 d=103
		mustCreate(t, h.storage, notes, storage.Record{
			"id": "a", "n": 1, "tag": "x", "tags": []string{"x", "y"}, "title": "Hello World", "author": map[string]interface{}{"name": "ann"},
		})
		mustCreate(t, h.storage, notes, storage.Record{
			"id": "b", "n": 2, "tag": "y", "tags": []string{"y"}, "title": "hello there",
		})
		mustCreate(t, h.storage, notes, storage.Record{
			"id": "c", "n": 3, "tag": "x", "title": "bye", "author": map[string]interface{}{"name": "bob"},
		})
		mustCreate(t, h.storage, notes, storage.Record{
			"id": "d", "n": "3", "tags": []string{},
		})

		testCases := map[string]struct {
			filters  []storage.Filter
			expected []string
		}{
			"none":            {expected: []string{"a", "b", "c", "d"}},
			"eq":              {filters: []storage.Filter{{Field: "tag", Operator: storage.OpEq, Value: "x"}}, expected: []string{"a", "c"}},
			"eq number":       {filters: []storage.Filter{{Field: "n", Operator: storage.OpEq, Value: 3}}, expected: []string{"c"}},
			"eq numeric id":   {filters: []storage.Filter{{Field: "id", Operator: storage.OpEq, Value: 1}}, expected: []string{}},
			"not":             {filters: []storage.Filter{{Field: "tag", Operator: storage.OpNot, Value: "x"}}, expected: []string{"b", "d"}},
			"lt":              {filters: []storage.Filter{{Field: "n", Operator: storage.OpLt, Value: 3}}, expected: []string{"a", "b"}},
			"max":             {filters: []storage.Filter{{Field: "n", Operator: storage.OpMax, Value: 3}}, expected: []string{"a", "b", "c"}},
			"gt":              {filters: []storage.Filter{{Field: "n", Operator: storage.OpGt, Value: 1}}, expected: []string{"b", "c"}},
			"min":             {filters: []storage.Filter{{Field: "n", Operator: storage.OpMin, Value: 2}}, expected: []string{"b", "c"}},
			"min string":      {filters: []storage.Filter{{Field: "n", Operator: storage.OpMin, Value: "0"}}, expected: []string{"d"}},
			"in":              {filters: []storage.Filter{{Field: "n", Operator: storage.OpIn, Value: []int{1, 3}}}, expected: []string{"a", "c"}},
			"in ids":          {filters: []storage.Filter{{Field: "id", Operator: storage.OpIn, Value: []string{"b", "d", "z"}}}, expected: []string{"b", "d"}},
			"exclude":         {filters: []storage.Filter{{Field: "tag", Operator: storage.OpExclude, Value: []string{"x"}}}, expected: []string{"b", "d"}},
			"like":            {filters: []storage.Filter{{Field: "title", Operator: storage.OpLike, Value: "HELLO"}}, expected: []string{"a", "b"}},
			"like pattern":    {filters: []storage.Filter{{Field: "title", Operator: storage.OpLike, Value: "*world"}}, expected: []string{"a"}},
			"has":             {filters: []storage.Filter{{Field: "author", Operator: storage.OpHas, Value: true}}, expected: []string{"a", "c"}},
			"has not":         {filters: []storage.Filter{{Field: "author", Operator: storage.OpHas, Value: false}}, expected: []string{"b", "d"}},
			"contains":        {filters: []storage.Filter{{Field: "tags", Operator: storage.OpContains, Value: []string{"x", "y"}}}, expected: []string{"a"}},
			"contains scalar": {filters: []storage.Filter{{Field: "tags", Operator: storage.OpContains, Value: "y"}}, expected: []string{"a", "b"}},
			"contains any":    {filters: []storage.Filter{{Field: "tags", Operator: storage.OpContainsAny, Value: []string{"x", "z"}}}, expected: []string{"a"}},
			"nested field":    {filters: []storage.Filter{{Field: "author.name", Operator: storage.OpEq, Value: "bob"}}, expected: []string{"c"}},
			"timestamp range": {filters: []storage.Filter{{Field: "last_modified", Operator: storage.OpMin, Value: 101}, {Field: "last_modified", Operator: storage.OpLt, Value: 103}}, expected: []string{"b", "c"}},
			"timestamp eq":    {filters: []storage.Filter{{Field: "last_modified", Operator: storage.OpEq, Value: 103}}, expected: []string{"d"}},
			"timestamp empty": {filters: []storage.Filter{{Field: "last_modified", Operator: storage.OpGt, Value: 103}}, expected: []string{}},
			"several filters": {filters: []storage.Filter{{Field: "tag", Operator: storage.OpEq, Value: "x"}, {Field: "n", Operator: storage.OpGt, Value: 1}}, expected: []string{"c"}},
			"missing field":   {filters: []storage.Filter{{Field: "nope", Operator: storage.OpEq, Value: nil}}, expected: []string{}},
			"in with null":    {filters: []storage.Filter{{Field: "tag", Operator: storage.OpIn, Value: []interface{}{nil, "y"}}}, expected: []string{"b"}},
		}

		for name, testCase := range testCases {
			t.Run(name, func(t *testing.T) {
				page, err := h.storage.List(ctx, notes, storage.ListOptions{Filters: testCase.filters, Sort: byID})
				require.NoError(t, err)

				if diff := cmp.Diff(testCase.expected, ids(page.Records)); diff != "" {
					t.Fatal(diff)
				}

				require.Equal(t, len(testCase.expected), page.Total)
			})
		}
	})

	t.Run("invalid filters", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t, builder, storage.Config{})

		testCases := map[string]storage.ListOptions{
			"unknown operator": {Filters: []storage.Filter{{Field: "n", Operator: "near", Value: 1}}},
			"empty field":      {Filters: []storage.Filter{{Operator: storage.OpEq, Value: 1}}},
			"ordering on list": {Filters: []storage.Filter{{Field: "n", Operator: storage.OpLt, Value: []int{1}}}},
			"in scalar":        {Filters: []storage.Filter{{Field: "n", Operator: storage.OpIn, Value: 1}}},
			"like number":      {Filters: []storage.Filter{{Field: "n", Operator: storage.OpLike, Value: 1}}},
			"has string":       {Filters: []storage.Filter{{Field: "n", Operator: storage.OpHas, Value: "yes"}}},
			"bad sort":         {Sort: []storage.Sort{{Field: "n", Direction: 0}}},
			"empty sort field": {Sort: []storage.Sort{{Direction: 1}}},
		}

		for name, options := range testCases {
			t.Run(name, func(t *testing.T) {
				_, err := h.storage.List(ctx, notes, options)

				if !errors.Is(err, storage.ErrInvalidFilter) {
					t.Fatalf("expected ErrInvalidFilter, got %v", err)
				}
			})
		}

		for _, token := range []string{"!!!", "bm90IGpzb24", "eyJ2IjpbMSwyXSwiaWQiOiJhIn0"} {
			_, err := h.storage.List(ctx, notes, storage.ListOptions{Token: token})

			if !errors.Is(err, storage.ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken for %q, got %v", token, err)
			}
		}
	})

	t.Run("sort", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t, builder, storage.Config{})

		mustCreate(t, h.storage, notes, storage.Record{"id": "a", "n": 2, "s": "x"})
		mustCreate(t, h.storage, notes, storage.Record{"id": "b", "n": 1})
		mustCreate(t, h.storage, notes, storage.Record{"id": "c", "n": 2, "s": "w"})
		mustCreate(t, h.storage, notes, storage.Record{"id": "d", "n": 1.5, "s": 3})

		testCases := map[string]struct {
			sort     []string
			expected []string
		}{
			"default":            {expected: []string{"d", "c", "b", "a"}},
			"ascending":          {sort: []string{"n"}, expected: []string{"b", "d", "a", "c"}},
			"descending":         {sort: []string{"-n"}, expected: []string{"a", "c", "d", "b"}},
			"several fields":     {sort: []string{"-n", "s"}, expected: []string{"c", "a", "d", "b"}},
			"mixed types":        {sort: []string{"s"}, expected: []string{"b", "d", "c", "a"}},
			"explicit ascending": {sort: []string{"+last_modified"}, expected: []string{"a", "b", "c", "d"}},
		}

		for name, testCase := range testCases {
			t.Run(name, func(t *testing.T) {
				sorting := []storage.Sort{}

				for _, s := range testCase.sort {
					sorting = append(sorting, storage.ParseSort(s))
				}

				page, err := h.storage.List(ctx, notes, storage.ListOptions{Sort: sorting})
				require.NoError(t, err)

				if diff := cmp.Diff(testCase.expected, ids(page.Records)); diff != "" {
					t.Fatal(diff)
				}
			})
		}
	})

	t.Run("pagination", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t, builder, storage.Config{})

		for i, n := range []int{3, 1, 2, 3, 1, 2, 3} {
			mustCreate(t, h.storage, notes, storage.Record{"id": string(rune('a' + i)), "n": n})
		}

		for _, sorting := range [][]storage.Sort{
			nil,
			{storage.ParseSort("n")},
			{storage.ParseSort("-n")},
			{storage.ParseSort("missing")},
		} {
			all, err := h.storage.List(ctx, notes, storage.ListOptions{Sort: sorting})
			require.NoError(t, err)
			require.Len(t, all.Records, 7)
			require.Empty(t, all.NextToken)

			paged := []string{}
			options := storage.ListOptions{Sort: sorting, Limit: 2}
			pages := 0

			for {
				page, err := h.storage.List(ctx, notes, options)
				require.NoError(t, err)
				require.Equal(t, 7, page.Total)
				require.LessOrEqual(t, len(page.Records), 2)

				paged = append(paged, ids(page.Records)...)
				pages++

				if page.NextToken == "" {
					break
				}

				options.Token = page.NextToken
			}

			require.Equal(t, 4, pages)

			if diff := cmp.Diff(ids(all.Records), paged); diff != "" {
				t.Fatal(diff)
			}
		}
	})

	t.Run("pagination with concurrent inserts", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t, builder, storage.Config{})

		for _, id := range []string{"a", "b", "c", "d", "e"} {
			mustCreate(t, h.storage, notes, storage.Record{"id": id})
		}

		first, err := h.storage.List(ctx, notes, storage.ListOptions{Limit: 2})
		require.NoError(t, err)
		require.Equal(t, []string{"e", "d"}, ids(first.Records))

		mustCreate(t, h.storage, notes, storage.Record{"id": "f"})

		rest, err := h.storage.List(ctx, notes, storage.ListOptions{Token: first.NextToken})
		require.NoError(t, err)
		require.Equal(t, []string{"c", "b", "a"}, ids(rest.Records))
		require.Equal(t, 6, rest.Total)
	})

	t.Run("wildcard collections", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t, builder, storage.Config{})

		mustCreate(t, h.storage, notes, storage.Record{"id": "a"})
		mustCreate(t, h.storage, otherNotes, storage.Record{"id": "a"})
		mustCreate(t, h.storage, otherNotes, storage.Record{"id": "b"})
		mustCreate(t, h.storage, keys.Collection{Resource: "notes", Parent: "u1", Extra: "x"}, storage.Record{"id": "c"})
		mustCreate(t, h.storage, keys.Collection{Resource: "tasks", Parent: "u1"}, storage.Record{"id": "d"})

		testCases := map[string]struct {
			collection keys.Collection
			expected   []string
		}{
			"every parent":   {collection: keys.Collection{Resource: "notes", Parent: keys.Wildcard}, expected: []string{"a", "a", "b", "c"}},
			"every resource": {collection: keys.Collection{Parent: keys.Wildcard}, expected: []string{"a", "a", "b", "c", "d"}},
			"one parent":     {collection: keys.Collection{Resource: "notes", Parent: "u1", Extra: "x"}, expected: []string{"c"}},
		}

		for name, testCase := range testCases {
			t.Run(name, func(t *testing.T) {
				page, err := h.storage.List(ctx, testCase.collection, storage.ListOptions{Sort: byID})
				require.NoError(t, err)

				if diff := cmp.Diff(testCase.expected, ids(page.Records)); diff != "" {
					t.Fatal(diff)
				}
			})
		}

		wildcard := keys.Collection{Resource: "notes", Parent: keys.Wildcard}
		paged := []string{}
		options := storage.ListOptions{Sort: byID, Limit: 1}

		for {
			page, err := h.storage.List(ctx, wildcard, options)
			require.NoError(t, err)

			paged = append(paged, ids(page.Records)...)

			if page.NextToken == "" {
				break
			}

			options.Token = page.NextToken
		}

		require.Equal(t, []string{"a", "a", "b", "c"}, paged)

		_, err := h.storage.Get(ctx, wildcard, "a")
		require.True(t, errors.Is(err, storage.ErrInvalidCollection))

		_, err = h.storage.Create(ctx, wildcard, storage.Record{}, storage.CreateOptions{})
		require.True(t, errors.Is(err, storage.ErrInvalidCollection))

		_, err = h.storage.ResourceTimestamp(ctx, wildcard)
		require.True(t, errors.Is(err, storage.ErrInvalidCollection))
	})

	t.Run("delete all", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t, builder, storage.Config{})

		for i, n := range []int{1, 2, 3, 4} {
			mustCreate(t, h.storage, notes, storage.Record{"id": string(rune('a' + i)), "n": n})
		}

		mustCreate(t, h.storage, otherNotes, storage.Record{"id": "a", "n": 1})

		deleted, err := h.storage.DeleteAll(ctx, keys.Collection{Resource: "notes", Parent: keys.Wildcard}, storage.ListOptions{
			Filters: []storage.Filter{{Field: "n", Operator: storage.OpMax, Value: 2}},
			Sort:    []storage.Sort{storage.ParseSort("-n")},
		})
		require.NoError(t, err)

		expected := []storage.Record{
			{"id": "b", "last_modified": int64(104), "deleted": true},
			{"id": "a", "last_modified": int64(105), "deleted": true},
			{"id": "a", "last_modified": int64(101), "deleted": true},
		}

		if diff := cmp.Diff(expected, deleted); diff != "" {
			t.Fatal(diff)
		}

		page, err := h.storage.List(ctx, notes, storage.ListOptions{Sort: byID})
		require.NoError(t, err)
		require.Equal(t, []string{"c", "d"}, ids(page.Records))

		deleted, err = h.storage.DeleteAll(ctx, notes, storage.ListOptions{Limit: 1, Sort: byID})
		require.NoError(t, err)
		require.Equal(t, []string{"c"}, ids(deleted))
	})

	t.Run("purge deleted", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t, builder, storage.Config{})

		for _, collection := range []keys.Collection{notes, otherNotes} {
			for _, id := range []string{"a", "b", "c"} {
				mustCreate(t, h.storage, collection, storage.Record{"id": id, "kind": id})
				_, err := h.storage.Delete(ctx, collection, id, storage.DeleteOptions{})
				require.NoError(t, err)
			}
		}

		mustCreate(t, h.storage, notes, storage.Record{"id": "live"})

		before, err := h.storage.ResourceTimestamp(ctx, notes)
		require.NoError(t, err)

		// tombstones of notes: a=101 b=103 c=105
		purged, err := h.storage.PurgeDeleted(ctx, notes, storage.PurgeOptions{Before: 103})
		require.NoError(t, err)
		require.Equal(t, 1, purged)

		purged, err = h.storage.PurgeDeleted(ctx, keys.Collection{Resource: "notes", Parent: keys.Wildcard}, storage.PurgeOptions{
			Filters: []storage.Filter{{Field: "id", Operator: storage.OpIn, Value: []string{"a", "b"}}},
		})
		require.NoError(t, err)
		require.Equal(t, 3, purged)

		page, err := h.storage.List(ctx, keys.Collection{Resource: "notes", Parent: keys.Wildcard}, storage.ListOptions{IncludeDeleted: true, Sort: byID})
		require.NoError(t, err)
		require.Equal(t, []string{"c", "c", "live"}, ids(page.Records))

		after, err := h.storage.ResourceTimestamp(ctx, notes)
		require.NoError(t, err)
		require.Equal(t, before, after)

		purged, err = h.storage.PurgeDeleted(ctx, keys.Collection{Parent: keys.Wildcard}, storage.PurgeOptions{})
		require.NoError(t, err)
		require.Equal(t, 2, purged)

		page, err = h.storage.List(ctx, notes, storage.ListOptions{IncludeDeleted: true})
		require.NoError(t, err)
		require.Equal(t, []string{"live"}, ids(page.Records))
	})

	t.Run("read only", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t, builder, storage.Config{})
		mustCreate(t, h.storage, notes, storage.Record{"id": "a"})

		readOnly := storage.New(storage.Config{Client: h.client, ReadOnly: true})

		_, err := readOnly.Create(ctx, notes, storage.Record{}, storage.CreateOptions{})
		require.True(t, errors.Is(err, storage.ErrReadOnly))

		_, err = readOnly.Update(ctx, notes, "a", storage.Record{}, storage.UpdateOptions{})
		require.True(t, errors.Is(err, storage.ErrReadOnly))

		_, err = readOnly.Delete(ctx, notes, "a", storage.DeleteOptions{})
		require.True(t, errors.Is(err, storage.ErrReadOnly))

		_, err = readOnly.DeleteAll(ctx, notes, storage.ListOptions{})
		require.True(t, errors.Is(err, storage.ErrReadOnly))

		_, err = readOnly.PurgeDeleted(ctx, notes, storage.PurgeOptions{})
		require.True(t, errors.Is(err, storage.ErrReadOnly))

		require.True(t, errors.Is(readOnly.Flush(ctx), storage.ErrReadOnly))

		record, err := readOnly.Get(ctx, notes, "a")
		require.NoError(t, err)
		require.Equal(t, "a", record.ID())

		page, err := readOnly.List(ctx, notes, storage.ListOptions{})
		require.NoError(t, err)
		require.Len(t, page.Records, 1)

		timestamp, err := readOnly.ResourceTimestamp(ctx, otherNotes)
		require.NoError(t, err)
		require.Equal(t, int64(0), timestamp)
	})

	t.Run("listeners", func(t *testing.T) {
		ctx := context.Background()

		var mu sync.Mutex
		events := []listeners.Event{}
		listener := listeners.ListenerFunc(func(ctx context.Context, event listeners.Event) {
			mu.Lock()
			defer mu.Unlock()

			events = append(events, event)
		})

		h := newHarness(t, builder, storage.Config{
			Listeners:   []listeners.Listener{listener},
			IDGenerator: func() string { return "generated" },
		})

		mustCreate(t, h.storage, notes, storage.Record{"v": 1})
		_, err := h.storage.Update(ctx, notes, "generated", storage.Record{"v": 2}, storage.UpdateOptions{})
		require.NoError(t, err)
		_, err = h.storage.Delete(ctx, notes, "generated", storage.DeleteOptions{})
		require.NoError(t, err)

		// failures are not reported
		_, err = h.storage.Delete(ctx, notes, "generated", storage.DeleteOptions{})
		require.Error(t, err)

		expected := []listeners.Event{
			{Action: listeners.ActionCreate, Resource: "notes", Parent: "u1", ID: "generated", Timestamp: 100, Record: storage.Record{"id": "generated", "last_modified": int64(100), "v": int64(1)}},
			{Action: listeners.ActionUpdate, Resource: "notes", Parent: "u1", ID: "generated", Timestamp: 101, Record: storage.Record{"id": "generated", "last_modified": int64(101), "v": int64(2)}},
			{Action: listeners.ActionDelete, Resource: "notes", Parent: "u1", ID: "generated", Timestamp: 102, Record: storage.Record{"id": "generated", "last_modified": int64(102), "deleted": true}},
		}

		if diff := cmp.Diff(expected, events); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("flush", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t, builder, storage.Config{})

		mustCreate(t, h.storage, notes, storage.Record{"id": "a"})
		mustCreate(t, h.storage, otherNotes, storage.Record{"id": "b"})
		require.NoError(t, h.client.Set(ctx, keys.Cache("", "k"), []byte(`"v"`), 0))

		require.NoError(t, h.storage.Flush(ctx))

		remaining, err := h.client.Keys(ctx, "")
		require.NoError(t, err)
		require.Equal(t, []string{keys.Cache("", "k")}, remaining)

		timestamp, err := h.storage.ResourceTimestamp(ctx, notes)
		require.NoError(t, err)
		require.Equal(t, int64(0), timestamp)
	})
}

func TestStorageUnavailable(t *testing.T) {
	store := kvtest.Memory(t)
	s := storage.New(storage.Config{Client: store.Client})
	ctx := context.Background()

	require.NoError(t, store.Close())

	_, err := s.Create(ctx, notes, storage.Record{}, storage.CreateOptions{})
	require.True(t, errors.Is(err, storage.ErrBackendUnavailable), err)

	_, err = s.Get(ctx, notes, "a")
	require.True(t, errors.Is(err, storage.ErrBackendUnavailable), err)

	_, err = s.List(ctx, notes, storage.ListOptions{})
	require.True(t, errors.Is(err, storage.ErrBackendUnavailable), err)

	_, err = s.ResourceTimestamp(ctx, notes)
	require.True(t, errors.Is(err, storage.ErrBackendUnavailable), err)
}
