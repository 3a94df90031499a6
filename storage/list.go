package storage

import (
	"context"
	"math"
	"sort"

	"github.com/jrife/kvbackend/storage/kv/keys"
	"github.com/jrife/kvbackend/utils/log"
	"github.com/jrife/kvbackend/utils/stream"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ListOptions select, order and page the records of List
type ListOptions struct {
	Filters []Filter
	// Sort defaults to descending last_modified. Ties are
	// always broken by ascending id.
	Sort []Sort
	// Limit caps the page size. Limit <= 0 returns every record.
	Limit int
	// Token resumes a previous List. It must be used with
	// the Sort that produced it.
	Token string
	// IncludeDeleted lists tombstones alongside live records
	IncludeDeleted bool
}

// Page is one page of List results
type Page struct {
	Records []Record
	// Total counts every record matching the filters,
	// regardless of paging
	Total int
	// NextToken resumes the listing after the last record of
	// this page. It is empty on the last page.
	NextToken string
}

type ranked struct {
	entry
	position position
}

// List returns the records of collection matching options.
// collection may hold wildcards to list several collections
// at once.
func (storage *Storage) List(ctx context.Context, collection keys.Collection, options ListOptions) (Page, error) {
	logger := log.Operation(ctx, storage.logger, "List")
	logger.Debug("start", zap.String("collection", collection.Prefix()), zap.Any("options", options))

	entries, total, next, err := storage.list(ctx, logger, collection, options)

	if err != nil {
		return Page{}, storage.fail(logger, "could not list records", err)
	}

	page := Page{Records: make([]Record, len(entries)), Total: total, NextToken: next}

	for i, e := range entries {
		page.Records[i] = e.record
	}

	logger.Debug("return", zap.Int("records", len(page.Records)), zap.Int("total", total))

	return page, nil
}

func (storage *Storage) list(ctx context.Context, logger *zap.Logger, collection keys.Collection, options ListOptions) ([]entry, int, string, error) {
	filters, err := compileFilters(options.Filters)

	if err != nil {
		return nil, 0, "", err
	}

	sorting, err := validateSort(options.Sort)

	if err != nil {
		return nil, 0, "", err
	}

	var after *position

	if options.Token != "" {
		p, err := decodeToken(options.Token, sorting)

		if err != nil {
			return nil, 0, "", err
		}

		after = &p
	}

	candidates, err := storage.candidates(ctx, collection, filters, options.IncludeDeleted)

	if err != nil {
		return nil, 0, "", err
	}

	values := make([]interface{}, len(candidates))

	for i, e := range candidates {
		values[i] = ranked{entry: e, position: positionOf(sorting, e)}
	}

	total := 0
	window := 0

	if options.Limit > 0 {
		// one extra record tells whether another page follows
		window = options.Limit + 1
	}

	results, err := stream.Collect(stream.Pipeline(
		stream.Slice(values),
		stream.Filter(func(v interface{}) bool {
			return matchAll(filters, v.(ranked).record)
		}),
		stream.Count(&total),
		stream.Filter(func(v interface{}) bool {
			return after == nil || comparePositions(sorting, v.(ranked).position, *after) > 0
		}),
		stream.Sort(func(a, b interface{}) int {
			return comparePositions(sorting, a.(ranked).position, b.(ranked).position)
		}, window),
		stream.Limit(window),
		stream.Log(logger, "listed record", func(v interface{}) []zap.Field {
			r := v.(ranked)

			return []zap.Field{zap.String("collection", r.collection.Prefix()), zap.String("id", r.record.ID())}
		}),
	))

	if err != nil {
		return nil, 0, "", err
	}

	next := ""

	if options.Limit > 0 && len(results) > options.Limit {
		results = results[:options.Limit]
		next, err = encodeToken(results[len(results)-1].(ranked).position)

		if err != nil {
			return nil, 0, "", errors.Wrap(err, "could not encode pagination token")
		}
	}

	entries := make([]entry, len(results))

	for i, v := range results {
		entries[i] = v.(ranked).entry
	}

	logger.Debug("listed", zap.Int("candidates", len(candidates)), zap.Int("total", total))

	return entries, total, next, nil
}

// candidates reads the records of every collection designated
// by collection whose last_modified may satisfy filters
func (storage *Storage) candidates(ctx context.Context, collection keys.Collection, filters []compiledFilter, includeDeleted bool) ([]entry, error) {
	min, max := scoreBounds(filters, math.MinInt64, math.MaxInt64)

	if min > max {
		return nil, nil
	}

	collections, err := storage.collections(ctx, collection)

	if err != nil {
		return nil, err
	}

	candidates := []entry{}

	for _, c := range collections {
		live, err := storage.readIndex(ctx, c, false, min, max)

		if err != nil {
			return nil, err
		}

		candidates = append(candidates, live...)

		if !includeDeleted {
			continue
		}

		deleted, err := storage.readIndex(ctx, c, true, min, max)

		if err != nil {
			return nil, err
		}

		candidates = append(candidates, deleted...)
	}

	return candidates, nil
}

// collections resolves the wildcards of collection to the
// collections that have records or tombstones
func (storage *Storage) collections(ctx context.Context, collection keys.Collection) ([]keys.Collection, error) {
	if !collection.HasWildcard() {
		return []keys.Collection{collection}, nil
	}

	indexes, err := storage.client.Keys(ctx, collection.ScanPrefix())

	if err != nil {
		return nil, err
	}

	seen := map[keys.Collection]bool{}
	collections := []keys.Collection{}

	for _, key := range indexes {
		c, _, ok := keys.ParseIndexKey(key)

		if !ok || seen[c] || !collection.Matches(c) {
			continue
		}

		seen[c] = true
		collections = append(collections, c)
	}

	sort.Slice(collections, func(i, j int) bool {
		return collections[i].Prefix() < collections[j].Prefix()
	})

	return collections, nil
}

// readIndex reads the records, or tombstones, of c whose
// timestamp lies in [min, max]. Ids whose record vanished
// between the index read and the record read are skipped.
func (storage *Storage) readIndex(ctx context.Context, c keys.Collection, tombstones bool, min, max int64) ([]entry, error) {
	index := c.Index()

	if tombstones {
		index = c.DeletedIndex()
	}

	ids, err := storage.client.ZRangeByScore(ctx, index, min, max)

	if err != nil || len(ids) == 0 {
		return nil, err
	}

	recordKeys := make([]string, len(ids))

	for i, id := range ids {
		if tombstones {
			recordKeys[i] = c.Tombstone(id)
		} else {
			recordKeys[i] = c.Record(id)
		}
	}

	values, err := storage.client.MGet(ctx, recordKeys...)

	if err != nil {
		return nil, err
	}

	entries := make([]entry, 0, len(values))

	for i, value := range values {
		if value == nil {
			continue
		}

		record, err := decodeRecord(value)

		if err != nil {
			return nil, errors.Wrapf(err, "record %s", recordKeys[i])
		}

		entries = append(entries, entry{collection: c, record: record})
	}

	return entries, nil
}
