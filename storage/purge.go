package storage

import (
	"context"
	"math"

	"github.com/jrife/kvbackend/storage/kv"
	"github.com/jrife/kvbackend/storage/kv/keys"
	"github.com/jrife/kvbackend/utils/log"
	"go.uber.org/zap"
)

const purgeBatchSize = 500

// PurgeOptions select the tombstones PurgeDeleted erases
type PurgeOptions struct {
	Filters []Filter
	// Before keeps tombstones whose timestamp is Before or
	// later. 0 purges regardless of age.
	Before int64
}

// PurgeDeleted erases the tombstones of collection that match
// options and returns how many were erased. collection may hold
// wildcards. Purging does not change collection timestamps.
func (storage *Storage) PurgeDeleted(ctx context.Context, collection keys.Collection, options PurgeOptions) (int, error) {
	logger := log.Operation(ctx, storage.logger, "PurgeDeleted")
	logger.Debug("start", zap.String("collection", collection.Prefix()), zap.Any("options", options))

	if storage.readOnly {
		return 0, storage.fail(logger, "", ErrReadOnly)
	}

	filters, err := compileFilters(options.Filters)

	if err != nil {
		return 0, storage.fail(logger, "", err)
	}

	max := int64(math.MaxInt64)

	if options.Before != 0 {
		if options.Before == math.MinInt64 {
			return 0, nil
		}

		max = options.Before - 1
	}

	min, max := scoreBounds(filters, math.MinInt64, max)

	if min > max {
		logger.Debug("return", zap.Int("purged", 0))

		return 0, nil
	}

	collections, err := storage.collections(ctx, collection)

	if err != nil {
		return 0, storage.fail(logger, "could not resolve collections", err)
	}

	purged := 0

	for _, c := range collections {
		tombstones, err := storage.readIndex(ctx, c, true, min, max)

		if err != nil {
			return purged, storage.fail(logger, "could not read tombstones", err)
		}

		ops := []kv.Op{}
		ids := []string{}

		for _, e := range tombstones {
			if !matchAll(filters, e.record) {
				continue
			}

			id := e.record.ID()
			ids = append(ids, id)
			ops = append(ops, kv.DelOp(c.Tombstone(id)))
		}

		for start := 0; start < len(ids); start += purgeBatchSize {
			end := start + purgeBatchSize

			if end > len(ids) {
				end = len(ids)
			}

			batch := append(ops[start:end:end], kv.ZRemOp(c.DeletedIndex(), ids[start:end]...))

			if err := storage.client.Exec(ctx, batch...); err != nil {
				return purged, storage.fail(logger, "could not purge tombstones", err)
			}

			purged += end - start
		}
	}

	logger.Debug("return", zap.Int("purged", purged))

	return purged, nil
}
