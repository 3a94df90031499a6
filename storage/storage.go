// Package storage keeps records in collections on top of a KV store.
//
// A collection is a set of KV keys sharing a prefix:
// a record key per live record, a tombstone key per deleted
// record, a set of claimed ids, two sorted sets indexing live
// records and tombstones by timestamp, and the collection
// timestamp. Each mutation bumps the collection timestamp and
// then applies its writes in one atomic batch. There is no
// transaction spanning both steps: a failure in between leaves
// a gap in the timestamps and nothing else.
package storage

import (
	"context"
	"time"

	"github.com/jrife/kvbackend/clock"
	"github.com/jrife/kvbackend/listeners"
	"github.com/jrife/kvbackend/storage/kv"
	"github.com/jrife/kvbackend/storage/kv/keys"
	"github.com/jrife/kvbackend/utils/log"
	"github.com/jrife/kvbackend/utils/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const flushBatchSize = 1000

// Config contains configuration for a Storage
type Config struct {
	Client kv.Client
	Logger *zap.Logger
	// IDGenerator returns ids for records created without one.
	// Defaults to random UUIDs.
	IDGenerator func() string
	// ReadOnly rejects every mutation with ErrReadOnly
	ReadOnly bool
	// Listeners are notified after each successful mutation
	Listeners []listeners.Listener
	// Now replaces the wall clock used for timestamps
	Now func() time.Time
}

// Storage is the record storage backend
type Storage struct {
	client    kv.Client
	logger    *zap.Logger
	clock     *clock.Clock
	newID     func() string
	readOnly  bool
	listeners []listeners.Listener
}

// New creates a storage backend over the KV store in config
func New(config Config) *Storage {
	storage := &Storage{
		client:    config.Client,
		logger:    config.Logger,
		newID:     config.IDGenerator,
		readOnly:  config.ReadOnly,
		listeners: config.Listeners,
	}

	if storage.logger == nil {
		storage.logger = zap.L()
	}

	if storage.newID == nil {
		storage.newID = uuid.MustUUID
	}

	storage.clock = clock.New(clock.Config{Client: config.Client, Logger: storage.logger, Now: config.Now})

	return storage
}

// CreateOptions modify Create
type CreateOptions struct {
	// IgnoreConflict returns the existing record instead of
	// failing when the id is taken
	IgnoreConflict bool
}

// UpdateOptions modify Update
type UpdateOptions struct {
	// MustExist fails with ErrNotFound instead of
	// creating a record that does not exist
	MustExist bool
}

// DeleteOptions modify Delete
type DeleteOptions struct {
	// LastModified requests a tombstone timestamp. It is used
	// when it is ahead of the collection timestamp.
	LastModified int64
	// NoTombstone erases the record without leaving a tombstone
	NoTombstone bool
}

func (storage *Storage) fail(logger *zap.Logger, wrap string, err error) error {
	err = wrapError(wrap, err)

	if errors.Is(err, kv.ErrUnavailable) {
		logger.Error(wrap, zap.Error(err))
	} else {
		logger.Debug("error", zap.Error(err))
	}

	return err
}

func (storage *Storage) checkWritable(collection keys.Collection) error {
	if storage.readOnly {
		return ErrReadOnly
	}

	return checkCollection(collection)
}

func checkCollection(collection keys.Collection) error {
	if collection.HasWildcard() {
		return errors.Wrapf(ErrInvalidCollection, "%s/%s", collection.Resource, collection.Parent)
	}

	return nil
}

func (storage *Storage) notify(ctx context.Context, action listeners.Action, collection keys.Collection, record Record) {
	event := listeners.Event{
		Action:    action,
		Resource:  collection.Resource,
		Parent:    collection.Parent,
		ID:        record.ID(),
		Timestamp: record.LastModified(),
		Record:    record,
	}

	for _, listener := range storage.listeners {
		listener.Notify(ctx, event)
	}
}

// Create stores a new record in collection and returns it with
// its id and last_modified set. A record without id gets a
// generated one. It fails with a *UniqueConstraintError when a
// live record has the same id. A tombstoned id can be reused.
func (storage *Storage) Create(ctx context.Context, collection keys.Collection, record Record, options CreateOptions) (Record, error) {
	logger := log.Operation(ctx, storage.logger, "Create")
	logger.Debug("start", zap.String("collection", collection.Prefix()), zap.Any("record", record))

	if err := storage.checkWritable(collection); err != nil {
		return nil, storage.fail(logger, "", err)
	}

	record, err := normalizeRecord(record)

	if err != nil {
		return nil, storage.fail(logger, "", err)
	}

	delete(record, FieldLastModified)
	delete(record, FieldDeleted)

	if _, ok := record[FieldID]; !ok {
		record[FieldID] = storage.newID()
	}

	id, ok := record[FieldID].(string)

	if !ok || id == "" {
		return nil, storage.fail(logger, "", errors.Wrap(ErrInvalidRecord, "id must be a non-empty string"))
	}

	claimed, err := storage.client.SAdd(ctx, collection.Records(), id)

	if err != nil {
		return nil, storage.fail(logger, "could not claim record id", err)
	}

	if claimed == 0 {
		existing, err := storage.get(ctx, collection, id)

		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, storage.fail(logger, "could not read existing record", err)
		}

		if options.IgnoreConflict && existing != nil {
			logger.Debug("return existing", zap.Any("record", existing))

			return existing, nil
		}

		return nil, storage.fail(logger, "", &UniqueConstraintError{Field: FieldID, Existing: existing})
	}

	if err := storage.write(ctx, collection, record, 0); err != nil {
		storage.unclaim(ctx, logger, collection, id)

		return nil, storage.fail(logger, "could not create record", err)
	}

	storage.notify(ctx, listeners.ActionCreate, collection, record)
	logger.Debug("return", zap.Any("record", record))

	return record, nil
}

func (storage *Storage) unclaim(ctx context.Context, logger *zap.Logger, collection keys.Collection, id string) {
	if _, err := storage.client.SRem(ctx, collection.Records(), id); err != nil {
		logger.Error("could not release record id", zap.String("id", id), zap.Error(err))
	}
}

// write stamps record with a new timestamp and stores it
// along with its index entries, clearing any tombstone
func (storage *Storage) write(ctx context.Context, collection keys.Collection, record Record, at int64) error {
	timestamp, err := storage.clock.BumpAt(ctx, collection, at)

	if err != nil {
		return err
	}

	record[FieldLastModified] = timestamp
	id := record.ID()
	encoded, err := encodeRecord(record)

	if err != nil {
		return errors.Wrapf(ErrInvalidRecord, "could not encode record: %s", err)
	}

	return storage.client.Exec(ctx,
		kv.SetOp(collection.Record(id), encoded, 0),
		kv.SAddOp(collection.Records(), id),
		kv.ZAddOp(collection.Index(), timestamp, id),
		kv.DelOp(collection.Tombstone(id)),
		kv.ZRemOp(collection.DeletedIndex(), id),
	)
}

// Get returns the live record with id
func (storage *Storage) Get(ctx context.Context, collection keys.Collection, id string) (Record, error) {
	logger := log.Operation(ctx, storage.logger, "Get")
	logger.Debug("start", zap.String("collection", collection.Prefix()), zap.String("id", id))

	if err := checkCollection(collection); err != nil {
		return nil, storage.fail(logger, "", err)
	}

	record, err := storage.get(ctx, collection, id)

	if err != nil {
		return nil, storage.fail(logger, "could not read record", err)
	}

	logger.Debug("return", zap.Any("record", record))

	return record, nil
}

func (storage *Storage) get(ctx context.Context, collection keys.Collection, id string) (Record, error) {
	encoded, err := storage.client.Get(ctx, collection.Record(id))

	if err != nil {
		return nil, err
	}

	if encoded == nil {
		return nil, errors.Wrap(ErrNotFound, id)
	}

	return decodeRecord(encoded)
}

// Update replaces the fields of the record with id and stamps it
// with a new timestamp. The id field is always id. A record that
// does not exist is created, resurrecting a tombstoned id, unless
// options.MustExist is set. Concurrent updates of one record never
// mix fields but may be stored in another order than their
// timestamps.
func (storage *Storage) Update(ctx context.Context, collection keys.Collection, id string, record Record, options UpdateOptions) (Record, error) {
	logger := log.Operation(ctx, storage.logger, "Update")
	logger.Debug("start", zap.String("collection", collection.Prefix()), zap.String("id", id), zap.Any("record", record))

	if err := storage.checkWritable(collection); err != nil {
		return nil, storage.fail(logger, "", err)
	}

	if id == "" {
		return nil, storage.fail(logger, "", errors.Wrap(ErrInvalidRecord, "id must be a non-empty string"))
	}

	record, err := normalizeRecord(record)

	if err != nil {
		return nil, storage.fail(logger, "", err)
	}

	if options.MustExist {
		exists, err := storage.client.SIsMember(ctx, collection.Records(), id)

		if err != nil {
			return nil, storage.fail(logger, "could not check record existence", err)
		}

		if !exists {
			return nil, storage.fail(logger, "", errors.Wrap(ErrNotFound, id))
		}
	}

	record[FieldID] = id
	delete(record, FieldLastModified)
	delete(record, FieldDeleted)

	if err := storage.write(ctx, collection, record, 0); err != nil {
		return nil, storage.fail(logger, "could not update record", err)
	}

	storage.notify(ctx, listeners.ActionUpdate, collection, record)
	logger.Debug("return", zap.Any("record", record))

	return record, nil
}

// Delete removes the live record with id and returns its
// tombstone, which holds the id, a new timestamp and the
// deleted marker.
func (storage *Storage) Delete(ctx context.Context, collection keys.Collection, id string, options DeleteOptions) (Record, error) {
	logger := log.Operation(ctx, storage.logger, "Delete")
	logger.Debug("start", zap.String("collection", collection.Prefix()), zap.String("id", id))

	if err := storage.checkWritable(collection); err != nil {
		return nil, storage.fail(logger, "", err)
	}

	deleted, err := storage.delete(ctx, collection, id, options)

	if err != nil {
		return nil, storage.fail(logger, "could not delete record", err)
	}

	logger.Debug("return", zap.Any("tombstone", deleted))

	return deleted, nil
}

func (storage *Storage) delete(ctx context.Context, collection keys.Collection, id string, options DeleteOptions) (Record, error) {
	live, err := storage.client.SIsMember(ctx, collection.Records(), id)

	if err != nil {
		return nil, err
	}

	if !live {
		return nil, errors.Wrap(ErrNotFound, id)
	}

	timestamp, err := storage.clock.BumpAt(ctx, collection, options.LastModified)

	if err != nil {
		return nil, err
	}

	deleted := tombstone(id, timestamp)
	ops := []kv.Op{
		kv.DelOp(collection.Record(id)),
		kv.SRemOp(collection.Records(), id),
		kv.ZRemOp(collection.Index(), id),
	}

	if !options.NoTombstone {
		encoded, err := encodeRecord(deleted)

		if err != nil {
			return nil, err
		}

		ops = append(ops,
			kv.SetOp(collection.Tombstone(id), encoded, 0),
			kv.ZAddOp(collection.DeletedIndex(), timestamp, id),
		)
	}

	if err := storage.client.Exec(ctx, ops...); err != nil {
		return nil, err
	}

	storage.notify(ctx, listeners.ActionDelete, collection, deleted)

	return deleted, nil
}

// DeleteAll deletes the live records List would return for
// options and returns their tombstones in the same order.
// Each deletion gets its own timestamp. collection may hold
// wildcards.
func (storage *Storage) DeleteAll(ctx context.Context, collection keys.Collection, options ListOptions) ([]Record, error) {
	logger := log.Operation(ctx, storage.logger, "DeleteAll")
	logger.Debug("start", zap.String("collection", collection.Prefix()), zap.Any("options", options))

	if storage.readOnly {
		return nil, storage.fail(logger, "", ErrReadOnly)
	}

	options.IncludeDeleted = false
	entries, _, _, err := storage.list(ctx, logger, collection, options)

	if err != nil {
		return nil, storage.fail(logger, "could not list records to delete", err)
	}

	tombstones := make([]Record, 0, len(entries))

	for _, e := range entries {
		deleted, err := storage.delete(ctx, e.collection, e.record.ID(), DeleteOptions{})

		if errors.Is(err, ErrNotFound) {
			// deleted concurrently
			continue
		}

		if err != nil {
			return tombstones, storage.fail(logger, "could not delete record", err)
		}

		tombstones = append(tombstones, deleted)
	}

	logger.Debug("return", zap.Int("deleted", len(tombstones)))

	return tombstones, nil
}

// ResourceTimestamp returns the collection timestamp,
// 0 for a collection that was never modified
func (storage *Storage) ResourceTimestamp(ctx context.Context, collection keys.Collection) (int64, error) {
	logger := log.Operation(ctx, storage.logger, "ResourceTimestamp")

	if err := checkCollection(collection); err != nil {
		return 0, storage.fail(logger, "", err)
	}

	timestamp, err := storage.clock.Peek(ctx, collection)

	if err != nil {
		return 0, storage.fail(logger, "could not read collection timestamp", err)
	}

	return timestamp, nil
}

// Flush erases every storage key, leaving cache and
// permission data in the same store untouched
func (storage *Storage) Flush(ctx context.Context) error {
	logger := log.Operation(ctx, storage.logger, "Flush")
	logger.Debug("start")

	if storage.readOnly {
		return storage.fail(logger, "", ErrReadOnly)
	}

	all, err := storage.client.Keys(ctx, keys.KindStorage.Prefix())

	if err != nil {
		return storage.fail(logger, "could not list storage keys", err)
	}

	for start := 0; start < len(all); start += flushBatchSize {
		end := start + flushBatchSize

		if end > len(all) {
			end = len(all)
		}

		if _, err := storage.client.Del(ctx, all[start:end]...); err != nil {
			return storage.fail(logger, "could not delete storage keys", err)
		}
	}

	logger.Debug("return", zap.Int("deleted", len(all)))

	return nil
}
