// Package clock hands out collection timestamps. A collection
// timestamp is a millisecond counter owned by the KV store that
// strictly increases with every mutation of the collection.
package clock

import (
	"context"
	"strconv"
	"time"

	"github.com/jrife/kvbackend/storage/kv"
	"github.com/jrife/kvbackend/storage/kv/keys"
	"github.com/jrife/kvbackend/utils/log"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrBackendUnavailable is returned when the KV store fails
var ErrBackendUnavailable = kv.ErrUnavailable

// Config contains configuration for a Clock
type Config struct {
	Client kv.Client
	Logger *zap.Logger
	// Now replaces the wall clock. Defaults to time.Now.
	Now func() time.Time
}

// Clock bumps and reads collection timestamps
type Clock struct {
	client kv.Client
	logger *zap.Logger
	now    func() time.Time
}

// New creates a clock over the KV store in config
func New(config Config) *Clock {
	clock := &Clock{client: config.Client, logger: config.Logger, now: config.Now}

	if clock.logger == nil {
		clock.logger = zap.L()
	}

	if clock.now == nil {
		clock.now = time.Now
	}

	return clock
}

// Millis converts t to milliseconds since the epoch
func Millis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

// Now returns the current wall clock time in milliseconds
func (clock *Clock) Now() int64 {
	return Millis(clock.now())
}

// Bump advances the timestamp of collection to
// max(now, current + 1) in one atomic command and returns it.
func (clock *Clock) Bump(ctx context.Context, collection keys.Collection) (int64, error) {
	return clock.BumpAt(ctx, collection, 0)
}

// BumpAt is Bump with at standing in for now when it is
// ahead of the wall clock.
func (clock *Clock) BumpAt(ctx context.Context, collection keys.Collection, at int64) (int64, error) {
	logger := log.Operation(ctx, clock.logger, "Bump")
	logger.Debug("start", zap.String("collection", collection.Prefix()), zap.Int64("at", at))

	candidate := clock.Now()

	if at > candidate {
		candidate = at
	}

	timestamp, err := clock.client.BumpMax(ctx, collection.Timestamp(), candidate)

	if err != nil {
		logger.Error("could not bump collection timestamp", zap.Error(err))

		return 0, errors.Wrap(err, "could not bump collection timestamp")
	}

	logger.Debug("return", zap.Int64("timestamp", timestamp))

	return timestamp, nil
}

// Peek returns the timestamp of collection without changing it.
// It returns 0 for a collection that was never modified.
func (clock *Clock) Peek(ctx context.Context, collection keys.Collection) (int64, error) {
	logger := log.Operation(ctx, clock.logger, "Peek")

	value, err := clock.client.Get(ctx, collection.Timestamp())

	if err != nil {
		logger.Error("could not read collection timestamp", zap.Error(err))

		return 0, errors.Wrap(err, "could not read collection timestamp")
	}

	if value == nil {
		return 0, nil
	}

	timestamp, err := strconv.ParseInt(string(value), 10, 64)

	if err != nil {
		return 0, errors.Wrapf(kv.ErrNotInteger, "collection timestamp %q", value)
	}

	logger.Debug("return", zap.Int64("timestamp", timestamp))

	return timestamp, nil
}
