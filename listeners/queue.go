package listeners

import (
	"context"

	"github.com/jrife/kvbackend/storage/kv"
	"github.com/jrife/kvbackend/storage/kv/keys"
	"github.com/jrife/kvbackend/utils/log"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultQueue is the queue events go to when none is configured
const DefaultQueue = "kinto.core.events"

// QueueConfig contains configuration for a Queue
type QueueConfig struct {
	Client kv.Client
	Logger *zap.Logger
	// Queue names the list events are pushed to
	Queue string
	// Actions restricts the queued events to these actions.
	// Empty means every action.
	Actions []Action
	// Resources restricts the queued events to these resources.
	// Empty means every resource.
	Resources []string
}

// Queue pushes the JSON encoding of every event it is
// notified of to the head of a KV list, where external
// consumers pop them.
type Queue struct {
	client    kv.Client
	logger    *zap.Logger
	key       string
	actions   map[Action]bool
	resources map[string]bool
}

// NewQueue creates a queue listener over the KV store in config
func NewQueue(config QueueConfig) *Queue {
	queue := &Queue{client: config.Client, logger: config.Logger}

	if queue.logger == nil {
		queue.logger = zap.L()
	}

	if config.Queue == "" {
		config.Queue = DefaultQueue
	}

	queue.key = keys.Queue(config.Queue)

	if len(config.Actions) > 0 {
		queue.actions = map[Action]bool{}

		for _, action := range config.Actions {
			queue.actions[action] = true
		}
	}

	if len(config.Resources) > 0 {
		queue.resources = map[string]bool{}

		for _, resource := range config.Resources {
			queue.resources[resource] = true
		}
	}

	return queue
}

func (queue *Queue) accepts(event Event) bool {
	if queue.actions != nil && !queue.actions[event.Action] {
		return false
	}

	return queue.resources == nil || queue.resources[event.Resource]
}

// Notify implements Listener.Notify. Failures are logged
// and otherwise ignored.
func (queue *Queue) Notify(ctx context.Context, event Event) {
	logger := log.Operation(ctx, queue.logger, "Notify")

	if !queue.accepts(event) {
		return
	}

	encoded, err := json.Marshal(event)

	if err != nil {
		logger.Error("could not encode event", zap.Error(err))

		return
	}

	if _, err := queue.client.LPush(ctx, queue.key, encoded); err != nil {
		logger.Error("could not queue event", zap.Error(err))

		return
	}

	logger.Debug("queued", zap.String("action", string(event.Action)), zap.String("id", event.ID))
}

// Len returns the number of queued events
func (queue *Queue) Len(ctx context.Context) (int64, error) {
	n, err := queue.client.LLen(ctx, queue.key)

	if err != nil {
		return 0, errors.Wrap(err, "could not read queue length")
	}

	return n, nil
}

// Events returns the queued events, most recent first
func (queue *Queue) Events(ctx context.Context) ([]Event, error) {
	values, err := queue.client.LRange(ctx, queue.key, 0, -1)

	if err != nil {
		return nil, errors.Wrap(err, "could not read queue")
	}

	events := make([]Event, len(values))

	for i, value := range values {
		if err := json.Unmarshal(value, &events[i]); err != nil {
			return nil, errors.Wrap(err, "could not decode event")
		}
	}

	return events, nil
}
