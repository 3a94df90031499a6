package config

import (
	"github.com/jrife/kvbackend/cache"
	"github.com/jrife/kvbackend/listeners"
	"github.com/jrife/kvbackend/permission"
	"github.com/jrife/kvbackend/storage"
	"github.com/jrife/kvbackend/storage/kv"
	"github.com/jrife/kvbackend/storage/kv/plugins"
	"github.com/jrife/kvbackend/utils/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Options are the dependencies of Open that do not come
// from configuration
type Options struct {
	Logger *zap.Logger
	// Registerer receives KV command metrics when set
	Registerer prometheus.Registerer
}

// Backends are the backends built from a Config
type Backends struct {
	Storage    *storage.Storage
	Cache      *cache.Cache
	Permission *permission.Backend
	// Events is nil unless events are enabled
	Events  *listeners.Queue
	clients []kv.Client
}

// Open connects every backend of config
func Open(config Config, options Options) (*Backends, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := options.Logger

	if logger == nil {
		logger = zap.L()
	}

	backends := &Backends{}
	open := func(name string, backend Backend) (kv.Client, error) {
		client, err := plugins.Open(backend.URL, plugins.Options{
			PoolSize:    backend.PoolSize,
			PoolTimeout: backend.PoolTimeout,
			Logger:      logger.With(zap.String("backend", name)),
			Registerer:  options.Registerer,
			Namespace:   config.Namespace,
		})

		if err != nil {
			return nil, errors.Wrapf(err, "could not open %s backend", name)
		}

		backends.clients = append(backends.clients, client)

		return client, nil
	}

	fail := func(err error) (*Backends, error) {
		return nil, multierr.Append(err, backends.Close())
	}

	storageConfig := storage.Config{Logger: logger, ReadOnly: config.Storage.ReadOnly}

	if config.Storage.IDGenerator == IDGeneratorULID {
		storageConfig.IDGenerator = uuid.MustULID
	}

	if config.Events.Enabled {
		client, err := open("events", config.Events.Backend)

		if err != nil {
			return fail(err)
		}

		actions := make([]listeners.Action, len(config.Events.Actions))

		for i, action := range config.Events.Actions {
			actions[i] = listeners.Action(action)
		}

		backends.Events = listeners.NewQueue(listeners.QueueConfig{
			Client:    client,
			Logger:    logger,
			Queue:     config.Events.Queue,
			Actions:   actions,
			Resources: config.Events.Resources,
		})
		storageConfig.Listeners = []listeners.Listener{backends.Events}
	}

	client, err := open("storage", config.Storage.Backend)

	if err != nil {
		return fail(err)
	}

	storageConfig.Client = client
	backends.Storage = storage.New(storageConfig)

	if client, err = open("cache", config.Cache.Backend); err != nil {
		return fail(err)
	}

	backends.Cache = cache.New(cache.Config{Client: client, Logger: logger, Prefix: config.Cache.Prefix})

	if client, err = open("permission", config.Permission.Backend); err != nil {
		return fail(err)
	}

	backends.Permission = permission.New(permission.Config{Client: client, Logger: logger})

	return backends, nil
}

// Close closes the connections of every backend
func (backends *Backends) Close() error {
	var err error

	for _, client := range backends.clients {
		err = multierr.Append(err, client.Close())
	}

	backends.clients = nil

	return err
}
