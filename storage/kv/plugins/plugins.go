package plugins

import (
	"net/url"
	"time"

	"github.com/jrife/kvbackend/storage/kv"
	"github.com/jrife/kvbackend/storage/kv/instrumented"
	"github.com/jrife/kvbackend/storage/kv/local"
	"github.com/jrife/kvbackend/storage/kv/redis"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var plugins []kv.Plugin

func init() {
	plugins = append(plugins, local.Plugins()...)
	plugins = append(plugins, redis.Plugins()...)
}

// Plugin returns the plugin whose name matches the given name.
// It returns nil if no such plugin is found.
func Plugin(name string) kv.Plugin {
	for _, plugin := range plugins {
		if plugin.Name() == name {
			return plugin
		}
	}

	return nil
}

// Plugins lists all the plugins that are available
func Plugins() []kv.Plugin {
	return plugins
}

// Options configures Open
type Options struct {
	PoolSize    int
	PoolTimeout time.Duration
	Logger      *zap.Logger
	Registerer  prometheus.Registerer
	Namespace   string
}

// Open resolves the driver from the scheme of rawURL and opens
// a client with it. The client records metrics when a Registerer
// is given and scopes its keys to Namespace when it is set.
func Open(rawURL string, options Options) (kv.Client, error) {
	u, err := url.Parse(rawURL)

	if err != nil {
		return nil, errors.Wrapf(err, "invalid kv URL %q", rawURL)
	}

	plugin := Plugin(u.Scheme)

	if plugin == nil {
		return nil, errors.Errorf("no kv driver for scheme %q", u.Scheme)
	}

	logger := options.Logger

	if logger == nil {
		logger = zap.L()
	}

	client, err := plugin.Open(kv.PluginOptions{
		URL:         u,
		PoolSize:    options.PoolSize,
		PoolTimeout: options.PoolTimeout,
	})

	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s client", plugin.Name())
	}

	if options.Registerer != nil {
		metrics, err := instrumented.NewMetrics(options.Registerer)

		if err != nil {
			client.Close()

			return nil, errors.Wrap(err, "could not register kv metrics")
		}

		client = instrumented.Wrap(client, metrics)
	}

	logger.Debug("opened kv client", zap.String("driver", plugin.Name()), zap.String("namespace", options.Namespace))

	return kv.Namespace(client, options.Namespace), nil
}
