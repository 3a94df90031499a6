package redis

import (
	"github.com/jrife/kvbackend/storage/kv"
	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

const (
	// DriverName is the URL scheme served by this driver
	DriverName = "redis"
)

// Plugins returns the redis driver
func Plugins() []kv.Plugin {
	return []kv.Plugin{
		&Plugin{},
	}
}

// Plugin opens redis clients from URLs like
// redis://:password@host:6379/2
type Plugin struct {
}

// Name implements kv.Plugin.Name
func (plugin *Plugin) Name() string {
	return DriverName
}

// Open implements kv.Plugin.Open
func (plugin *Plugin) Open(options kv.PluginOptions) (kv.Client, error) {
	if options.URL == nil {
		return nil, errors.New("redis: URL is required")
	}

	redisOptions, err := goredis.ParseURL(options.URL.String())

	if err != nil {
		return nil, errors.Wrap(err, "redis: invalid URL")
	}

	if options.PoolSize > 0 {
		redisOptions.PoolSize = options.PoolSize
	}

	if options.PoolTimeout > 0 {
		redisOptions.PoolTimeout = options.PoolTimeout
	}

	return New(goredis.NewClient(redisOptions)), nil
}
