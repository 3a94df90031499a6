// Package config loads backend settings from a config file,
// a .env file and KVBACKEND_* environment variables.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables that
// override config keys. storage.url is read from
// KVBACKEND_STORAGE_URL.
const EnvPrefix = "KVBACKEND"

const (
	// DefaultPoolSize is the connection pool size of each backend
	DefaultPoolSize = 50
	// DefaultURL is the store every backend uses by default
	DefaultURL = "redis://localhost:6379/0"
	// IDGeneratorUUID generates random UUIDs
	IDGeneratorUUID = "uuid"
	// IDGeneratorULID generates time-ordered ULIDs
	IDGeneratorULID = "ulid"
)

// Backend locates the store of one backend
type Backend struct {
	// URL is redis://[:password@]host[:port][/db], memory:// or bbolt:///path/to/file.db
	URL         string        `mapstructure:"url"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// Storage configures the storage backend
type Storage struct {
	Backend     `mapstructure:",squash"`
	ReadOnly    bool   `mapstructure:"read_only"`
	IDGenerator string `mapstructure:"id_generator"`
}

// Cache configures the cache backend
type Cache struct {
	Backend `mapstructure:",squash"`
	Prefix  string `mapstructure:"prefix"`
}

// Permission configures the permission backend
type Permission struct {
	Backend `mapstructure:",squash"`
}

// Events configures the event queue fed by storage changes
type Events struct {
	Backend   `mapstructure:",squash"`
	Enabled   bool     `mapstructure:"enabled"`
	Queue     string   `mapstructure:"queue"`
	Actions   []string `mapstructure:"actions"`
	Resources []string `mapstructure:"resources"`
}

// Config holds the settings of every backend
type Config struct {
	Storage    Storage    `mapstructure:"storage"`
	Cache      Cache      `mapstructure:"cache"`
	Permission Permission `mapstructure:"permission"`
	Events     Events     `mapstructure:"events"`
	// Namespace prefixes every key of every backend
	Namespace string `mapstructure:"namespace"`
	LogLevel  string `mapstructure:"log_level"`
}

var defaults = map[string]interface{}{
	"namespace":               "",
	"log_level":               "info",
	"storage.url":             DefaultURL,
	"cache.url":               DefaultURL,
	"permission.url":          DefaultURL,
	"events.url":              DefaultURL,
	"storage.pool_size":       DefaultPoolSize,
	"cache.pool_size":         DefaultPoolSize,
	"permission.pool_size":    DefaultPoolSize,
	"events.pool_size":        DefaultPoolSize,
	"storage.pool_timeout":    time.Duration(0),
	"cache.pool_timeout":      time.Duration(0),
	"permission.pool_timeout": time.Duration(0),
	"events.pool_timeout":     time.Duration(0),
	"storage.read_only":       false,
	"storage.id_generator":    IDGeneratorUUID,
	"cache.prefix":            "",
	"events.enabled":          false,
	"events.queue":            "kinto.core.events",
	"events.actions":          []string{},
	"events.resources":        []string{},
}

// Load reads the config file at path, or kvbackend.{yaml,json,toml}
// from the working directory when path is empty. Variables from a
// .env file in the working directory are exported first. Only an
// explicit path has to exist.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return Config{}, errors.Wrap(err, "could not load .env")
	}

	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("kvbackend")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError

		if !errors.As(err, &notFound) {
			return Config{}, errors.Wrap(err, "could not read config")
		}
	}

	var config Config

	if err := v.Unmarshal(&config); err != nil {
		return Config{}, errors.Wrap(err, "could not decode config")
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// Validate checks every URL and option of config
func (config Config) Validate() error {
	for name, backend := range map[string]Backend{
		"storage":    config.Storage.Backend,
		"cache":      config.Cache.Backend,
		"permission": config.Permission.Backend,
		"events":     config.Events.Backend,
	} {
		if _, err := ParseURL(backend.URL); err != nil {
			return errors.Wrapf(err, "%s.url", name)
		}

		if backend.PoolSize < 0 {
			return errors.Errorf("%s.pool_size must not be negative", name)
		}
	}

	switch config.Storage.IDGenerator {
	case "", IDGeneratorUUID, IDGeneratorULID:
	default:
		return errors.Errorf("storage.id_generator must be %s or %s", IDGeneratorUUID, IDGeneratorULID)
	}

	return nil
}
