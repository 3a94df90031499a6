package config

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/jrife/kvbackend/storage/kv/plugins"
	"github.com/pkg/errors"
)

// Locator is a decoded backend URL
type Locator struct {
	Driver   string
	Host     string
	Port     int
	Password string
	DB       int
	// Path is the database file of file based drivers
	Path string
}

// ParseURL decodes a backend URL. Redis URLs default to
// localhost, port 6379 and database 0.
func ParseURL(raw string) (Locator, error) {
	u, err := url.Parse(raw)

	if err != nil {
		return Locator{}, errors.Wrapf(err, "invalid url %q", raw)
	}

	if plugins.Plugin(u.Scheme) == nil {
		return Locator{}, errors.Errorf("no driver for scheme %q", u.Scheme)
	}

	locator := Locator{Driver: u.Scheme}

	switch u.Scheme {
	case "redis":
		locator.Host = u.Hostname()
		locator.Port = 6379

		if locator.Host == "" {
			locator.Host = "localhost"
		}

		if port := u.Port(); port != "" {
			if locator.Port, err = strconv.Atoi(port); err != nil {
				return Locator{}, errors.Wrapf(err, "invalid port in %q", raw)
			}
		}

		if u.User != nil {
			locator.Password, _ = u.User.Password()
		}

		if db := strings.TrimPrefix(u.Path, "/"); db != "" {
			if locator.DB, err = strconv.Atoi(db); err != nil {
				return Locator{}, errors.Wrapf(err, "invalid database in %q", raw)
			}
		}
	case "bbolt":
		locator.Path = u.Path

		if locator.Path == "" {
			locator.Path = u.Opaque
		}

		if locator.Path == "" {
			return Locator{}, errors.Errorf("missing database file in %q", raw)
		}
	}

	return locator, nil
}
