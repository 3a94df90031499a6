package local

import (
	"path/filepath"
	"sync"

	"github.com/jrife/kvbackend/storage/kv"
	"github.com/pkg/errors"
)

const (
	// MemoryDriverName selects an in-memory engine
	MemoryDriverName = "memory"
	// BBoltDriverName selects a bbolt engine
	BBoltDriverName = "bbolt"
)

// Plugins returns the local drivers
func Plugins() []kv.Plugin {
	return []kv.Plugin{
		&MemoryPlugin{},
		&BBoltPlugin{},
	}
}

// MemoryPlugin opens a fresh in-memory engine for
// every memory:// URL.
type MemoryPlugin struct {
}

// Name implements kv.Plugin.Name
func (plugin *MemoryPlugin) Name() string {
	return MemoryDriverName
}

// Open implements kv.Plugin.Open
func (plugin *MemoryPlugin) Open(options kv.PluginOptions) (kv.Client, error) {
	return NewMemory(), nil
}

// BBoltPlugin opens bbolt engines from URLs like bbolt:///var/lib/kv.db.
// bbolt holds an exclusive lock on its file, so clients opened
// for the same path share one engine until the last one closes.
type BBoltPlugin struct {
}

// Name implements kv.Plugin.Name
func (plugin *BBoltPlugin) Name() string {
	return BBoltDriverName
}

// Open implements kv.Plugin.Open
func (plugin *BBoltPlugin) Open(options kv.PluginOptions) (kv.Client, error) {
	if options.URL == nil {
		return nil, errors.New("bbolt: URL is required")
	}

	path := options.URL.Path

	if path == "" {
		path = options.URL.Opaque
	}

	if path == "" {
		return nil, errors.Errorf("bbolt: no path in %q", options.URL.String())
	}

	return openShared(filepath.Clean(path))
}

var (
	sharedMu sync.Mutex
	shared   = map[string]*sharedEngine{}
)

type sharedEngine struct {
	*Engine
	path string
	refs int
}

type sharedClient struct {
	*sharedEngine
	once sync.Once
}

func openShared(path string) (kv.Client, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	engine, ok := shared[path]

	if !ok {
		e, err := OpenBBolt(path)

		if err != nil {
			return nil, err
		}

		engine = &sharedEngine{Engine: e, path: path}
		shared[path] = engine
	}

	engine.refs++

	return &sharedClient{sharedEngine: engine}, nil
}

// Close closes the underlying engine once every
// client sharing it is closed.
func (client *sharedClient) Close() error {
	var err error

	client.once.Do(func() {
		sharedMu.Lock()
		defer sharedMu.Unlock()

		client.refs--

		if client.refs > 0 {
			return
		}

		delete(shared, client.path)
		err = client.Engine.Close()
	})

	return err
}
