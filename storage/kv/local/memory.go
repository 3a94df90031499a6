package local

import (
	"sort"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/jrife/kvbackend/storage/kv"
	"github.com/jrife/kvbackend/storage/kv/keys"
)

// NewMemory returns an engine whose keys live in process memory.
// Its contents are lost when it is closed.
func NewMemory(opts ...Option) *Engine {
	return newEngine(MemoryDriverName, &memoryBackend{m: treemap.NewWithStringComparator()}, opts...)
}

type memoryBackend struct {
	mu     sync.RWMutex
	m      *treemap.Map
	closed bool
}

func (b *memoryBackend) view(fn func(ks keyspace) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return kv.ErrClosed
	}

	return fn(&memoryKeyspace{m: b.m})
}

// update stages writes in an overlay so that a failing
// fn leaves the map untouched.
func (b *memoryBackend) update(fn func(ks keyspace) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return kv.ErrClosed
	}

	overlay := &memoryOverlay{base: &memoryKeyspace{m: b.m}, writes: treemap.NewWithStringComparator()}

	if err := fn(overlay); err != nil {
		return err
	}

	overlay.writes.Each(func(key interface{}, v interface{}) {
		if v == nil || v.(*value) == nil {
			b.m.Remove(key)

			return
		}

		b.m.Put(key, v)
	})

	return nil
}

func (b *memoryBackend) close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.m.Clear()

	return nil
}

type memoryKeyspace struct {
	m *treemap.Map
}

func (ks *memoryKeyspace) get(key string) (*value, error) {
	v, ok := ks.m.Get(key)

	if !ok {
		return nil, nil
	}

	return cloneValue(v.(*value)), nil
}

func (ks *memoryKeyspace) put(key string, v *value) error {
	ks.m.Put(key, cloneValue(v))

	return nil
}

func (ks *memoryKeyspace) del(key string) error {
	ks.m.Remove(key)

	return nil
}

func (ks *memoryKeyspace) scan(r keys.Range, fn func(key string) error) error {
	return scanTree(ks.m, r, fn)
}

func scanTree(m *treemap.Map, r keys.Range, fn func(key string) error) error {
	next, _ := m.Ceiling(string(r.Min))

	for next != nil {
		key := next.(string)

		if r.Past([]byte(key)) {
			break
		}

		if err := fn(key); err != nil {
			return err
		}

		next, _ = m.Ceiling(key + "\x00")
	}

	return nil
}

// memoryOverlay records writes on top of a base keyspace.
// A nil value in writes marks a deletion.
type memoryOverlay struct {
	base   *memoryKeyspace
	writes *treemap.Map
}

func (ks *memoryOverlay) get(key string) (*value, error) {
	if v, ok := ks.writes.Get(key); ok {
		if v == nil || v.(*value) == nil {
			return nil, nil
		}

		return cloneValue(v.(*value)), nil
	}

	return ks.base.get(key)
}

func (ks *memoryOverlay) put(key string, v *value) error {
	ks.writes.Put(key, cloneValue(v))

	return nil
}

func (ks *memoryOverlay) del(key string) error {
	ks.writes.Put(key, (*value)(nil))

	return nil
}

func (ks *memoryOverlay) scan(r keys.Range, fn func(key string) error) error {
	var merged []string

	if err := ks.base.scan(r, func(key string) error {
		merged = append(merged, key)

		return nil
	}); err != nil {
		return err
	}

	seen := make(map[string]bool, len(merged))

	for _, key := range merged {
		seen[key] = true
	}

	if err := scanTree(ks.writes, r, func(key string) error {
		if !seen[key] {
			merged = append(merged, key)
		}

		return nil
	}); err != nil {
		return err
	}

	sort.Strings(merged)

	for _, key := range merged {
		v, err := ks.get(key)

		if err != nil {
			return err
		}

		if v == nil {
			continue
		}

		if err := fn(key); err != nil {
			return err
		}
	}

	return nil
}

func cloneValue(v *value) *value {
	if v == nil {
		return nil
	}

	c := *v
	c.Str = copyBytes(v.Str)

	if v.Set != nil {
		c.Set = make(map[string]bool, len(v.Set))

		for member := range v.Set {
			c.Set[member] = true
		}
	}

	if v.ZSet != nil {
		c.ZSet = make(map[string]int64, len(v.ZSet))

		for member, score := range v.ZSet {
			c.ZSet[member] = score
		}
	}

	if v.List != nil {
		c.List = make([][]byte, len(v.List))

		for i, elem := range v.List {
			c.List[i] = copyBytes(elem)
		}
	}

	return &c
}
