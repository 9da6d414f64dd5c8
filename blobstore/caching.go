package blobstore

import (
	"context"
	"slices"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/vecdir/internal/cache"
)

var _ Store = (*CachingStore)(nil)

// CachingStore wraps a Store with an LRU read cache. Concurrent misses for
// the same name share one backend read. Writes and deletes invalidate the
// cached copy, and a Get that starts after a write returned never joins a
// read that began before it.
type CachingStore struct {
	inner Store
	cache *cache.LRU
	group singleflight.Group

	mu   sync.Mutex
	gens map[string]uint64 // bumped on every invalidation
}

// NewCachingStore creates a CachingStore backed by c.
func NewCachingStore(inner Store, c *cache.LRU) *CachingStore {
	return &CachingStore{
		inner: inner,
		cache: c,
		gens:  make(map[string]uint64),
	}
}

// Get serves name from the cache or the wrapped store.
func (s *CachingStore) Get(ctx context.Context, name string) ([]byte, error) {
	if data, ok := s.cache.Get(name); ok {
		return slices.Clone(data), nil
	}

	gen := s.generation(name)
	v, err, _ := s.group.Do(flightKey(name, gen), func() (any, error) {
		data, err := s.inner.Get(ctx, name)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		if s.gens[name] == gen {
			s.cache.Set(name, data)
		}
		s.mu.Unlock()

		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]byte)), nil
}

// Put writes through to the wrapped store.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	defer s.invalidate(name)
	return s.inner.Put(ctx, name, data)
}

// Delete deletes from the wrapped store.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	defer s.invalidate(name)
	return s.inner.Delete(ctx, name)
}

// List is served by the wrapped store.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// Stats returns cache statistics.
func (s *CachingStore) Stats() cache.Stats {
	return s.cache.Stats()
}

func (s *CachingStore) generation(name string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[name]
}

// flightKey scopes a shared read to one write generation of name.
func flightKey(name string, gen uint64) string {
	return name + "\x00" + strconv.FormatUint(gen, 10)
}

func (s *CachingStore) invalidate(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[name]++
	s.cache.Remove(name)
}
