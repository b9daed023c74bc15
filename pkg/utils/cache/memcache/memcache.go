package memcache

import (
	"context"
	"sync"

	"github.com/mpapenbr/kartlog-telemetry-go/log"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/utils/cache"
)

// based on github.com/kittpat1413/go-common/framework/cache/localcache/localcache.go
// Entries never expire. The cache lives as long as its owner.

type (
	Option[K comparable, V any] func(*config[K, V])
	config[K comparable, V any] struct {
		l *log.Logger
	}
	memCache[K comparable, V any] struct {
		mutex  sync.RWMutex
		items  map[K]*V
		order  []K
		config *config[K, V]
	}
)

func WithLogger[K comparable, V any](arg *log.Logger) Option[K, V] {
	return func(c *config[K, V]) {
		c.l = arg
	}
}

func New[K comparable, V any](opts ...Option[K, V]) cache.Cache[K, V] {
	c := &config[K, V]{
		l: log.Default().Named("cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return &memCache[K, V]{
		items:  make(map[K]*V),
		config: c,
	}
}

func (c *memCache[K, V]) Get(ctx context.Context, key K) (*V, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if v, ok := c.items[key]; ok {
		return v, nil
	}
	return nil, cache.ErrCacheMiss
}

func (c *memCache[K, V]) Put(ctx context.Context, key K, value *V) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if _, ok := c.items[key]; !ok {
		c.order = append(c.order, key)
	}
	c.items[key] = value
	c.config.l.Debug("Put", log.Any("key", key), log.Int("items", len(c.items)))
}

func (c *memCache[K, V]) Has(ctx context.Context, key K) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	_, ok := c.items[key]
	return ok
}

// Keys returns the keys in insertion order
func (c *memCache[K, V]) Keys(ctx context.Context) []K {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	ret := make([]K, len(c.order))
	copy(ret, c.order)
	return ret
}

func (c *memCache[K, V]) Invalidate(ctx context.Context, key K) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if _, ok := c.items[key]; !ok {
		return
	}
	delete(c.items, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.config.l.Debug("Invalidate", log.Any("key", key), log.Int("remain items", len(c.items)))
}
