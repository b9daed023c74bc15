package cache

import (
	"context"
	"errors"
)

// based on github.com/kittpat1413/go-common/framework/cache/cache.go

var ErrCacheMiss = errors.New("cache miss")

type Cache[K comparable, V any] interface {
	// Get returns ErrCacheMiss if there is no entry for key
	Get(ctx context.Context, key K) (*V, error)
	// Put inserts or replaces the entry for key
	Put(ctx context.Context, key K, value *V)
	Has(ctx context.Context, key K) bool
	Keys(ctx context.Context) []K
	Invalidate(ctx context.Context, key K)
}
