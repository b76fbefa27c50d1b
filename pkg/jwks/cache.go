// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-clearinghouse.
//
// go-clearinghouse is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package jwks resolves RSA verification keys published as JSON Web Key Sets.
//
// Cache memoises (JWKS URL, key ID) pairs in a bounded LRU. Concurrent
// misses for the same pair share one fetch; misses for different pairs
// proceed independently. Failures are never cached, so a later call retries.
package jwks

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/jeremyhahn/go-clearinghouse/pkg/adapters/logger"
	adapter "github.com/jeremyhahn/go-clearinghouse/pkg/adapters/metrics"
	"github.com/jeremyhahn/go-clearinghouse/pkg/encoding/jwk"
)

// DefaultCacheSize is the number of keys held before the least recently used
// entry is evicted.
const DefaultCacheSize = 100

// ResolvedKey is a verification key found in a published key set.
type ResolvedKey struct {
	URL       string
	KeyID     string
	PublicKey *rsa.PublicKey
}

type cacheKey struct {
	url string
	kid string
}

func (k cacheKey) flightKey() string {
	return k.url + "\x00" + k.kid
}

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Size      int
	Hits      uint64
	Misses    uint64
	Fetches   uint64
	Evictions uint64
}

// Cache is a thread-safe, size-bounded key cache in front of a Source.
type Cache struct {
	source  Source
	entries *lru.Cache[cacheKey, *ResolvedKey]
	group   singleflight.Group
	logger  logger.Logger
	metrics adapter.MetricsAdapter
	size    int

	hits      atomic.Uint64
	misses    atomic.Uint64
	fetches   atomic.Uint64
	evictions atomic.Uint64
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithSize sets the cache capacity. Values below 1 are rejected by NewCache.
func WithSize(n int) CacheOption {
	return func(c *Cache) { c.size = n }
}

// WithLogger sets the logger used for miss and eviction records.
func WithLogger(l logger.Logger) CacheOption {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics adapter for hit, miss and eviction counters.
func WithMetrics(m adapter.MetricsAdapter) CacheOption {
	return func(c *Cache) {
		if m != nil {
			c.metrics = m
		}
	}
}

// NewCache creates a Cache that fetches key sets from source.
func NewCache(source Source, opts ...CacheOption) (*Cache, error) {
	if source == nil {
		return nil, errors.New("jwks: nil source")
	}
	c := &Cache{
		source:  source,
		logger:  logger.NewNop(),
		metrics: adapter.NewNoOpMetrics(),
		size:    DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(c)
	}

	entries, err := lru.NewWithEvict(c.size, func(k cacheKey, _ *ResolvedKey) {
		c.logger.Debug("jwks: evicted key",
			logger.String("jwks_url", k.url),
			logger.String("kid", k.kid))
	})
	if err != nil {
		return nil, fmt.Errorf("jwks: cache size %d: %w", c.size, err)
	}
	c.entries = entries
	return c, nil
}

// Resolve returns the RSA public key published under kid at jwksURL.
//
// Errors wrap ErrFetch when the key set cannot be retrieved and
// ErrKeyNotFound when it has no RSA entry for kid.
func (c *Cache) Resolve(ctx context.Context, jwksURL, kid string) (*rsa.PublicKey, error) {
	key := cacheKey{url: jwksURL, kid: kid}

	if rk, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		_ = c.metrics.RecordCounter(ctx, adapter.MetricCacheHits, nil)
		return rk.PublicKey, nil
	}
	c.misses.Add(1)
	_ = c.metrics.RecordCounter(ctx, adapter.MetricCacheMisses, nil)

	// The fetch is detached from the caller's cancellation so one caller
	// giving up does not fail every other caller sharing the flight.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key.flightKey(), func() (any, error) {
		if rk, ok := c.entries.Get(key); ok {
			return rk, nil
		}
		return c.load(fetchCtx, key)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, jwksURL, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ResolvedKey).PublicKey, nil
	}
}

func (c *Cache) load(ctx context.Context, key cacheKey) (*ResolvedKey, error) {
	c.fetches.Add(1)
	c.logger.Debug("jwks: fetching key set",
		logger.String("jwks_url", key.url),
		logger.String("kid", key.kid))

	set, err := c.source.Fetch(ctx, key.url)
	if err != nil {
		if errors.Is(err, ErrFetch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, key.url, err)
	}

	if set == nil {
		return nil, fmt.Errorf("%w: %s: empty key set", ErrFetch, key.url)
	}
	pub, err := rsaKey(set, key.kid)
	if err != nil {
		return nil, fmt.Errorf("%w: kid %q at %s: %w", ErrKeyNotFound, key.kid, key.url, err)
	}

	rk := &ResolvedKey{URL: key.url, KeyID: key.kid, PublicKey: pub}
	if evicted := c.entries.Add(key, rk); evicted {
		c.evictions.Add(1)
		_ = c.metrics.RecordCounter(ctx, adapter.MetricCacheEvictions, nil)
	}
	_ = c.metrics.RecordGauge(ctx, adapter.MetricCacheSize, float64(c.entries.Len()), nil)
	return rk, nil
}

// rsaKey returns the first entry for kid that converts to an RSA key. Sets
// may publish several algorithms under one kid.
func rsaKey(set *jwk.Set, kid string) (*rsa.PublicKey, error) {
	var lastErr error
	for i := range set.Keys {
		if set.Keys[i].Kid != kid {
			continue
		}
		pub, err := set.Keys[i].RSAPublicKey()
		if err == nil {
			return pub, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("no entry (have %v)", set.KeyIDs())
}

// Contains reports whether the pair is cached without updating its recency.
func (c *Cache) Contains(jwksURL, kid string) bool {
	return c.entries.Contains(cacheKey{url: jwksURL, kid: kid})
}

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Capacity returns the maximum number of cached keys.
func (c *Cache) Capacity() int {
	return c.size
}

// Purge drops every cached key. Counters are left untouched.
func (c *Cache) Purge() {
	c.entries.Purge()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Size:      c.entries.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Fetches:   c.fetches.Load(),
		Evictions: c.evictions.Load(),
	}
}
