// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache is the content-addressed read-through/write-through cache
// in front of the evidence sources. Entries are keyed by a truncated digest
// of the normalized query and the source name, expire after a fixed TTL, and
// are never patched in place.
//
// The cache degrades silently: when the backend is unreachable every Get is
// a miss and every Put is a no-op, so callers never branch on availability.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

const (
	// DefaultTTL is fixed at write time.
	DefaultTTL = 24 * time.Hour

	defaultKeyLength = 16
	keyPrefix        = "evidence:"
)

// Backend is a key-value store with per-key expiry. Get returns ErrMiss for
// absent or expired keys. Implementations must be safe for concurrent use.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}

// Stats reports cache activity since construction.
type Stats struct {
	Available bool  `json:"available"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Writes    int64 `json:"writes"`
	Errors    int64 `json:"errors"`
}

// Cache wraps a Backend with key derivation, serialization, lazy
// availability probing, and graceful degradation.
type Cache struct {
	backend   Backend
	ttl       time.Duration
	keyLength int
	now       func() time.Time
	logger    *slog.Logger

	probeOnce sync.Once
	available atomic.Bool

	hits, misses, writes, errs atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the entry lifetime. Non-positive values keep DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithKeyLength sets the number of hex digest characters kept in a key.
func WithKeyLength(n int) Option {
	return func(c *Cache) {
		if n > 0 && n <= sha256.Size*2 {
			c.keyLength = n
		}
	}
}

// WithClock replaces time.Now, used by tests to drive expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Cache over backend. A nil backend yields a cache that
// always misses.
func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{
		backend:   backend,
		ttl:       DefaultTTL,
		keyLength: defaultKeyLength,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "cache")
	return c
}

// Key returns the cache key for (query, source): a prefix plus the
// truncated hex SHA-256 of the lower-cased, trimmed query concatenated
// with the source name. Truncation collisions are an accepted risk.
func (c *Cache) Key(query string, source types.SourceName) string {
	return keyPrefix + digest(query, source, c.keyLength)
}

func digest(query string, source types.SourceName, n int) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	sum := sha256.Sum256([]byte(normalized + string(source)))
	return hex.EncodeToString(sum[:])[:n]
}

// Available probes the backend once and reports whether it is usable.
func (c *Cache) Available(ctx context.Context) bool {
	if c == nil || c.backend == nil {
		return false
	}
	c.probeOnce.Do(func() {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := c.backend.Ping(pctx); err != nil {
			c.logger.Warn("cache backend unavailable, caching disabled", "err", err)
			return
		}
		c.available.Store(true)
	})
	return c.available.Load()
}

// Get returns the cached entry for (query, source). Any backend or decode
// failure is reported as a miss.
func (c *Cache) Get(ctx context.Context, query string, source types.SourceName) (types.CacheEntry, bool) {
	if !c.Available(ctx) {
		return types.CacheEntry{}, false
	}
	key := c.Key(query, source)

	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.errs.Add(1)
			c.logger.Warn("cache read failed", "source", source, "err", err)
		}
		c.misses.Add(1)
		return types.CacheEntry{}, false
	}

	var entry types.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.errs.Add(1)
		c.misses.Add(1)
		c.logger.Warn("cache entry undecodable", "source", source, "err", err)
		return types.CacheEntry{}, false
	}
	if entry.Expired(c.now()) {
		c.misses.Add(1)
		return types.CacheEntry{}, false
	}
	c.hits.Add(1)
	return entry, true
}

// Put writes candidates for (query, source), replacing any previous entry.
// Failures are logged and otherwise ignored.
func (c *Cache) Put(ctx context.Context, query string, source types.SourceName, candidates []types.Candidate) {
	if !c.Available(ctx) {
		return
	}
	entry := types.CacheEntry{
		Candidates: candidates,
		Timestamp:  c.now(),
		TTLSeconds: int64(c.ttl / time.Second),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		c.errs.Add(1)
		c.logger.Warn("cache entry unencodable", "source", source, "err", err)
		return
	}
	if err := c.backend.SetWithTTL(ctx, c.Key(query, source), data, c.ttl); err != nil {
		c.errs.Add(1)
		c.logger.Warn("cache write failed", "source", source, "err", err)
		return
	}
	c.writes.Add(1)
}

// Stats returns activity counters.
func (c *Cache) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{
		Available: c.available.Load(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Writes:    c.writes.Load(),
		Errors:    c.errs.Load(),
	}
}

// Close releases the backend.
func (c *Cache) Close() error {
	if c == nil || c.backend == nil {
		return nil
	}
	return c.backend.Close()
}
