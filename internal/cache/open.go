// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"fmt"
	"log/slog"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Open builds the Cache described by cfg. A backend that fails to open is
// not an error: the returned cache is simply disabled and always misses.
// Only an unknown backend name is rejected.
func Open(cfg types.CacheConfig, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []Option{WithTTL(cfg.TTL), WithKeyLength(cfg.KeyLength), WithLogger(logger)}

	var (
		backend Backend
		err     error
	)
	switch cfg.Backend {
	case types.CacheMemory, "":
		backend, err = NewMemoryBackend(0)
	case types.CacheBadger:
		backend, err = OpenBadgerBackend(cfg.Path, logger)
	case types.CacheRedis:
		backend = NewRedisBackend(cfg.RedisAddr, cfg.RedisPassword)
	case types.CacheSQLite:
		path := cfg.Path
		if path == "" {
			path = "cache/evidence-cache.db"
		}
		backend, err = OpenSQLiteBackend(path)
	case types.CacheNone:
		return New(nil, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}

	if err != nil {
		logger.Warn("cache backend failed to open, caching disabled", "backend", cfg.Backend, "err", err)
		return New(nil, opts...), nil
	}
	return New(backend, opts...), nil
}
