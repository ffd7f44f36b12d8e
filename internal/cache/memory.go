// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// MemoryBackend keeps entries in process memory with ristretto.
type MemoryBackend struct {
	c *ristretto.Cache[string, []byte]
}

// NewMemoryBackend creates an in-process backend bounded to maxBytes
// (64 MiB when maxBytes <= 0).
func NewMemoryBackend(maxBytes int64) (*MemoryBackend, error) {
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters:        100_000,
		MaxCost:            maxBytes,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating memory cache: %w", err)
	}
	return &MemoryBackend{c: c}, nil
}

// Get returns the value for key or ErrMiss.
func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	return v, nil
}

// SetWithTTL stores value for ttl. The write is visible to the next Get.
func (m *MemoryBackend) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if !m.c.SetWithTTL(key, value, int64(len(value)), ttl) {
		return fmt.Errorf("memory cache rejected key %s", key)
	}
	m.c.Wait()
	return nil
}

// Ping always succeeds.
func (m *MemoryBackend) Ping(context.Context) error { return nil }

// Close releases the cache.
func (m *MemoryBackend) Close() error {
	m.c.Close()
	return nil
}
