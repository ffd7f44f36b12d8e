// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import "errors"

var (
	// ErrMiss is returned by backends for absent or expired keys.
	ErrMiss = errors.New("cache miss")

	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown cache backend")
)
