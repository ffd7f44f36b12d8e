// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package gather

import "errors"

var (
	// ErrBudgetExceeded marks a source abandoned at the global budget.
	ErrBudgetExceeded = errors.New("global budget exceeded")

	// ErrAdapterPanic wraps a panic raised inside an adapter.
	ErrAdapterPanic = errors.New("adapter panicked")
)
