// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"errors"
	"fmt"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

var (
	// ErrEmptyQuery is returned when a query has no searchable terms.
	ErrEmptyQuery = errors.New("empty query")

	// ErrUnknownSource is returned by the registry for an unsupported name.
	ErrUnknownSource = errors.New("unknown source")
)

// StatusError reports a non-200 response from a catalog.
type StatusError struct {
	Source     types.SourceName
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API returned HTTP %d", e.Source, e.StatusCode)
}
