// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import "errors"

// ErrEmptyQuery is returned when the clinical query is blank.
var ErrEmptyQuery = errors.New("clinical query is empty")
