// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/pdiddy/evidence-engine/internal/httputil"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// NCBI allows 10 requests per second with an API key and 3 without.
const (
	ncbiKeyedRPS = 10
	ncbiAnonRPS  = 3
	defaultRPS   = 3
)

// Registry holds the configured adapters in a fixed order.
type Registry struct {
	adapters []Adapter
	byName   map[types.SourceName]Adapter
}

// NewRegistry returns a registry holding adapters in the given order.
// Later duplicates of a name replace earlier ones.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{byName: make(map[types.SourceName]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces an adapter.
func (r *Registry) Register(a Adapter) {
	name := a.Name()
	if _, ok := r.byName[name]; ok {
		for i, existing := range r.adapters {
			if existing.Name() == name {
				r.adapters[i] = a
			}
		}
	} else {
		r.adapters = append(r.adapters, a)
	}
	r.byName[name] = a
}

// Adapters returns every registered adapter.
func (r *Registry) Adapters() []Adapter {
	return append([]Adapter(nil), r.adapters...)
}

// Names returns the registered source names in order.
func (r *Registry) Names() []types.SourceName {
	names := make([]types.SourceName, len(r.adapters))
	for i, a := range r.adapters {
		names[i] = a.Name()
	}
	return names
}

// Select returns the adapters named in names, in the order given. An empty
// list selects every adapter.
func (r *Registry) Select(names []string) ([]Adapter, error) {
	if len(names) == 0 {
		return r.Adapters(), nil
	}
	var out []Adapter
	seen := make(map[types.SourceName]bool)
	for _, n := range names {
		name := types.SourceName(strings.TrimSpace(strings.ToLower(n)))
		if name == "" || seen[name] {
			continue
		}
		a, ok := r.byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSource, n)
		}
		seen[name] = true
		out = append(out, a)
	}
	return out, nil
}

// DefaultRegistry builds every built-in adapter from cfg. Each network
// adapter gets its own rate limiter; all share the retry policy.
func DefaultRegistry(cfg types.PipelineConfig, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	retry := httputil.PolicyFromConfig(cfg.Retry)
	retry.Logger = logger.With("component", "http")

	rps := cfg.Sources.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRPS
	}
	client := func(rps float64) *Client {
		c := NewClient(cfg.HTTP, retry, rps)
		c.Logger = logger.With("component", "sources")
		return c
	}

	ncbiRPS := float64(ncbiAnonRPS)
	if cfg.Sources.NCBIAPIKey != "" {
		ncbiRPS = ncbiKeyedRPS
	}

	landmark := DefaultLandmarkAdapter()
	if cfg.Sources.LandmarkFile != "" {
		var err error
		if landmark, err = LoadLandmarkAdapter(cfg.Sources.LandmarkFile); err != nil {
			return nil, err
		}
	}

	return NewRegistry(
		&PubMedAdapter{Client: client(ncbiRPS), APIKey: cfg.Sources.NCBIAPIKey},
		&EuropePMCAdapter{Client: client(rps)},
		&OpenAlexAdapter{Client: client(rps), Email: cfg.Sources.OpenAlexEmail},
		&SemanticScholarAdapter{Client: client(1), APIKey: cfg.Sources.SemanticScholarAPIKey},
		&ClinicalTrialsAdapter{Client: client(rps)},
		&DailyMedAdapter{Client: client(rps)},
		landmark,
	), nil
}
