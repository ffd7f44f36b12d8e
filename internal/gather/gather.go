// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package gather fans a query out to every evidence source concurrently.
//
// Each source is read through the cache first. On a miss the adapter is
// called under a per-source timeout and a successful result is written
// back. A failing source contributes an empty list and a status; it never
// stops the others. The coordinator returns when every source has finished
// or the global budget elapses, whichever comes first. Sources still
// running at that point are abandoned: they are not cancelled, and a late
// result still reaches the cache, but Gather does not wait for it.
package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/pdiddy/evidence-engine/internal/cache"
	"github.com/pdiddy/evidence-engine/internal/sources"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

const (
	DefaultPerSourceTimeout = 15 * time.Second
	DefaultGlobalBudget     = 30 * time.Second
	DefaultMaxResults       = 20
)

// SourceResult is the outcome of one source branch.
type SourceResult struct {
	Source     types.SourceName
	Candidates []types.Candidate
	Status     types.SourceStatus
	Err        error
	Latency    time.Duration
}

// PartialResultSet holds every source's outcome, including the sources
// that were abandoned at the budget.
type PartialResultSet struct {
	// Order lists the sources in the order they were requested.
	Order   []types.SourceName
	Results map[types.SourceName]SourceResult
	Elapsed time.Duration
}

// Candidates returns the candidates gathered from source.
func (p PartialResultSet) Candidates(source types.SourceName) []types.Candidate {
	return p.Results[source].Candidates
}

// Total returns the number of candidates across all sources.
func (p PartialResultSet) Total() int {
	n := 0
	for _, r := range p.Results {
		n += len(r.Candidates)
	}
	return n
}

// CacheHits returns the number of sources served from the cache.
func (p PartialResultSet) CacheHits() int {
	n := 0
	for _, r := range p.Results {
		if r.Status == types.StatusCached {
			n++
		}
	}
	return n
}

// Coordinator runs the fan-out. It is safe for concurrent use; one
// Coordinator serves many queries.
type Coordinator struct {
	cache            *cache.Cache
	pool             *ants.Pool
	perSourceTimeout time.Duration
	budget           time.Duration
	maxResults       int
	now              func() time.Time
	logger           *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator) error

// WithCache sets the read-through cache. Without one every call goes to
// the source.
func WithCache(c *cache.Cache) Option {
	return func(co *Coordinator) error {
		co.cache = c
		return nil
	}
}

// WithPerSourceTimeout bounds a single adapter call.
func WithPerSourceTimeout(d time.Duration) Option {
	return func(co *Coordinator) error {
		if d > 0 {
			co.perSourceTimeout = d
		}
		return nil
	}
}

// WithGlobalBudget bounds how long Gather waits. Zero waits for every source.
func WithGlobalBudget(d time.Duration) Option {
	return func(co *Coordinator) error {
		co.budget = d
		return nil
	}
}

// WithMaxConcurrency limits simultaneous adapter calls with a worker pool.
// n <= 0 leaves calls unbounded.
func WithMaxConcurrency(n int) Option {
	return func(co *Coordinator) error {
		if co.pool != nil {
			co.pool.Release()
			co.pool = nil
		}
		if n <= 0 {
			return nil
		}
		pool, err := ants.NewPool(n)
		if err != nil {
			return fmt.Errorf("creating worker pool: %w", err)
		}
		co.pool = pool
		return nil
	}
}

// WithMaxResults sets the per-source result limit passed to adapters.
func WithMaxResults(n int) Option {
	return func(co *Coordinator) error {
		if n > 0 {
			co.maxResults = n
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(co *Coordinator) error {
		if logger == nil {
			logger = slog.Default()
		}
		co.logger = logger
		return nil
	}
}

// New creates a Coordinator.
func New(opts ...Option) (*Coordinator, error) {
	co := &Coordinator{
		perSourceTimeout: DefaultPerSourceTimeout,
		budget:           DefaultGlobalBudget,
		maxResults:       DefaultMaxResults,
		now:              time.Now,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(co); err != nil {
			co.Release()
			return nil, err
		}
	}
	co.logger = co.logger.With("component", "gather")
	return co, nil
}

// FromConfig creates a Coordinator from configuration.
func FromConfig(cfg types.GatherConfig, c *cache.Cache, logger *slog.Logger) (*Coordinator, error) {
	return New(
		WithCache(c),
		WithPerSourceTimeout(cfg.PerSourceTimeout),
		WithGlobalBudget(cfg.GlobalBudget),
		WithMaxConcurrency(cfg.MaxConcurrency),
		WithMaxResults(cfg.MaxResultsPerSource),
		WithLogger(logger),
	)
}

// Release stops the worker pool. Abandoned calls already running finish
// on their own.
func (co *Coordinator) Release() {
	if co.pool != nil {
		co.pool.Release()
	}
}

// Gather queries every adapter and returns what arrived within the budget.
func (co *Coordinator) Gather(ctx context.Context, query string, adapters []sources.Adapter) PartialResultSet {
	start := co.now()
	set := PartialResultSet{
		Order:   make([]types.SourceName, len(adapters)),
		Results: make(map[types.SourceName]SourceResult, len(adapters)),
	}
	for i, a := range adapters {
		set.Order[i] = a.Name()
	}
	if len(adapters) == 0 {
		return set
	}

	// Buffered so abandoned branches never block on send.
	results := make(chan SourceResult, len(adapters))
	task := func(a sources.Adapter) func() {
		return func() { results <- co.run(ctx, query, a) }
	}

	if co.pool == nil {
		for _, a := range adapters {
			go task(a)()
		}
	} else {
		go func() {
			for _, a := range adapters {
				if ctx.Err() != nil {
					return
				}
				if err := co.pool.Submit(task(a)); err != nil {
					results <- SourceResult{Source: a.Name(), Status: types.StatusError, Err: err}
				}
			}
		}()
	}

	var deadline <-chan time.Time
	if co.budget > 0 {
		timer := time.NewTimer(co.budget)
		defer timer.Stop()
		deadline = timer.C
	}

	pending := len(adapters)
wait:
	for pending > 0 {
		select {
		case r := <-results:
			set.Results[r.Source] = r
			pending--
		case <-deadline:
			break wait
		case <-ctx.Done():
			break wait
		}
	}

	for _, name := range set.Order {
		if _, ok := set.Results[name]; ok {
			continue
		}
		err := ErrBudgetExceeded
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		co.logger.Warn("source abandoned", "source", name, "err", err)
		set.Results[name] = SourceResult{Source: name, Status: types.StatusAbandoned, Err: err}
	}
	set.Elapsed = co.now().Sub(start)
	return set
}

// run serves one source: cache first, then the adapter under its timeout.
func (co *Coordinator) run(ctx context.Context, query string, a sources.Adapter) SourceResult {
	name := a.Name()
	start := co.now()

	if entry, ok := co.cache.Get(ctx, query, name); ok {
		co.logger.Debug("cache hit", "source", name, "candidates", len(entry.Candidates))
		return SourceResult{
			Source:     name,
			Candidates: entry.Candidates,
			Status:     types.StatusCached,
			Latency:    co.now().Sub(start),
		}
	}

	actx, cancel := context.WithTimeout(ctx, co.perSourceTimeout)
	defer cancel()

	candidates, err := search(actx, a, query, co.maxResults)
	latency := co.now().Sub(start)
	if err != nil {
		status := types.StatusError
		if errors.Is(actx.Err(), context.DeadlineExceeded) {
			status = types.StatusTimeout
		}
		co.logger.Warn("source failed", "source", name, "status", status, "err", err, "latency", latency)
		return SourceResult{Source: name, Status: status, Err: err, Latency: latency}
	}

	candidates = DedupBySourceID(candidates)
	co.cache.Put(context.WithoutCancel(ctx), query, name, candidates)
	co.logger.Debug("source done", "source", name, "candidates", len(candidates), "latency", latency)
	return SourceResult{Source: name, Candidates: candidates, Status: types.StatusOK, Latency: latency}
}

// search calls the adapter and turns a panic on a malformed payload into
// an error.
func search(ctx context.Context, a sources.Adapter, query string, maxResults int) (candidates []types.Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrAdapterPanic, r)
		}
	}()
	return a.Search(ctx, query, maxResults)
}

// DedupBySourceID drops later candidates whose SourceID was already seen.
// Candidates without an id are kept.
func DedupBySourceID(candidates []types.Candidate) []types.Candidate {
	seen := make(map[string]bool, len(candidates))
	out := make([]types.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.SourceID != "" {
			if seen[c.SourceID] {
				continue
			}
			seen[c.SourceID] = true
		}
		out = append(out, c)
	}
	return out
}
