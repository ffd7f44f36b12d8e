// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline assembles the retrieval-and-ranking stages into the single
// operation exposed to callers: gather evidence for a clinical query, rank
// it, and judge whether it is sufficient.
//
// Each source's candidates pass through the semantic filter, the
// cross-encoder reranker, and the tag filter independently, so sources are
// ranked in parallel. The surviving per-source lists are merged with
// Reciprocal Rank Fusion and scored for sufficiency. A web search runs
// when the score calls for a fallback.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/evidence-engine/internal/cache"
	"github.com/pdiddy/evidence-engine/internal/embed"
	"github.com/pdiddy/evidence-engine/internal/fallback"
	"github.com/pdiddy/evidence-engine/internal/fusion"
	"github.com/pdiddy/evidence-engine/internal/gather"
	"github.com/pdiddy/evidence-engine/internal/httputil"
	"github.com/pdiddy/evidence-engine/internal/metrics"
	"github.com/pdiddy/evidence-engine/internal/relevance"
	"github.com/pdiddy/evidence-engine/internal/rerank"
	"github.com/pdiddy/evidence-engine/internal/semantic"
	"github.com/pdiddy/evidence-engine/internal/sources"
	"github.com/pdiddy/evidence-engine/internal/sufficiency"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Fallback outcomes recorded in metrics.
const (
	fallbackOK      = "ok"
	fallbackError   = "error"
	fallbackSkipped = "skipped"
)

// Result is the outcome of one GatherAndRankEvidence call.
type Result struct {
	Package     types.EvidencePackage  `json:"package" yaml:"package"`
	Sufficiency types.SufficiencyScore `json:"sufficiency" yaml:"sufficiency"`
	Stats       types.Stats            `json:"stats" yaml:"stats"`
}

// Pipeline runs the evidence stages. It is safe for concurrent use.
type Pipeline struct {
	adapters    []sources.Adapter
	coordinator *gather.Coordinator
	cache       *cache.Cache
	semantic    *semantic.Filter
	threshold   float64
	reranker    *rerank.Reranker
	rerankOpts  rerank.Options
	relevance   *relevance.Filter
	scorer      *sufficiency.Scorer
	searcher    fallback.Searcher
	fusion      types.FusionConfig
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithAdapters sets the sources queried by every request.
func WithAdapters(adapters ...sources.Adapter) Option {
	return func(p *Pipeline) { p.adapters = adapters }
}

// WithCoordinator sets the fan-out coordinator.
func WithCoordinator(co *gather.Coordinator) Option {
	return func(p *Pipeline) { p.coordinator = co }
}

// WithCache hands the cache to the pipeline so Close releases it. The
// coordinator must be built with the same cache to use it.
func WithCache(c *cache.Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithSemanticFilter sets the first-stage filter and its threshold.
func WithSemanticFilter(f *semantic.Filter, threshold float64) Option {
	return func(p *Pipeline) {
		p.semantic = f
		p.threshold = threshold
	}
}

// WithReranker sets the cross-encoder reranker and its options.
func WithReranker(r *rerank.Reranker, opts rerank.Options) Option {
	return func(p *Pipeline) {
		p.reranker = r
		p.rerankOpts = opts
	}
}

// WithRelevanceFilter sets the tag filter. Its vocabulary also extracts
// the query concepts.
func WithRelevanceFilter(f *relevance.Filter) Option {
	return func(p *Pipeline) { p.relevance = f }
}

// WithScorer sets the sufficiency scorer.
func WithScorer(s *sufficiency.Scorer) Option {
	return func(p *Pipeline) { p.scorer = s }
}

// WithFallback sets the web search used when evidence is insufficient.
// A nil searcher disables the fallback.
func WithFallback(s fallback.Searcher) Option {
	return func(p *Pipeline) { p.searcher = s }
}

// WithFusion sets the RRF constant and per-source weights.
func WithFusion(cfg types.FusionConfig) Option {
	return func(p *Pipeline) { p.fusion = cfg }
}

// WithMetrics records request metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a Pipeline. Stages not supplied by an option use their
// service-free defaults: pseudo-embeddings, lexical reranking, the
// built-in vocabulary and anchor scenarios, and no fallback.
func New(opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		threshold:  semantic.DefaultThreshold,
		rerankOpts: rerank.DefaultOptions(),
		fusion:     types.FusionConfig{K: fusion.DefaultK},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.coordinator == nil {
		co, err := gather.New(gather.WithCache(p.cache), gather.WithLogger(p.logger))
		if err != nil {
			return nil, fmt.Errorf("creating coordinator: %w", err)
		}
		p.coordinator = co
	}
	if p.semantic == nil {
		p.semantic = semantic.New(nil, semantic.DefaultOptions(), p.logger)
	}
	if p.reranker == nil {
		p.reranker = rerank.New(nil, p.logger)
	}
	if p.relevance == nil {
		p.relevance = relevance.NewFilter(nil, 0, p.logger)
	}
	if p.scorer == nil {
		p.scorer = sufficiency.New(types.SufficiencyConfig{}, p.relevance.Vocabulary())
	}
	p.logger = p.logger.With("component", "pipeline")
	return p, nil
}

// FromConfig builds every stage from cfg. reg receives the Prometheus
// collectors; a nil reg disables metrics.
func FromConfig(cfg types.PipelineConfig, reg prometheus.Registerer, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry, err := sources.DefaultRegistry(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("building sources: %w", err)
	}
	adapters, err := registry.Select(cfg.Sources.Enabled)
	if err != nil {
		return nil, err
	}

	relevanceFilter, err := relevance.FromConfig(cfg.Relevance, logger)
	if err != nil {
		return nil, fmt.Errorf("loading vocabulary: %w", err)
	}
	scorer, err := sufficiency.FromConfig(cfg.Sufficiency, relevanceFilter.Vocabulary())
	if err != nil {
		return nil, fmt.Errorf("loading anchor scenarios: %w", err)
	}

	semOpts := semantic.OptionsFromConfig(cfg.Semantic)
	embedder, err := embed.FromConfig(cfg.Embedding, semOpts.Dimension, logger)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	c, err := cache.Open(cfg.Cache, logger)
	if err != nil {
		return nil, err
	}
	co, err := gather.FromConfig(cfg.Gather, c, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("creating coordinator: %w", err)
	}

	retry := httputil.PolicyFromConfig(cfg.Retry)
	retry.Logger = logger.With("component", "http")

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}

	threshold := cfg.Semantic.Threshold
	if threshold <= 0 {
		threshold = semantic.DefaultThreshold
	}

	return New(
		WithAdapters(adapters...),
		WithCache(c),
		WithCoordinator(co),
		WithSemanticFilter(semantic.New(embedder, semOpts, logger), threshold),
		WithReranker(rerank.FromConfig(cfg.CrossEncoder, cfg.HTTP, retry, logger), rerank.OptionsFromConfig(cfg.Rerank)),
		WithRelevanceFilter(relevanceFilter),
		WithScorer(scorer),
		WithFallback(fallback.FromConfig(cfg.Fallback, cfg.HTTP, retry, logger)),
		WithFusion(cfg.Fusion),
		WithMetrics(m),
		WithLogger(logger),
	)
}

// Sources returns the names of the configured adapters.
func (p *Pipeline) Sources() []types.SourceName {
	names := make([]types.SourceName, len(p.adapters))
	for i, a := range p.adapters {
		names[i] = a.Name()
	}
	return names
}

// Cache returns the cache in use, which may be nil.
func (p *Pipeline) Cache() *cache.Cache { return p.cache }

// Close releases the worker pool and the cache backend.
func (p *Pipeline) Close() error {
	var result *multierror.Error
	p.coordinator.Release()
	if err := p.cache.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("closing cache: %w", err))
	}
	return result.ErrorOrNil()
}

// GatherAndRankEvidence runs the full pipeline for one clinical query.
// Source, cache and model failures degrade the result but never fail the
// call; only a blank query is an error.
func (p *Pipeline) GatherAndRankEvidence(ctx context.Context, clinicalQuery string) (Result, error) {
	start := time.Now()
	query := strings.TrimSpace(clinicalQuery)
	if query == "" {
		return Result{}, ErrEmptyQuery
	}

	reqID := uuid.NewString()
	logger := p.logger.With("request_id", reqID)
	concepts := p.relevance.Extract(query)
	logger.Info("gathering evidence", "query", query, "sources", len(p.adapters))

	set := p.coordinator.Gather(ctx, query, p.adapters)

	stats := types.Stats{
		RequestID: reqID,
		Raw:       set.Total(),
		CacheHits: set.CacheHits(),
		PerSource: make(map[types.SourceName]types.SourceStats, len(set.Order)),
	}
	for _, name := range set.Order {
		r := set.Results[name]
		ss := types.SourceStats{Status: r.Status, Latency: r.Latency, Raw: len(r.Candidates)}
		if r.Err != nil {
			ss.Error = r.Err.Error()
		}
		stats.PerSource[name] = ss
		p.metrics.ObserveSource(name, r.Status, r.Latency)
	}

	ranked := make([]rankedSource, len(set.Order))
	var g errgroup.Group
	for i, name := range set.Order {
		candidates := set.Candidates(name)
		if len(candidates) == 0 {
			continue
		}
		g.Go(func() error {
			ranked[i] = p.rankSource(ctx, query, concepts, candidates)
			return nil
		})
	}
	_ = g.Wait()

	pkg := types.EvidencePackage{
		Query:     query,
		Concepts:  concepts,
		PerSource: make(map[types.SourceName][]types.ScoredCandidate),
	}
	var lists []fusion.List[types.ScoredCandidate]
	for i, name := range set.Order {
		rs := ranked[i]
		ss := stats.PerSource[name]
		ss.SemanticFiltered = rs.semantic
		ss.Reranked = rs.reranked
		ss.Final = len(rs.final)
		stats.PerSource[name] = ss

		stats.SemanticFiltered += rs.semantic
		stats.Reranked += rs.reranked
		if len(rs.final) == 0 {
			continue
		}
		pkg.PerSource[name] = rs.final
		lists = append(lists, fusion.List[types.ScoredCandidate]{
			Name:   string(name),
			Items:  rs.final,
			Weight: p.fusion.SourceWeights[string(name)],
		})
	}
	pkg.Ranked = fusion.Fuse(lists, fusionKey, fusion.Options{K: p.fusion.K})
	stats.Final = len(pkg.Ranked)

	score := p.scorer.Score(pkg)
	if score.ShouldFallback {
		pkg.Fallback = p.runFallback(ctx, logger, query, &stats)
	}

	stats.Latency = time.Since(start)
	p.metrics.ObserveStats(stats, score.Level)
	logger.Info("evidence ranked",
		"raw", stats.Raw,
		"semantic", stats.SemanticFiltered,
		"reranked", stats.Reranked,
		"final", stats.Final,
		"cache_hits", stats.CacheHits,
		"score", score.Score,
		"level", score.Level,
		"latency", stats.Latency)

	return Result{Package: pkg, Sufficiency: score, Stats: stats}, nil
}

type rankedSource struct {
	semantic int
	reranked int
	final    []types.ScoredCandidate
}

// rankSource runs the three per-source stages over one source's candidates.
func (p *Pipeline) rankSource(ctx context.Context, query string, concepts types.Concepts, candidates []types.Candidate) rankedSource {
	filtered := p.semantic.Filter(ctx, query, candidates, p.threshold)
	reranked := p.reranker.Rerank(ctx, query, filtered, p.rerankOpts)
	tagged := p.relevance.FilterByTags(reranked, concepts)
	return rankedSource{
		semantic: len(filtered),
		reranked: len(reranked),
		final:    dedupScored(tagged),
	}
}

func (p *Pipeline) runFallback(ctx context.Context, logger *slog.Logger, query string, stats *types.Stats) []types.Citation {
	if p.searcher == nil {
		p.metrics.ObserveFallback(fallbackSkipped)
		return nil
	}
	stats.FallbackTriggered = true
	citations, err := p.searcher.Search(ctx, query)
	if err != nil {
		logger.Warn("fallback search failed", "err", err)
		p.metrics.ObserveFallback(fallbackError)
		return nil
	}
	stats.FallbackResults = len(citations)
	p.metrics.ObserveFallback(fallbackOK)
	return citations
}

func fusionKey(s types.ScoredCandidate) string { return s.FusionKey() }

// dedupScored keeps the first occurrence of each SourceID.
func dedupScored(in []types.ScoredCandidate) []types.ScoredCandidate {
	seen := make(map[string]bool, len(in))
	out := make([]types.ScoredCandidate, 0, len(in))
	for _, c := range in {
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
