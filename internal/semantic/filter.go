// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package semantic implements the first relevance stage: candidates are
// kept when a blend of embedding similarity and keyword overlap with the
// query clears a threshold.
package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/pdiddy/evidence-engine/internal/embed"
	"github.com/pdiddy/evidence-engine/internal/lexical"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// DefaultThreshold is the blended score a candidate must reach.
const DefaultThreshold = 0.45

// Options tunes the blend and the embedding calls.
type Options struct {
	SemanticWeight float64
	KeywordWeight  float64
	BatchSize      int
	AbstractChars  int
	Dimension      int
}

// DefaultOptions returns the 60/40 semantic/keyword split.
func DefaultOptions() Options {
	return Options{
		SemanticWeight: 0.6,
		KeywordWeight:  0.4,
		BatchSize:      32,
		AbstractChars:  1000,
		Dimension:      embed.DefaultDimension,
	}
}

// OptionsFromConfig converts configuration, keeping defaults for unset fields.
func OptionsFromConfig(cfg types.SemanticConfig) Options {
	o := DefaultOptions()
	if cfg.SemanticWeight > 0 || cfg.KeywordWeight > 0 {
		o.SemanticWeight = cfg.SemanticWeight
		o.KeywordWeight = cfg.KeywordWeight
	}
	if cfg.BatchSize > 0 {
		o.BatchSize = cfg.BatchSize
	}
	if cfg.AbstractChars > 0 {
		o.AbstractChars = cfg.AbstractChars
	}
	if cfg.Dimension > 0 {
		o.Dimension = cfg.Dimension
	}
	return o
}

// Filter scores candidates against a query. It is safe for concurrent use.
type Filter struct {
	embedder embed.Embedder
	pseudo   *embed.Pseudo
	opts     Options
	logger   *slog.Logger
}

// New creates a Filter. A nil embedder uses pseudo-embeddings throughout.
func New(e embed.Embedder, opts Options, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions().BatchSize
	}
	pseudo := embed.NewPseudo(opts.Dimension)
	if e == nil {
		e = pseudo
	}
	return &Filter{
		embedder: e,
		pseudo:   pseudo,
		opts:     opts,
		logger:   logger.With("component", "semantic"),
	}
}

// Filter returns the candidates whose blended score is at least threshold,
// sorted by score descending. Equal scores keep input order. An embedding
// failure anywhere switches the whole call to pseudo-embeddings so query
// and candidate vectors stay comparable.
func (f *Filter) Filter(ctx context.Context, query string, candidates []types.Candidate, threshold float64) []types.ScoredCandidate {
	if len(candidates) == 0 {
		return nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text(f.opts.AbstractChars)
	}

	queryVec, docVecs, err := f.embedAll(ctx, query, texts)
	if err != nil {
		f.logger.Warn("embedding failed, using pseudo-embeddings", "err", err, "candidates", len(candidates))
		queryVec = f.pseudo.Vector(query)
		docVecs, _ = f.pseudo.EmbedTexts(ctx, texts)
	}

	provenance := types.ProvenanceSemantic
	if f.opts.KeywordWeight > 0 {
		provenance = types.ProvenanceBlended
	}

	kept := make([]types.ScoredCandidate, 0, len(candidates))
	for i, c := range candidates {
		score := f.opts.SemanticWeight*embed.Cosine(queryVec, docVecs[i]) +
			f.opts.KeywordWeight*lexical.KeywordOverlap(query, texts[i])
		sc := types.NewScored(c, score, i, provenance)
		if sc.Score >= threshold {
			kept = append(kept, sc)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })

	f.logger.Debug("semantic filter", "in", len(candidates), "kept", len(kept), "threshold", threshold)
	return kept
}

func (f *Filter) embedAll(ctx context.Context, query string, texts []string) ([]float32, [][]float32, error) {
	queryVec, err := f.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	docs := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += f.opts.BatchSize {
		end := min(start+f.opts.BatchSize, len(texts))
		vecs, err := f.embedder.EmbedTexts(ctx, texts[start:end])
		if err != nil {
			return nil, nil, err
		}
		if len(vecs) != end-start {
			return nil, nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), end-start)
		}
		docs = append(docs, vecs...)
	}
	return queryVec, docs, nil
}
