// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rerank orders candidates with a cross-encoder that scores each
// (query, document) pair jointly, and cuts the list down to the few
// results worth keeping.
package rerank

import (
	"context"
	"log/slog"
	"sort"

	"github.com/pdiddy/evidence-engine/internal/lexical"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// docChars bounds the abstract length sent with each pair.
const docChars = 2000

// Pair is one cross-encoder input.
type Pair struct {
	Query string
	Doc   string
}

// CrossEncoder scores pairs. It returns one label list per pair, in input
// order.
type CrossEncoder interface {
	Classify(ctx context.Context, pairs []Pair) ([][]Label, error)
}

// DefaultMinCandidates is the smallest set sent to the model.
const DefaultMinCandidates = 3

// Options holds the selectivity settings. A zero MinCandidates means
// DefaultMinCandidates.
type Options struct {
	TopK            int
	MinScore        float64
	BatchSize       int
	MinCandidates   int
	MinSeparation   float64
	TieBreakWeight  float64
	TopBand         int
	NarrowBandRange float64
}

// DefaultOptions returns top 10 above 0.7, shrinking to 5 on a flat top band.
func DefaultOptions() Options {
	return Options{
		TopK:            10,
		MinScore:        0.7,
		BatchSize:       32,
		MinCandidates:   DefaultMinCandidates,
		MinSeparation:   0.05,
		TieBreakWeight:  0.15,
		TopBand:         5,
		NarrowBandRange: 0.02,
	}
}

// OptionsFromConfig converts configuration, keeping defaults for unset fields.
func OptionsFromConfig(cfg types.RerankConfig) Options {
	o := DefaultOptions()
	if cfg.TopK > 0 {
		o.TopK = cfg.TopK
	}
	if cfg.MinScore > 0 {
		o.MinScore = cfg.MinScore
	}
	if cfg.BatchSize > 0 {
		o.BatchSize = cfg.BatchSize
	}
	if cfg.MinCandidates > 0 {
		o.MinCandidates = cfg.MinCandidates
	}
	if cfg.MinSeparation > 0 {
		o.MinSeparation = cfg.MinSeparation
	}
	if cfg.TieBreakWeight > 0 {
		o.TieBreakWeight = cfg.TieBreakWeight
	}
	if cfg.TopBand > 0 {
		o.TopBand = cfg.TopBand
	}
	if cfg.NarrowBandRange > 0 {
		o.NarrowBandRange = cfg.NarrowBandRange
	}
	return o
}

// Reranker applies a CrossEncoder. It is safe for concurrent use.
type Reranker struct {
	encoder CrossEncoder
	logger  *slog.Logger
}

// New creates a Reranker. A nil encoder orders by lexical similarity.
func New(encoder CrossEncoder, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{encoder: encoder, logger: logger.With("component", "rerank")}
}

// Rerank returns candidates sorted by relevance to query, descending.
//
// Sets smaller than MinCandidates are returned as-is with score 1.0.
// Otherwise every pair is scored in sequential batches. When the model's
// scores are nearly flat a lexical tie-breaker is blended in. Results
// below MinScore are dropped, the rest truncated to TopK, and to TopBand
// when the leading band is too flat to distinguish. When the model fails
// for every batch the candidates are ordered by lexical similarity alone
// and only truncated to TopK.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []types.ScoredCandidate, opts Options) []types.ScoredCandidate {
	if len(candidates) == 0 {
		return nil
	}
	minN := opts.MinCandidates
	if minN <= 0 {
		minN = DefaultMinCandidates
	}
	if len(candidates) < minN {
		out := make([]types.ScoredCandidate, len(candidates))
		for i, c := range candidates {
			out[i] = c
			out[i].Score = 1
			out[i].OriginalRank = i
		}
		return out
	}

	docs := make([]string, len(candidates))
	lex := make([]float64, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Text(docChars)
		lex[i] = lexical.TieBreak(query, docs[i])
	}

	model, ok := r.score(ctx, query, docs, opts.BatchSize)
	if !ok {
		return lexicalOrder(candidates, lex, opts.TopK)
	}

	lo, hi := 1.0, 0.0
	for _, s := range model {
		if s < 0 {
			continue
		}
		lo, hi = min(lo, s), max(hi, s)
	}
	flat := hi-lo < opts.MinSeparation
	if flat {
		r.logger.Debug("cross-encoder scores flat, blending lexical tie-breaker", "range", hi-lo)
	}

	out := make([]types.ScoredCandidate, len(candidates))
	for i, c := range candidates {
		switch {
		case model[i] < 0:
			out[i] = types.NewScored(c.Candidate, lex[i], i, types.ProvenanceLexical)
		case flat:
			w := opts.TieBreakWeight
			out[i] = types.NewScored(c.Candidate, (1-w)*model[i]+w*lex[i], i, types.ProvenanceBlended)
		default:
			out[i] = types.NewScored(c.Candidate, model[i], i, types.ProvenanceCrossEncoder)
		}
	}
	sortDesc(out)
	return r.cap(out, opts)
}

// score runs the encoder batch by batch. A pair whose batch failed or
// whose output was unusable scores -1. ok is false when no pair scored.
func (r *Reranker) score(ctx context.Context, query string, docs []string, batchSize int) ([]float64, bool) {
	scores := make([]float64, len(docs))
	for i := range scores {
		scores[i] = -1
	}
	if r.encoder == nil {
		return scores, false
	}
	if batchSize <= 0 {
		batchSize = DefaultOptions().BatchSize
	}

	scored := 0
	for start := 0; start < len(docs); start += batchSize {
		end := min(start+batchSize, len(docs))
		pairs := make([]Pair, 0, end-start)
		for _, d := range docs[start:end] {
			pairs = append(pairs, Pair{Query: query, Doc: d})
		}

		labels, err := r.encoder.Classify(ctx, pairs)
		if err != nil {
			r.logger.Warn("cross-encoder batch failed", "batch_start", start, "size", len(pairs), "err", err)
			continue
		}
		if len(labels) != len(pairs) {
			r.logger.Warn("cross-encoder returned wrong number of results", "want", len(pairs), "got", len(labels))
			continue
		}
		for i, ls := range labels {
			if s, ok := Normalize(ls); ok {
				scores[start+i] = s
				scored++
			}
		}
	}
	return scores, scored > 0
}

// cap applies MinScore, TopK and the narrow-band shrink to a sorted list.
func (r *Reranker) cap(sorted []types.ScoredCandidate, opts Options) []types.ScoredCandidate {
	kept := sorted[:0]
	for _, c := range sorted {
		if c.Score >= opts.MinScore {
			kept = append(kept, c)
		}
	}
	if opts.TopK > 0 && len(kept) > opts.TopK {
		kept = kept[:opts.TopK]
	}
	if band := opts.TopBand; band > 0 && len(kept) > band {
		if kept[0].Score-kept[band-1].Score < opts.NarrowBandRange {
			r.logger.Debug("top band flat, shrinking", "band", band, "range", kept[0].Score-kept[band-1].Score)
			kept = kept[:band]
		}
	}
	return kept
}

func lexicalOrder(candidates []types.ScoredCandidate, lex []float64, topK int) []types.ScoredCandidate {
	out := make([]types.ScoredCandidate, len(candidates))
	for i, c := range candidates {
		out[i] = types.NewScored(c.Candidate, lex[i], i, types.ProvenanceLexical)
	}
	sortDesc(out)
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

func sortDesc(s []types.ScoredCandidate) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].Score > s[j].Score })
}
