// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package relevance

import (
	"log/slog"
	"strings"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// DefaultMinScore is the concept score out of 100 a candidate must reach.
const DefaultMinScore = 30

// Points per matched query tag, by where the match was found.
const (
	titlePoints    = 20
	tagPoints      = 20
	abstractPoints = 10
)

// categoryCaps bound each category's contribution; they sum to 100.
var categoryCaps = map[Category]int{
	Disease:      40,
	Biomarker:    30,
	Intervention: 20,
	Outcome:      10,
}

// Score is a candidate's concept score.
type Score struct {
	Total       int              `json:"total"`
	PerCategory map[Category]int `json:"per_category"`
}

// Filter scores candidates against the query's concepts.
type Filter struct {
	vocab    *Vocabulary
	minScore int
	logger   *slog.Logger
}

// NewFilter creates a Filter. minScore <= 0 uses DefaultMinScore.
func NewFilter(vocab *Vocabulary, minScore int, logger *slog.Logger) *Filter {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{vocab: vocab, minScore: minScore, logger: logger.With("component", "relevance")}
}

// FromConfig creates a Filter, loading the vocabulary file when one is set.
func FromConfig(cfg types.RelevanceConfig, logger *slog.Logger) (*Filter, error) {
	vocab := DefaultVocabulary()
	if cfg.VocabularyFile != "" {
		v, err := LoadVocabulary(cfg.VocabularyFile)
		if err != nil {
			return nil, err
		}
		vocab = v
	}
	return NewFilter(vocab, cfg.MinScore, logger), nil
}

// Vocabulary returns the rule tables in use.
func (f *Filter) Vocabulary() *Vocabulary { return f.vocab }

// Extract returns the concepts of a query.
func (f *Filter) Extract(query string) types.Concepts { return f.vocab.Extract(query) }

// Score awards points for each query tag found in the candidate's title,
// MeSH tags or abstract, capped per category.
func (f *Filter) Score(c types.Candidate, concepts types.Concepts) Score {
	title := c.Title
	tags := strings.Join(c.Tags, "; ")
	s := Score{PerCategory: make(map[Category]int, len(Categories))}

	for _, cat := range Categories {
		points := 0
		for _, tag := range Tags(concepts, cat) {
			rule, ok := f.vocab.Rule(cat, tag)
			if !ok {
				continue
			}
			if rule.Matches(title) {
				points += titlePoints
			}
			if tags != "" && rule.Matches(tags) {
				points += tagPoints
			}
			if c.Abstract != "" && rule.Matches(c.Abstract) {
				points += abstractPoints
			}
		}
		points = min(points, categoryCaps[cat])
		s.PerCategory[cat] = points
		s.Total += points
	}
	return s
}

// FilterByTags keeps the candidates whose score reaches the minimum,
// preserving order. A zero score is never kept, so a query with no
// recognized concepts keeps nothing.
func (f *Filter) FilterByTags(candidates []types.ScoredCandidate, concepts types.Concepts) []types.ScoredCandidate {
	kept := make([]types.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		s := f.Score(c.Candidate, concepts)
		if s.Total > 0 && s.Total >= f.minScore {
			kept = append(kept, c)
			continue
		}
		f.logger.Debug("dropped by tag filter", "source", c.Source, "id", c.SourceID, "score", s.Total)
	}
	return kept
}
