// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sufficiency grades an evidence package and decides whether a
// web-search fallback is needed.
//
// The score is a pure function of the package and the query's concepts:
// fixed points for the kinds of evidence present, a volume bonus, and a
// bonus for guidelines that anchor a recognized clinical scenario. Three
// or more anchors lift the score to a floor. The fallback rule is
// deliberately asymmetric: a good score, any anchor, or a large package
// each suppress it on their own.
package sufficiency

import (
	"time"

	"github.com/pdiddy/evidence-engine/internal/relevance"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Level thresholds.
const (
	limitedAt   = 25
	goodAt      = 40
	excellentAt = 70
	maxScore    = 100

	// maxAnchorBonusMatches bounds how many anchors earn points.
	maxAnchorBonusMatches = 2
)

// Scorer grades evidence packages. It is safe for concurrent use.
type Scorer struct {
	cfg       types.SufficiencyConfig
	scenarios []Scenario
	vocab     *relevance.Vocabulary
	now       func() time.Time
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithScenarios replaces the built-in anchor scenarios.
func WithScenarios(s []Scenario) Option {
	return func(sc *Scorer) { sc.scenarios = s }
}

// WithClock sets the time source used for recency.
func WithClock(now func() time.Time) Option {
	return func(sc *Scorer) {
		if now != nil {
			sc.now = now
		}
	}
}

// New creates a Scorer. Zero fields of cfg take their defaults.
func New(cfg types.SufficiencyConfig, vocab *relevance.Vocabulary, opts ...Option) *Scorer {
	if vocab == nil {
		vocab = relevance.DefaultVocabulary()
	}
	s := &Scorer{
		cfg:       withDefaults(cfg),
		scenarios: DefaultScenarios(),
		vocab:     vocab,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FromConfig creates a Scorer, loading the anchor file when one is set.
func FromConfig(cfg types.SufficiencyConfig, vocab *relevance.Vocabulary) (*Scorer, error) {
	var opts []Option
	if cfg.AnchorFile != "" {
		scenarios, err := LoadScenarios(cfg.AnchorFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithScenarios(scenarios))
	}
	return New(cfg, vocab, opts...), nil
}

func withDefaults(cfg types.SufficiencyConfig) types.SufficiencyConfig {
	def := types.DefaultPipelineConfig().Sufficiency
	fill := func(v *int, d int) {
		if *v <= 0 {
			*v = d
		}
	}
	fill(&cfg.GoldStandardPoints, def.GoldStandardPoints)
	fill(&cfg.GuidelinePoints, def.GuidelinePoints)
	fill(&cfg.TrialPoints, def.TrialPoints)
	fill(&cfg.RecencyPoints, def.RecencyPoints)
	fill(&cfg.DiversityPoints, def.DiversityPoints)
	fill(&cfg.VolumePoints, def.VolumePoints)
	fill(&cfg.AnchorPoints, def.AnchorPoints)
	fill(&cfg.RecentYears, def.RecentYears)
	fill(&cfg.MinRecent, def.MinRecent)
	fill(&cfg.VolumeThreshold, def.VolumeThreshold)
	fill(&cfg.FallbackThreshold, def.FallbackThreshold)
	fill(&cfg.AnchorFloor, def.AnchorFloor)
	fill(&cfg.AnchorFloorMatches, def.AnchorFloorMatches)
	// A good score never falls back.
	cfg.FallbackThreshold = min(cfg.FallbackThreshold, goodAt)
	return cfg
}

// Scenario returns the anchor scenario recognized in query concepts.
func (s *Scorer) Scenario(query types.Concepts) (Scenario, bool) {
	return matchScenario(s.scenarios, query)
}

// Score grades pkg. The package's Concepts identify the anchor scenario.
func (s *Scorer) Score(pkg types.EvidencePackage) types.SufficiencyScore {
	items := make([]types.Candidate, len(pkg.Ranked))
	for i, r := range pkg.Ranked {
		items[i] = r.Item.Candidate
	}
	total := len(items)

	var b types.Breakdown
	var gold, guideline, trial bool
	recent := 0
	kinds := make(map[types.EvidenceKind]bool)
	cutoff := s.now().Year() - s.cfg.RecentYears
	for _, c := range items {
		gold = gold || c.IsGoldStandard()
		guideline = guideline || c.Kind == types.KindGuideline
		trial = trial || (c.Kind == types.KindTrial && c.HasResults)
		if c.Year >= cutoff {
			recent++
		}
		kinds[c.Kind] = true
	}

	if gold {
		b.GoldStandardReviews = s.cfg.GoldStandardPoints
	}
	if guideline {
		b.Guidelines = s.cfg.GuidelinePoints
	}
	if trial {
		b.TrialsWithResults = s.cfg.TrialPoints
	}
	if recent >= s.cfg.MinRecent {
		b.Recency = s.cfg.RecencyPoints
	}
	switch {
	case len(kinds) >= 3:
		b.Diversity = s.cfg.DiversityPoints
	case len(kinds) == 2:
		b.Diversity = s.cfg.DiversityPoints / 2
	}
	if total >= s.cfg.VolumeThreshold {
		b.Volume = s.cfg.VolumePoints
	}

	out := types.SufficiencyScore{TotalEvidence: total}
	if scenario, ok := s.Scenario(pkg.Concepts); ok {
		id := scenario.ID
		out.AnchorScenario = &id
		out.AnchorMatches = countAnchors(scenario, s.vocab, items)
		b.AnchorMatch = min(out.AnchorMatches, maxAnchorBonusMatches) * s.cfg.AnchorPoints
	}

	score := min(b.Total(), maxScore)
	if out.AnchorMatches >= s.cfg.AnchorFloorMatches {
		score = max(score, s.cfg.AnchorFloor)
	}
	out.Score = score
	out.Breakdown = b
	out.Level = level(score)
	if out.AnchorMatches >= 1 && out.Level != types.LevelExcellent {
		out.Level = types.LevelGood
	}
	out.ShouldFallback = !(score >= s.cfg.FallbackThreshold ||
		out.AnchorMatches >= 1 ||
		total >= s.cfg.VolumeThreshold)
	return out
}

func level(score int) types.SufficiencyLevel {
	switch {
	case score >= excellentAt:
		return types.LevelExcellent
	case score >= goodAt:
		return types.LevelGood
	case score >= limitedAt:
		return types.LevelLimited
	default:
		return types.LevelInsufficient
	}
}
