// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sufficiency

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/evidence-engine/internal/relevance"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

var vocab = relevance.DefaultVocabulary()

func fixedClock() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }

func newScorer() *Scorer {
	return New(types.DefaultPipelineConfig().Sufficiency, vocab, WithClock(fixedClock))
}

func pkg(query string, items ...types.Candidate) types.EvidencePackage {
	p := types.EvidencePackage{Query: query, Concepts: vocab.Extract(query)}
	for _, c := range items {
		p.Ranked = append(p.Ranked, types.FusedResult[types.ScoredCandidate]{
			Item: types.NewScored(c, 0.9, 0, types.ProvenanceCrossEncoder),
		})
	}
	return p
}

func article(year int) types.Candidate {
	return types.Candidate{Title: "Observational cohort", Year: year, Kind: types.KindArticle, Source: types.SourcePubMed}
}

func afGuideline(id string) types.Candidate {
	return types.Candidate{
		SourceID: id,
		Title:    "Guideline for the management of atrial fibrillation",
		Abstract: "Oral anticoagulation dosing in chronic kidney disease.",
		Year:     2023,
		Kind:     types.KindGuideline,
		Source:   types.SourceLandmark,
	}
}

func daptGuideline(id string) types.Candidate {
	return types.Candidate{
		SourceID: id,
		Title:    "Focused update on dual antiplatelet therapy",
		Abstract: "Shortened regimens in patients at high bleeding risk.",
		Year:     2017,
		Kind:     types.KindGuideline,
		Source:   types.SourceLandmark,
	}
}

func TestEmptyPackageIsInsufficient(t *testing.T) {
	s := newScorer().Score(pkg("some rare question"))

	assert.Zero(t, s.Score)
	assert.Equal(t, types.LevelInsufficient, s.Level)
	assert.True(t, s.ShouldFallback)
	assert.Nil(t, s.AnchorScenario)
	assert.Zero(t, s.TotalEvidence)
}

func TestBreakdown(t *testing.T) {
	s := newScorer().Score(pkg("q",
		types.Candidate{Title: "Review", Year: 2024, Kind: types.KindSystematicReview, Source: types.SourceCochrane},
		types.Candidate{Title: "Guideline", Year: 2023, Kind: types.KindGuideline},
		types.Candidate{Title: "Trial", Year: 2022, Kind: types.KindTrial, HasResults: true},
		article(2010),
	))

	assert.Equal(t, types.Breakdown{
		GoldStandardReviews: 25,
		Guidelines:          20,
		TrialsWithResults:   15,
		Recency:             10,
		Diversity:           10,
	}, s.Breakdown)
	assert.Equal(t, 80, s.Score)
	assert.Equal(t, types.LevelExcellent, s.Level)
	assert.False(t, s.ShouldFallback)
}

func TestTrialWithoutResultsEarnsNothing(t *testing.T) {
	s := newScorer().Score(pkg("q", types.Candidate{Kind: types.KindTrial, Year: 1999}))
	assert.Zero(t, s.Breakdown.TrialsWithResults)
}

func TestLimitedTriggersFallback(t *testing.T) {
	s := newScorer().Score(pkg("q",
		types.Candidate{Kind: types.KindTrial, HasResults: true, Year: 2025},
		article(2024),
		article(2023),
	))

	assert.Equal(t, 15+10+5, s.Score, "two kinds earn half the diversity points")
	assert.Equal(t, types.LevelLimited, s.Level)
	assert.True(t, s.ShouldFallback)
}

func TestVolumeSuppressesFallback(t *testing.T) {
	var items []types.Candidate
	for i := 0; i < 50; i++ {
		items = append(items, article(2000))
	}
	s := newScorer().Score(pkg("q", items...))

	assert.Equal(t, 20, s.Breakdown.Volume)
	assert.Equal(t, types.LevelInsufficient, s.Level)
	assert.False(t, s.ShouldFallback, "a large package never falls back")
}

func TestSingleAnchorLiftsToGood(t *testing.T) {
	s := newScorer().Score(pkg("apixaban dosing in atrial fibrillation with CKD", afGuideline("g1")))

	require.NotNil(t, s.AnchorScenario)
	assert.Equal(t, "af_anticoag_ckd", *s.AnchorScenario)
	assert.Equal(t, 1, s.AnchorMatches)
	assert.Equal(t, 10, s.Breakdown.AnchorMatch)
	assert.Equal(t, 30, s.Score)
	assert.Equal(t, types.LevelGood, s.Level)
	assert.False(t, s.ShouldFallback)
}

func TestThreeAnchorsApplyFloor(t *testing.T) {
	s := newScorer().Score(pkg("DAPT duration after PCI in high bleeding risk",
		daptGuideline("g1"), daptGuideline("g2"), daptGuideline("g3")))

	require.NotNil(t, s.AnchorScenario)
	assert.Equal(t, "dapt_hbr_pci", *s.AnchorScenario)
	assert.Equal(t, 3, s.AnchorMatches)
	assert.Equal(t, 20, s.Breakdown.AnchorMatch, "anchor bonus is capped")
	assert.Equal(t, 40, s.Breakdown.Total())
	assert.Equal(t, 70, s.Score)
	assert.Equal(t, types.LevelExcellent, s.Level)
}

func TestRecognizedScenarioWithoutAnchors(t *testing.T) {
	s := newScorer().Score(pkg("apixaban dosing in atrial fibrillation with CKD", daptGuideline("g1")))

	require.NotNil(t, s.AnchorScenario)
	assert.Zero(t, s.AnchorMatches, "a guideline for another scenario does not anchor")
	assert.Equal(t, types.LevelInsufficient, s.Level)
	assert.True(t, s.ShouldFallback)
}

func TestScenarioNeedsEveryDisease(t *testing.T) {
	_, ok := newScorer().Scenario(vocab.Extract("apixaban in atrial fibrillation"))
	assert.False(t, ok, "CKD is part of the scenario")

	sc, ok := newScorer().Scenario(vocab.Extract("balanced crystalloids in septic shock"))
	require.True(t, ok)
	assert.Equal(t, "sepsis_fluids", sc.ID)
}

func TestNonGuidelinesNeverAnchor(t *testing.T) {
	g := afGuideline("x")
	g.Kind = types.KindTrial
	s := newScorer().Score(pkg("apixaban dosing in atrial fibrillation with CKD", g))
	assert.Zero(t, s.AnchorMatches)
}

func TestScoreIsCapped(t *testing.T) {
	items := []types.Candidate{
		{Kind: types.KindSystematicReview, Source: types.SourceCochrane, Year: 2025},
		{Kind: types.KindTrial, HasResults: true, Year: 2025},
		daptGuideline("g1"), daptGuideline("g2"),
	}
	for i := 0; i < 50; i++ {
		items = append(items, article(2024))
	}
	s := newScorer().Score(pkg("DAPT duration after PCI in high bleeding risk", items...))

	assert.Equal(t, 120, s.Breakdown.Total())
	assert.Equal(t, 100, s.Score)
}

func TestLevelBoundaries(t *testing.T) {
	tests := []struct {
		score int
		want  types.SufficiencyLevel
	}{
		{0, types.LevelInsufficient},
		{24, types.LevelInsufficient},
		{25, types.LevelLimited},
		{39, types.LevelLimited},
		{40, types.LevelGood},
		{69, types.LevelGood},
		{70, types.LevelExcellent},
		{100, types.LevelExcellent},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.score), func(t *testing.T) {
			assert.Equal(t, tt.want, level(tt.score))
		})
	}
}

func TestZeroConfigUsesDefaults(t *testing.T) {
	s := New(types.SufficiencyConfig{}, nil, WithClock(fixedClock))
	assert.Equal(t, types.DefaultPipelineConfig().Sufficiency, s.cfg)
}

func TestFallbackThresholdCappedAtGood(t *testing.T) {
	cfg := types.DefaultPipelineConfig().Sufficiency
	cfg.FallbackThreshold = 60
	sc := New(cfg, vocab, WithClock(fixedClock))
	assert.Equal(t, goodAt, sc.cfg.FallbackThreshold)

	s := sc.Score(pkg("q",
		types.Candidate{Title: "Review", Year: 2024, Kind: types.KindSystematicReview, Source: types.SourceCochrane},
		types.Candidate{Title: "Guideline", Year: 2023, Kind: types.KindGuideline},
	))
	assert.Equal(t, 50, s.Score)
	assert.Equal(t, types.LevelGood, s.Level)
	assert.False(t, s.ShouldFallback)
}

func TestDefaultScenarios(t *testing.T) {
	ids := make([]string, 0)
	for _, s := range DefaultScenarios() {
		ids = append(ids, s.ID)
		for _, d := range s.Diseases {
			_, ok := vocab.Rule(relevance.Disease, d)
			assert.True(t, ok, "scenario %s disease %s is in the vocabulary", s.ID, d)
		}
	}
	assert.Equal(t, []string{"af_anticoag_ckd", "dapt_hbr_pci", "sepsis_fluids", "hfref_gdmt"}, ids)
}

func TestFromConfigAnchorFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anchors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- id: asthma_biologics
  diseases: [asthma]
  decisions: [asthma_biologics]
`), 0o644))

	cfg := types.DefaultPipelineConfig().Sufficiency
	cfg.AnchorFile = path
	s, err := FromConfig(cfg, vocab)
	require.NoError(t, err)

	sc, ok := s.Scenario(vocab.Extract("mepolizumab versus dupilumab in severe asthma"))
	require.True(t, ok)
	assert.Equal(t, "asthma_biologics", sc.ID)

	cfg.AnchorFile = filepath.Join(t.TempDir(), "absent.yaml")
	_, err = FromConfig(cfg, vocab)
	assert.Error(t, err)
}

func TestParseScenariosValidates(t *testing.T) {
	_, err := ParseScenarios([]byte("- diseases: [sepsis]\n  decisions: [fluid_resuscitation]\n"))
	assert.ErrorContains(t, err, "missing id")

	_, err = ParseScenarios([]byte("- id: x\n  diseases: [sepsis]\n"))
	assert.ErrorContains(t, err, "needs diseases and decisions")
}
