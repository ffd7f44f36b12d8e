// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package relevance

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

func TestExtractDAPTQuery(t *testing.T) {
	c := DefaultVocabulary().Extract("DAPT duration after PCI in high bleeding risk")

	assert.Equal(t, []string{"high_bleeding_risk"}, c.Diseases)
	assert.Equal(t, []string{"antiplatelet", "pci"}, c.Interventions)
	assert.Equal(t, []string{"bleeding"}, c.Outcomes)
	assert.Empty(t, c.Biomarkers)
}

func TestExtractAFQuery(t *testing.T) {
	c := DefaultVocabulary().Extract("Apixaban dosing in atrial fibrillation with CKD and eGFR below 30")

	assert.Equal(t, []string{"atrial_fibrillation", "chronic_kidney_disease"}, c.Diseases)
	assert.Equal(t, []string{"egfr"}, c.Biomarkers)
	assert.Equal(t, []string{"anticoagulation"}, c.Interventions)
}

func TestExtractIsPure(t *testing.T) {
	v := DefaultVocabulary()
	q := "Balanced crystalloids versus saline in septic shock"
	assert.Equal(t, v.Extract(q), v.Extract(q))
	assert.True(t, v.Extract("pediatric migraine").IsEmpty())
}

func TestExtractWordBoundaries(t *testing.T) {
	c := DefaultVocabulary().Extract("Leaf blower safety")
	assert.Empty(t, c.Diseases, "af inside a word is not atrial fibrillation")
}

func dapt() types.Concepts {
	return DefaultVocabulary().Extract("DAPT duration after PCI in high bleeding risk")
}

func TestScoreCaps(t *testing.T) {
	f := NewFilter(nil, 0, nil)
	c := types.Candidate{
		Title:    "Dual antiplatelet therapy after PCI in patients at high bleeding risk",
		Abstract: "Abbreviated DAPT reduced bleeding after stent implantation.",
		Tags:     []string{"Percutaneous Coronary Intervention", "Hemorrhage"},
	}
	s := f.Score(c, dapt())

	assert.Equal(t, 20, s.PerCategory[Disease], "title only")
	assert.Equal(t, 20, s.PerCategory[Intervention], "capped at 20")
	assert.Equal(t, 10, s.PerCategory[Outcome], "capped at 10")
	assert.Zero(t, s.PerCategory[Biomarker])
	assert.Equal(t, 50, s.Total)
}

func TestScoreAbstractWeighsLess(t *testing.T) {
	f := NewFilter(nil, 0, nil)
	concepts := types.Concepts{Diseases: []string{"sepsis"}}

	inTitle := f.Score(types.Candidate{Title: "Sepsis management"}, concepts)
	inAbstract := f.Score(types.Candidate{Title: "ICU care", Abstract: "Adults with sepsis."}, concepts)
	assert.Equal(t, 20, inTitle.Total)
	assert.Equal(t, 10, inAbstract.Total)
}

func TestScoreUnknownTagIgnored(t *testing.T) {
	f := NewFilter(nil, 0, nil)
	s := f.Score(types.Candidate{Title: "anything"}, types.Concepts{Diseases: []string{"not_a_tag"}})
	assert.Zero(t, s.Total)
}

func sc(title, abstract string) types.ScoredCandidate {
	return types.NewScored(types.Candidate{Title: title, Abstract: abstract, Source: types.SourcePubMed}, 0.9, 0, types.ProvenanceCrossEncoder)
}

func TestFilterByTagsDropsAdjacentEvidence(t *testing.T) {
	f := NewFilter(nil, 0, nil)
	concepts := f.Extract("fluid resuscitation volume in septic shock")
	require.Equal(t, []string{"sepsis"}, concepts.Diseases)

	in := []types.ScoredCandidate{
		sc("Restrictive versus liberal fluid therapy in septic shock", ""),
		sc("Vasopressin versus norepinephrine infusion in septic shock", ""),
		sc("Apixaban in atrial fibrillation", ""),
	}
	out := f.FilterByTags(in, concepts)

	require.Len(t, out, 1)
	assert.Equal(t, in[0].Title, out[0].Title)
}

func TestFilterByTagsKeepsOrder(t *testing.T) {
	f := NewFilter(nil, 0, nil)
	in := []types.ScoredCandidate{
		sc("Short DAPT after PCI in high bleeding risk", ""),
		sc("Sepsis fluids", ""),
		sc("Ticagrelor monotherapy after PCI: bleeding outcomes in HBR", ""),
	}
	out := f.FilterByTags(in, dapt())
	require.Len(t, out, 2)
	assert.Equal(t, in[0].Title, out[0].Title)
	assert.Equal(t, in[2].Title, out[1].Title)
}

func TestFilterByTagsWithoutConcepts(t *testing.T) {
	f := NewFilter(nil, 0, nil)
	concepts := f.Extract("management of a rare inherited disorder")
	require.True(t, concepts.IsEmpty())

	in := []types.ScoredCandidate{sc("Gut microbiome in pediatric asthma", "")}
	assert.Zero(t, f.Score(in[0].Candidate, concepts).Total)
	assert.Empty(t, f.FilterByTags(in, concepts))
	assert.Empty(t, f.FilterByTags(in, types.Concepts{}))
}

func TestFilterByTagsNeverKeepsZero(t *testing.T) {
	f := NewFilter(nil, 1, nil)
	out := f.FilterByTags([]types.ScoredCandidate{sc("unrelated", "")}, dapt())
	assert.Empty(t, out)
}

func TestParseVocabularyErrors(t *testing.T) {
	_, err := ParseVocabulary([]byte("symptoms:\n  cough: ['cough']\n"))
	assert.ErrorContains(t, err, "unknown category")

	_, err = ParseVocabulary([]byte("diseases:\n  bad: ['(unclosed']\n"))
	assert.Error(t, err)

	_, err = ParseVocabulary([]byte("diseases:\n  empty: []\n"))
	assert.ErrorContains(t, err, "no patterns")

	_, err = ParseVocabulary([]byte("diseases: [oops"))
	assert.Error(t, err)
}

func TestFromConfigVocabularyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
diseases:
  gout: ['\bgout\b']
interventions:
  allopurinol: ['\ballopurinol\b']
`), 0o644))

	f, err := FromConfig(types.RelevanceConfig{VocabularyFile: path}, nil)
	require.NoError(t, err)
	c := f.Extract("Allopurinol dose escalation in gout")
	assert.Equal(t, []string{"gout"}, c.Diseases)
	assert.Equal(t, []string{"allopurinol"}, c.Interventions)

	_, err = FromConfig(types.RelevanceConfig{VocabularyFile: filepath.Join(t.TempDir(), "absent.yaml")}, nil)
	assert.Error(t, err)
}
