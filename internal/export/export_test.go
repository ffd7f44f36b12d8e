// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package export

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/evidence-engine/internal/pipeline"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

func sampleResult() pipeline.Result {
	trial := types.Candidate{
		SourceID: "34449185",
		Title:    "Abbreviated antiplatelet therapy in patients at high bleeding risk",
		Year:     2021,
		Kind:     types.KindTrial,
		Source:   types.SourcePubMed,
		URL:      "https://pubmed.ncbi.nlm.nih.gov/34449185/",
		RawMetadata: map[string]string{
			types.MetaDOI:     "https://doi.org/10.1056/NEJMoa2108749",
			types.MetaPMID:    "34449185",
			types.MetaJournal: "N Engl J Med",
		},
	}
	guideline := types.Candidate{
		SourceID: "acc-aha-dapt-2016",
		Title:    "Focused update on dual antiplatelet therapy",
		Year:     2016,
		Kind:     types.KindGuideline,
		Source:   types.SourceLandmark,
	}
	scenario := "dapt_hbr_pci"

	return pipeline.Result{
		Package: types.EvidencePackage{
			Query: "DAPT duration after PCI in high bleeding risk",
			Ranked: []types.FusedResult[types.ScoredCandidate]{
				{
					Item:                types.NewScored(trial, 0.93, 0, types.ProvenanceCrossEncoder),
					FusedScore:          2.0 / 61,
					ContributingSources: []string{"pubmed", "landmark"},
					RankPerSource:       map[string]int{"pubmed": 0, "landmark": 0},
				},
				{
					Item:                types.NewScored(guideline, 1, 1, types.ProvenanceLexical),
					FusedScore:          1.0 / 62,
					ContributingSources: []string{"landmark"},
					RankPerSource:       map[string]int{"landmark": 1},
				},
			},
		},
		Sufficiency: types.SufficiencyScore{
			Score:          50,
			Level:          types.LevelGood,
			AnchorScenario: &scenario,
			AnchorMatches:  1,
			TotalEvidence:  2,
		},
		Stats: types.Stats{
			RequestID: "req-1",
			Raw:       4,
			Final:     2,
			CacheHits: 1,
			Latency:   1234 * time.Millisecond,
			PerSource: map[types.SourceName]types.SourceStats{
				types.SourcePubMed:    {Status: types.StatusOK},
				types.SourceLandmark:  {Status: types.StatusCached},
				types.SourceEuropePMC: {Status: types.StatusTimeout, Error: "context deadline exceeded"},
			},
		},
	}
}

func TestFormatCSL(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, FormatCSL(sampleResult().Package, &buf))

	var items []CSLItem
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &items))
	require.Len(t, items, 2)

	assert.Equal(t, CSLItem{
		ID:             "10.1056/NEJMoa2108749",
		Type:           "dataset",
		Title:          "Abbreviated antiplatelet therapy in patients at high bleeding risk",
		ContainerTitle: "N Engl J Med",
		Issued:         &CSLDate{DateParts: [][]int{{2021}}},
		DOI:            "10.1056/NEJMoa2108749",
		PMID:           "34449185",
		URL:            "https://pubmed.ncbi.nlm.nih.gov/34449185/",
		Genre:          "trial",
		Note:           "sources: pubmed, landmark",
	}, items[0])

	assert.Equal(t, "landmark:acc-aha-dapt-2016", items[1].ID)
	assert.Equal(t, "report", items[1].Type)
	assert.Empty(t, items[1].DOI)
}

func TestCSLType(t *testing.T) {
	tests := map[types.EvidenceKind]string{
		types.KindArticle:          "article-journal",
		types.KindSystematicReview: "article-journal",
		types.KindGuideline:        "report",
		types.KindTrial:            "dataset",
		types.KindDrugLabel:        "document",
	}
	for kind, want := range tests {
		assert.Equal(t, want, cslType(kind), kind)
	}
}

func TestFormatTable(t *testing.T) {
	var buf bytes.Buffer
	FormatTable(sampleResult(), &buf)
	out := buf.String()

	assert.Contains(t, out, "Abbreviated antiplatelet therapy in patients at high blee...")
	assert.Contains(t, out, "pubmed,landmark")
	assert.Contains(t, out, "Sufficiency: 50/100 (good), scenario dapt_hbr_pci with 1 anchor(s)")
	assert.Contains(t, out, "4 raw, 0 semantic, 0 reranked, 2 final (1 from cache) in 1.234s")
	assert.Contains(t, out, "! europe_pmc: timeout: context deadline exceeded")
}

func TestFormatTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	res := pipeline.Result{
		Package:     types.EvidencePackage{Fallback: []types.Citation{{Title: "Overview", URL: "https://example.org"}}},
		Sufficiency: types.SufficiencyScore{Level: types.LevelInsufficient, ShouldFallback: true},
	}
	FormatTable(res, &buf)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "No evidence found."))
	assert.Contains(t, out, "Web results:")
	assert.Contains(t, out, "https://example.org")
}

func TestFormatJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, FormatJSON(sampleResult(), &buf))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Contains(t, got, "package")
	assert.Contains(t, got, "sufficiency")
	assert.Contains(t, got, "stats")
}

func TestQueryFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dapt.yaml")
	cfg := types.DefaultPipelineConfig()
	cfg.Sources.Enabled = []string{"pubmed", "landmark"}

	require.NoError(t, WriteQueryFile(path, sampleResult(), cfg))

	qf, err := ReadQueryFile(path)
	require.NoError(t, err)

	assert.Equal(t, "DAPT duration after PCI in high bleeding risk", qf.Query)
	assert.Equal(t, []string{"pubmed", "landmark"}, qf.Config.Sources)
	assert.Equal(t, 0.45, qf.Config.SemanticThreshold)
	assert.Equal(t, 60, qf.Config.FusionK)
	assert.Equal(t, 2, qf.Summary.Total)
	assert.Equal(t, []string{"europe_pmc: timeout: context deadline exceeded"}, qf.Summary.SourceErrors)
	assert.False(t, qf.Summary.Timestamp.IsZero())

	require.Len(t, qf.Package.Ranked, 2)
	top := qf.Package.Ranked[0]
	assert.Equal(t, "34449185", top.Item.SourceID)
	assert.Equal(t, 0.93, top.Item.Score)
	assert.Equal(t, "10.1056/NEJMoa2108749", strings.TrimPrefix(top.Item.Meta(types.MetaDOI), "https://doi.org/"))
	assert.Equal(t, []string{"pubmed", "landmark"}, top.ContributingSources)

	require.NotNil(t, qf.Sufficiency.AnchorScenario)
	assert.Equal(t, "dapt_hbr_pci", *qf.Sufficiency.AnchorScenario)

	res := qf.Result()
	assert.Equal(t, "req-1", res.Stats.RequestID)
	assert.Equal(t, 1234*time.Millisecond, res.Stats.Latency)
}

func TestReadQueryFileErrors(t *testing.T) {
	_, err := ReadQueryFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading query file")
}
