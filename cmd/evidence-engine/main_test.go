// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/evidence-engine/internal/export"
	"github.com/pdiddy/evidence-engine/internal/pipeline"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

func TestExplicitConfigFileMustExist(t *testing.T) {
	err := configureViper(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "reading config")
}

func TestConfigDefaults(t *testing.T) {
	v := viper.New()
	require.NoError(t, configureViper(v, ""))

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, types.DefaultPipelineConfig(), cfg)
}

func TestConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evidence-engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cache:
  backend: sqlite
  path: /var/cache/evidence.db
rerank:
  top_k: 5
fusion:
  source_weights:
    landmark: 2
`), 0o644))

	t.Setenv("EVIDENCE_ENGINE_GATHER_GLOBAL_BUDGET", "10s")
	t.Setenv("EVIDENCE_ENGINE_FALLBACK_API_KEY", "tvly-env")
	t.Setenv("EVIDENCE_ENGINE_SOURCES_ENABLED", "pubmed,landmark")

	v := viper.New()
	require.NoError(t, configureViper(v, path))
	cfg, err := loadConfig(v)
	require.NoError(t, err)

	assert.Equal(t, types.CacheSQLite, cfg.Cache.Backend)
	assert.Equal(t, "/var/cache/evidence.db", cfg.Cache.Path)
	assert.Equal(t, 5, cfg.Rerank.TopK)
	assert.Equal(t, 0.7, cfg.Rerank.MinScore, "unset keys keep their defaults")
	assert.Equal(t, 2.0, cfg.Fusion.SourceWeights["landmark"])
	assert.Equal(t, 10*time.Second, cfg.Gather.GlobalBudget)
	assert.Equal(t, 15*time.Second, cfg.Gather.PerSourceTimeout)
	assert.Equal(t, "tvly-env", cfg.Fallback.APIKey)
	assert.Equal(t, []string{"pubmed", "landmark"}, cfg.Sources.Enabled)
}

func TestSecretsFillMissingCredentials(t *testing.T) {
	old := loadedSecrets
	loadedSecrets = map[string]string{"ncbi-api-key": "ncbi-from-file"}
	t.Cleanup(func() { loadedSecrets = old })

	cfg, err := loadConfig(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "ncbi-from-file", cfg.Sources.NCBIAPIKey)
}

func TestOutputFormat(t *testing.T) {
	tests := []struct {
		args    []string
		want    string
		wantErr bool
	}{
		{nil, "table", false},
		{[]string{"--json"}, "json", false},
		{[]string{"--csl"}, "csl", false},
		{[]string{"--json", "--csl"}, "", true},
	}
	for _, tt := range tests {
		cmd := &cobra.Command{}
		cmd.Flags().Bool("json", false, "")
		cmd.Flags().Bool("csl", false, "")
		require.NoError(t, cmd.ParseFlags(tt.args))

		got, err := outputFormat(cmd)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestEvidenceLoadsSavedQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	res := pipeline.Result{
		Package: types.EvidencePackage{
			Query: "septic shock fluids",
			Ranked: []types.FusedResult[types.ScoredCandidate]{{
				Item:                types.NewScored(types.Candidate{SourceID: "ssc-2021", Title: "Surviving Sepsis Campaign", Kind: types.KindGuideline}, 1, 0, types.ProvenanceLexical),
				ContributingSources: []string{"landmark"},
			}},
		},
		Sufficiency: types.SufficiencyScore{Score: 45, Level: types.LevelGood},
		Stats:       types.Stats{RequestID: "req-9"},
	}
	require.NoError(t, export.WriteQueryFile(path, res, types.DefaultPipelineConfig()))

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"evidence", "--load", path, "--json"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())

	var got pipeline.Result
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "septic shock fluids", got.Package.Query)
	assert.Equal(t, "req-9", got.Stats.RequestID)
	require.Len(t, got.Package.Ranked, 1)
	assert.Equal(t, "ssc-2021", got.Package.Ranked[0].Item.SourceID)
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "evidence-engine dev\n", buf.String())
}
