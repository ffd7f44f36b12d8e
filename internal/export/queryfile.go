// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package export

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/evidence-engine/internal/pipeline"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// QueryFile is the on-disk representation of an evidence query and its
// results. A saved query can be reloaded and re-rendered without querying
// the sources again.
type QueryFile struct {
	Query       string                 `yaml:"query"`
	Config      QueryFileConfig        `yaml:"config"`
	Package     types.EvidencePackage  `yaml:"package"`
	Sufficiency types.SufficiencyScore `yaml:"sufficiency"`
	Summary     QuerySummary           `yaml:"summary"`
}

// QueryFileConfig stores the thresholds that produced the results.
type QueryFileConfig struct {
	Sources           []string `yaml:"sources,omitempty"`
	SemanticThreshold float64  `yaml:"semantic_threshold"`
	RerankTopK        int      `yaml:"rerank_top_k"`
	RerankMinScore    float64  `yaml:"rerank_min_score"`
	TagMinScore       int      `yaml:"tag_min_score"`
	FusionK           int      `yaml:"fusion_k"`
}

// QuerySummary stores result statistics and a timestamp.
type QuerySummary struct {
	RequestID         string    `yaml:"request_id"`
	Total             int       `yaml:"total"`
	CacheHits         int       `yaml:"cache_hits"`
	FallbackTriggered bool      `yaml:"fallback_triggered"`
	SourceErrors      []string  `yaml:"source_errors,omitempty"`
	LatencyMillis     int64     `yaml:"latency_ms"`
	Timestamp         time.Time `yaml:"timestamp"`
}

// WriteQueryFile saves a result and the configuration that produced it to
// a YAML file.
func WriteQueryFile(path string, res pipeline.Result, cfg types.PipelineConfig) error {
	qf := QueryFile{
		Query: res.Package.Query,
		Config: QueryFileConfig{
			Sources:           cfg.Sources.Enabled,
			SemanticThreshold: cfg.Semantic.Threshold,
			RerankTopK:        cfg.Rerank.TopK,
			RerankMinScore:    cfg.Rerank.MinScore,
			TagMinScore:       cfg.Relevance.MinScore,
			FusionK:           cfg.Fusion.K,
		},
		Package:     res.Package,
		Sufficiency: res.Sufficiency,
		Summary: QuerySummary{
			RequestID:         res.Stats.RequestID,
			Total:             res.Package.Total(),
			CacheHits:         res.Stats.CacheHits,
			FallbackTriggered: res.Stats.FallbackTriggered,
			SourceErrors:      SourceErrors(res.Stats),
			LatencyMillis:     res.Stats.Latency.Milliseconds(),
			Timestamp:         time.Now(),
		},
	}

	data, err := yaml.Marshal(&qf)
	if err != nil {
		return fmt.Errorf("marshaling query file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadQueryFile loads a previously saved query file from disk.
func ReadQueryFile(path string) (*QueryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading query file: %w", err)
	}
	var qf QueryFile
	if err := yaml.Unmarshal(data, &qf); err != nil {
		return nil, fmt.Errorf("parsing query file: %w", err)
	}
	return &qf, nil
}

// Result rebuilds a pipeline result from the saved file. Only the stats
// kept in the summary are restored.
func (qf *QueryFile) Result() pipeline.Result {
	return pipeline.Result{
		Package:     qf.Package,
		Sufficiency: qf.Sufficiency,
		Stats: types.Stats{
			RequestID:         qf.Summary.RequestID,
			Final:             qf.Summary.Total,
			CacheHits:         qf.Summary.CacheHits,
			FallbackTriggered: qf.Summary.FallbackTriggered,
			Latency:           time.Duration(qf.Summary.LatencyMillis) * time.Millisecond,
		},
	}
}
