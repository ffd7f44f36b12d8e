// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// CacheEntry is the cached value for one (query, source) pair. Entries are
// written wholesale and never patched.
type CacheEntry struct {
	Candidates []Candidate `json:"candidates"`
	Timestamp  time.Time   `json:"timestamp"`
	TTLSeconds int64       `json:"ttl_seconds"`
}

// Expired reports whether the entry's TTL has elapsed at now.
func (e CacheEntry) Expired(now time.Time) bool {
	if e.TTLSeconds <= 0 {
		return false
	}
	return now.After(e.Timestamp.Add(time.Duration(e.TTLSeconds) * time.Second))
}

// Concepts holds the controlled-vocabulary tags recognized in a text.
type Concepts struct {
	Diseases      []string `json:"diseases,omitempty" yaml:"diseases,omitempty"`
	Biomarkers    []string `json:"biomarkers,omitempty" yaml:"biomarkers,omitempty"`
	Interventions []string `json:"interventions,omitempty" yaml:"interventions,omitempty"`
	Outcomes      []string `json:"outcomes,omitempty" yaml:"outcomes,omitempty"`
}

// IsEmpty reports whether no concept was recognized.
func (c Concepts) IsEmpty() bool {
	return len(c.Diseases) == 0 && len(c.Biomarkers) == 0 &&
		len(c.Interventions) == 0 && len(c.Outcomes) == 0
}

// SufficiencyLevel is the coarse verdict derived from the sufficiency score.
type SufficiencyLevel string

const (
	LevelInsufficient SufficiencyLevel = "insufficient"
	LevelLimited      SufficiencyLevel = "limited"
	LevelGood         SufficiencyLevel = "good"
	LevelExcellent    SufficiencyLevel = "excellent"
)

// Breakdown lists the points each category contributed to a sufficiency score.
type Breakdown struct {
	GoldStandardReviews int `json:"gold_standard_reviews" yaml:"gold_standard_reviews"`
	Guidelines          int `json:"guidelines" yaml:"guidelines"`
	TrialsWithResults   int `json:"trials_with_results" yaml:"trials_with_results"`
	Recency             int `json:"recency" yaml:"recency"`
	Diversity           int `json:"diversity" yaml:"diversity"`
	Volume              int `json:"volume" yaml:"volume"`
	AnchorMatch         int `json:"anchor_match" yaml:"anchor_match"`
}

// Total returns the sum of all categories.
func (b Breakdown) Total() int {
	return b.GoldStandardReviews + b.Guidelines + b.TrialsWithResults +
		b.Recency + b.Diversity + b.Volume + b.AnchorMatch
}

// SufficiencyScore is the 0-100 quality verdict over one evidence package.
type SufficiencyScore struct {
	Score          int              `json:"score" yaml:"score"`
	Level          SufficiencyLevel `json:"level" yaml:"level"`
	Breakdown      Breakdown        `json:"breakdown" yaml:"breakdown"`
	AnchorScenario *string          `json:"anchor_scenario,omitempty" yaml:"anchor_scenario,omitempty"`
	AnchorMatches  int              `json:"anchor_matches" yaml:"anchor_matches"`
	TotalEvidence  int              `json:"total_evidence" yaml:"total_evidence"`
	ShouldFallback bool             `json:"should_fallback" yaml:"should_fallback"`
}

// Citation is a web result returned by the fallback search.
type Citation struct {
	Title   string  `json:"title" yaml:"title"`
	URL     string  `json:"url" yaml:"url"`
	Snippet string  `json:"snippet,omitempty" yaml:"snippet,omitempty"`
	Score   float64 `json:"score,omitempty" yaml:"score,omitempty"`
}

// EvidencePackage is the ranked evidence assembled for one clinical query.
type EvidencePackage struct {
	Query     string                           `json:"query" yaml:"query"`
	Concepts  Concepts                         `json:"concepts" yaml:"concepts"`
	PerSource map[SourceName][]ScoredCandidate `json:"per_source" yaml:"per_source"`
	Ranked    []FusedResult[ScoredCandidate]   `json:"ranked" yaml:"ranked"`
	Fallback  []Citation                       `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// Total returns the number of distinct items in the ranked package.
func (p EvidencePackage) Total() int { return len(p.Ranked) }

// SourceStatus describes how one source branch of the fan-out ended.
type SourceStatus string

const (
	StatusOK        SourceStatus = "ok"
	StatusCached    SourceStatus = "cached"
	StatusError     SourceStatus = "error"
	StatusTimeout   SourceStatus = "timeout"
	StatusAbandoned SourceStatus = "abandoned"
)

// SourceStats reports per-source counts through the pipeline.
type SourceStats struct {
	Status           SourceStatus  `json:"status" yaml:"status"`
	Error            string        `json:"error,omitempty" yaml:"error,omitempty"`
	Latency          time.Duration `json:"latency" yaml:"latency"`
	Raw              int           `json:"raw" yaml:"raw"`
	SemanticFiltered int           `json:"semantic_filtered" yaml:"semantic_filtered"`
	Reranked         int           `json:"reranked" yaml:"reranked"`
	Final            int           `json:"final" yaml:"final"`
}

// Stats reports counts at each pipeline stage and total latency.
type Stats struct {
	RequestID         string                     `json:"request_id" yaml:"request_id"`
	Raw               int                        `json:"raw" yaml:"raw"`
	SemanticFiltered  int                        `json:"semantic_filtered" yaml:"semantic_filtered"`
	Reranked          int                        `json:"reranked" yaml:"reranked"`
	Final             int                        `json:"final" yaml:"final"`
	CacheHits         int                        `json:"cache_hits" yaml:"cache_hits"`
	PerSource         map[SourceName]SourceStats `json:"per_source" yaml:"per_source"`
	Latency           time.Duration              `json:"latency" yaml:"latency"`
	FallbackTriggered bool                       `json:"fallback_triggered" yaml:"fallback_triggered"`
	FallbackResults   int                        `json:"fallback_results" yaml:"fallback_results"`
}
