// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "evidence-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// RetryConfig configures the shared retry policy injected into every HTTP client.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// BaseDelay is the first backoff delay; it doubles on every retry.
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay" mapstructure:"base_delay"`

	// MaxDelay caps a single backoff delay.
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay" mapstructure:"max_delay"`

	// Jitter is the fraction (0-1) of each delay that is randomized.
	Jitter float64 `json:"jitter" yaml:"jitter" mapstructure:"jitter"`
}

// GatherConfig holds settings for the fan-out coordinator.
type GatherConfig struct {
	// PerSourceTimeout bounds one adapter call.
	PerSourceTimeout time.Duration `json:"per_source_timeout" yaml:"per_source_timeout" mapstructure:"per_source_timeout"`

	// GlobalBudget bounds how long the coordinator waits for all adapters.
	GlobalBudget time.Duration `json:"global_budget" yaml:"global_budget" mapstructure:"global_budget"`

	// MaxConcurrency limits simultaneous adapter calls (0 = unlimited).
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency" mapstructure:"max_concurrency"`

	// MaxResultsPerSource is passed to every adapter (default 20).
	MaxResultsPerSource int `json:"max_results_per_source" yaml:"max_results_per_source" mapstructure:"max_results_per_source"`
}

// CacheBackend selects the cache storage.
type CacheBackend string

const (
	CacheMemory CacheBackend = "memory"
	CacheBadger CacheBackend = "badger"
	CacheRedis  CacheBackend = "redis"
	CacheSQLite CacheBackend = "sqlite"
	CacheNone   CacheBackend = "none"
)

// CacheConfig holds settings for the cache layer.
type CacheConfig struct {
	// Backend selects memory, badger, redis, sqlite, or none.
	Backend CacheBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Path is the badger directory or sqlite file.
	Path string `json:"path" yaml:"path" mapstructure:"path"`

	// RedisAddr is the host:port of the redis server.
	RedisAddr string `json:"redis_addr" yaml:"redis_addr" mapstructure:"redis_addr"`

	// RedisPassword authenticates against redis when set.
	RedisPassword string `json:"redis_password,omitempty" yaml:"redis_password,omitempty" mapstructure:"redis_password"`

	// TTL is fixed at write time (default 24h).
	TTL time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`

	// KeyLength is the number of hex digest characters kept in a key (default 16).
	KeyLength int `json:"key_length" yaml:"key_length" mapstructure:"key_length"`
}

// EmbeddingConfig configures the embedding service.
type EmbeddingConfig struct {
	// BaseURL is an OpenAI-compatible embeddings endpoint. Empty disables the
	// service and the pipeline uses pseudo-embeddings.
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// Model is the embedding model identifier.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey authenticates against the endpoint.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
}

// SemanticConfig holds settings for the semantic filter.
type SemanticConfig struct {
	// Threshold is the minimum blended score to keep a candidate (default 0.45).
	Threshold float64 `json:"threshold" yaml:"threshold" mapstructure:"threshold"`

	// SemanticWeight weights cosine similarity (default 0.6).
	SemanticWeight float64 `json:"semantic_weight" yaml:"semantic_weight" mapstructure:"semantic_weight"`

	// KeywordWeight weights lexical overlap (default 0.4).
	KeywordWeight float64 `json:"keyword_weight" yaml:"keyword_weight" mapstructure:"keyword_weight"`

	// BatchSize is the number of texts per embedding call (default 32).
	BatchSize int `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`

	// AbstractChars truncates the abstract before embedding (default 1000).
	AbstractChars int `json:"abstract_chars" yaml:"abstract_chars" mapstructure:"abstract_chars"`

	// Dimension is the pseudo-embedding dimensionality (default 768).
	Dimension int `json:"dimension" yaml:"dimension" mapstructure:"dimension"`
}

// CrossEncoderConfig configures the cross-encoder service.
type CrossEncoderConfig struct {
	// URL is the inference endpoint. Empty disables the model and the
	// reranker orders by lexical similarity.
	URL string `json:"url" yaml:"url" mapstructure:"url"`

	// Model names the model, used only for logging.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is sent as a bearer token.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
}

// RerankConfig holds settings for the cross-encoder reranker.
type RerankConfig struct {
	// TopK is the hard cap on results (default 10).
	TopK int `json:"top_k" yaml:"top_k" mapstructure:"top_k"`

	// MinScore drops results below this normalized score (default 0.7).
	MinScore float64 `json:"min_score" yaml:"min_score" mapstructure:"min_score"`

	// BatchSize is the number of pairs per cross-encoder call (default 32).
	BatchSize int `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`

	// MinCandidates is the smallest set that gets reranked (default 3).
	MinCandidates int `json:"min_candidates" yaml:"min_candidates" mapstructure:"min_candidates"`

	// MinSeparation is the max-min score spread below which the lexical
	// tie-breaker is blended in (default 0.05).
	MinSeparation float64 `json:"min_separation" yaml:"min_separation" mapstructure:"min_separation"`

	// TieBreakWeight is the lexical share of the blended score (default 0.15).
	TieBreakWeight float64 `json:"tie_break_weight" yaml:"tie_break_weight" mapstructure:"tie_break_weight"`

	// TopBand is the size of the leading band checked for a narrow range (default 5).
	TopBand int `json:"top_band" yaml:"top_band" mapstructure:"top_band"`

	// NarrowBandRange is the spread under which results are cut to TopBand (default 0.02).
	NarrowBandRange float64 `json:"narrow_band_range" yaml:"narrow_band_range" mapstructure:"narrow_band_range"`
}

// FusionConfig holds settings for Reciprocal Rank Fusion.
type FusionConfig struct {
	// K is the RRF stabilizer constant (default 60).
	K int `json:"k" yaml:"k" mapstructure:"k"`

	// SourceWeights overrides the per-list weight (default 1.0).
	SourceWeights map[string]float64 `json:"source_weights,omitempty" yaml:"source_weights,omitempty" mapstructure:"source_weights"`
}

// RelevanceConfig holds settings for the tag filter.
type RelevanceConfig struct {
	// MinScore is the minimum concept score out of 100 (default 30).
	MinScore int `json:"min_score" yaml:"min_score" mapstructure:"min_score"`

	// VocabularyFile optionally replaces the built-in rule tables.
	VocabularyFile string `json:"vocabulary_file,omitempty" yaml:"vocabulary_file,omitempty" mapstructure:"vocabulary_file"`
}

// SufficiencyConfig holds the point weights and thresholds of the scorer.
// The defaults are a starting configuration tuned on sample queries.
type SufficiencyConfig struct {
	GoldStandardPoints int `json:"gold_standard_points" yaml:"gold_standard_points" mapstructure:"gold_standard_points"`
	GuidelinePoints    int `json:"guideline_points" yaml:"guideline_points" mapstructure:"guideline_points"`
	TrialPoints        int `json:"trial_points" yaml:"trial_points" mapstructure:"trial_points"`
	RecencyPoints      int `json:"recency_points" yaml:"recency_points" mapstructure:"recency_points"`
	DiversityPoints    int `json:"diversity_points" yaml:"diversity_points" mapstructure:"diversity_points"`
	VolumePoints       int `json:"volume_points" yaml:"volume_points" mapstructure:"volume_points"`
	AnchorPoints       int `json:"anchor_points" yaml:"anchor_points" mapstructure:"anchor_points"`

	// RecentYears defines "recent" relative to the current year (default 5).
	RecentYears int `json:"recent_years" yaml:"recent_years" mapstructure:"recent_years"`

	// MinRecent is the number of recent items that earns the recency points (default 3).
	MinRecent int `json:"min_recent" yaml:"min_recent" mapstructure:"min_recent"`

	// VolumeThreshold earns the full volume bonus and suppresses fallback (default 50).
	VolumeThreshold int `json:"volume_threshold" yaml:"volume_threshold" mapstructure:"volume_threshold"`

	// FallbackThreshold is the score at or above which no fallback runs (default 40).
	FallbackThreshold int `json:"fallback_threshold" yaml:"fallback_threshold" mapstructure:"fallback_threshold"`

	// AnchorFloor is applied once AnchorFloorMatches anchors match (default 70 at 3).
	AnchorFloor        int `json:"anchor_floor" yaml:"anchor_floor" mapstructure:"anchor_floor"`
	AnchorFloorMatches int `json:"anchor_floor_matches" yaml:"anchor_floor_matches" mapstructure:"anchor_floor_matches"`

	// AnchorFile optionally replaces the built-in anchor scenarios.
	AnchorFile string `json:"anchor_file,omitempty" yaml:"anchor_file,omitempty" mapstructure:"anchor_file"`
}

// FallbackConfig configures the web-search fallback.
type FallbackConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	APIKey      string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
	SearchDepth string `json:"search_depth" yaml:"search_depth" mapstructure:"search_depth"`
	MaxResults  int    `json:"max_results" yaml:"max_results" mapstructure:"max_results"`
}

// SourcesConfig enables adapters and carries their credentials.
type SourcesConfig struct {
	// Enabled lists source names to query; empty enables every built-in adapter.
	Enabled []string `json:"enabled,omitempty" yaml:"enabled,omitempty" mapstructure:"enabled"`

	NCBIAPIKey            string `json:"ncbi_api_key,omitempty" yaml:"ncbi_api_key,omitempty" mapstructure:"ncbi_api_key"`
	SemanticScholarAPIKey string `json:"semantic_scholar_api_key,omitempty" yaml:"semantic_scholar_api_key,omitempty" mapstructure:"semantic_scholar_api_key"`
	OpenAlexEmail         string `json:"openalex_email,omitempty" yaml:"openalex_email,omitempty" mapstructure:"openalex_email"`

	// LandmarkFile optionally replaces the built-in landmark trial database.
	LandmarkFile string `json:"landmark_file,omitempty" yaml:"landmark_file,omitempty" mapstructure:"landmark_file"`

	// RequestsPerSecond is the per-adapter rate limit (default 3).
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// PipelineConfig groups every setting of the retrieval-and-ranking pipeline.
// Thresholds live here only; stages never re-derive them.
type PipelineConfig struct {
	HTTP         HTTPConfig         `json:"http" yaml:"http" mapstructure:"http"`
	Retry        RetryConfig        `json:"retry" yaml:"retry" mapstructure:"retry"`
	Sources      SourcesConfig      `json:"sources" yaml:"sources" mapstructure:"sources"`
	Gather       GatherConfig       `json:"gather" yaml:"gather" mapstructure:"gather"`
	Cache        CacheConfig        `json:"cache" yaml:"cache" mapstructure:"cache"`
	Embedding    EmbeddingConfig    `json:"embedding" yaml:"embedding" mapstructure:"embedding"`
	Semantic     SemanticConfig     `json:"semantic" yaml:"semantic" mapstructure:"semantic"`
	CrossEncoder CrossEncoderConfig `json:"cross_encoder" yaml:"cross_encoder" mapstructure:"cross_encoder"`
	Rerank       RerankConfig       `json:"rerank" yaml:"rerank" mapstructure:"rerank"`
	Fusion       FusionConfig       `json:"fusion" yaml:"fusion" mapstructure:"fusion"`
	Relevance    RelevanceConfig    `json:"relevance" yaml:"relevance" mapstructure:"relevance"`
	Sufficiency  SufficiencyConfig  `json:"sufficiency" yaml:"sufficiency" mapstructure:"sufficiency"`
	Fallback     FallbackConfig     `json:"fallback" yaml:"fallback" mapstructure:"fallback"`
}

// DefaultPipelineConfig returns the starting configuration.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		HTTP: HTTPConfig{
			Timeout:   20 * time.Second,
			UserAgent: "evidence-engine/0.1",
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  time.Second,
			MaxDelay:   30 * time.Second,
			Jitter:     0.2,
		},
		Sources: SourcesConfig{
			RequestsPerSecond: 3,
		},
		Gather: GatherConfig{
			PerSourceTimeout:    15 * time.Second,
			GlobalBudget:        30 * time.Second,
			MaxConcurrency:      8,
			MaxResultsPerSource: 20,
		},
		Cache: CacheConfig{
			Backend:   CacheMemory,
			TTL:       24 * time.Hour,
			KeyLength: 16,
		},
		Semantic: SemanticConfig{
			Threshold:      0.45,
			SemanticWeight: 0.6,
			KeywordWeight:  0.4,
			BatchSize:      32,
			AbstractChars:  1000,
			Dimension:      768,
		},
		CrossEncoder: CrossEncoderConfig{
			Model: "BAAI/bge-reranker-v2-m3",
		},
		Rerank: RerankConfig{
			TopK:            10,
			MinScore:        0.7,
			BatchSize:       32,
			MinCandidates:   3,
			MinSeparation:   0.05,
			TieBreakWeight:  0.15,
			TopBand:         5,
			NarrowBandRange: 0.02,
		},
		Fusion: FusionConfig{
			K: 60,
		},
		Relevance: RelevanceConfig{
			MinScore: 30,
		},
		Sufficiency: SufficiencyConfig{
			GoldStandardPoints: 25,
			GuidelinePoints:    20,
			TrialPoints:        15,
			RecencyPoints:      10,
			DiversityPoints:    10,
			VolumePoints:       20,
			AnchorPoints:       10,
			RecentYears:        5,
			MinRecent:          3,
			VolumeThreshold:    50,
			FallbackThreshold:  40,
			AnchorFloor:        70,
			AnchorFloorMatches: 3,
		},
		Fallback: FallbackConfig{
			SearchDepth: "advanced",
			MaxResults:  10,
		},
	}
}
