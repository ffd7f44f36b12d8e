// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the evidence-engine pipeline:
// candidates returned by source adapters, the scored and fused wrappers produced
// by the ranking stages, cache entries, and the assembled evidence package.
package types

import (
	"strings"
	"unicode"
)

// SourceName identifies the external catalog a candidate came from.
type SourceName string

const (
	SourcePubMed          SourceName = "pubmed"
	SourceCochrane        SourceName = "cochrane"
	SourceEuropePMC       SourceName = "europe_pmc"
	SourceOpenAlex        SourceName = "openalex"
	SourceSemanticScholar SourceName = "semantic_scholar"
	SourceClinicalTrials  SourceName = "clinicaltrials"
	SourceDailyMed        SourceName = "dailymed"
	SourceOpenFDA         SourceName = "openfda"
	SourceWHO             SourceName = "who"
	SourceCDC             SourceName = "cdc"
	SourceNICE            SourceName = "nice"
	SourceBMJ             SourceName = "bmj"
	SourceOMIM            SourceName = "omim"
	SourceRxNorm          SourceName = "rxnorm"
	SourceImages          SourceName = "images"
	SourceLandmark        SourceName = "landmark"
)

// EvidenceKind classifies what a candidate is, independent of where it came from.
type EvidenceKind string

const (
	KindArticle          EvidenceKind = "article"
	KindSystematicReview EvidenceKind = "systematic_review"
	KindGuideline        EvidenceKind = "guideline"
	KindTrial            EvidenceKind = "trial"
	KindDrugLabel        EvidenceKind = "drug_label"
)

// Well-known RawMetadata keys.
const (
	MetaDOI     = "doi"
	MetaJournal = "journal"
	MetaPMID    = "pmid"
)

// Candidate is one retrievable unit returned by a source adapter. Candidates
// are never mutated after they are fetched; ranking stages wrap them in
// ScoredCandidate values instead.
type Candidate struct {
	// SourceID is the stable external identifier (PMID, DOI, NCT id, set id).
	SourceID string `json:"source_id" yaml:"source_id"`

	// Title is the record title as returned by the source.
	Title string `json:"title" yaml:"title"`

	// Abstract is the abstract or summary text.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// Year is the publication year, zero when unknown.
	Year int `json:"year,omitempty" yaml:"year,omitempty"`

	// Source identifies the catalog that returned this candidate.
	Source SourceName `json:"source" yaml:"source"`

	// Kind is the evidence type (article, review, guideline, trial, label).
	Kind EvidenceKind `json:"kind" yaml:"kind"`

	// Tags holds MeSH-equivalent subject headings when the source provides them.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// URL links to the record at the source.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// HasResults is true for trials with reported results.
	HasResults bool `json:"has_results,omitempty" yaml:"has_results,omitempty"`

	// RawMetadata carries source-specific fields needed for later formatting.
	RawMetadata map[string]string `json:"raw_metadata,omitempty" yaml:"raw_metadata,omitempty"`
}

// Meta returns the RawMetadata value for key, or "" when absent.
func (c Candidate) Meta(key string) string {
	if c.RawMetadata == nil {
		return ""
	}
	return c.RawMetadata[key]
}

// IsGoldStandard reports whether the candidate is a Cochrane systematic review.
func (c Candidate) IsGoldStandard() bool {
	if c.Kind != KindSystematicReview {
		return false
	}
	if c.Source == SourceCochrane {
		return true
	}
	return strings.Contains(strings.ToLower(c.Meta(MetaJournal)), "cochrane")
}

// FusionKey returns the identity used to merge the same record found by
// different sources: the DOI when known, otherwise the normalized title,
// otherwise the source-scoped identifier.
func (c Candidate) FusionKey() string {
	if doi := strings.ToLower(strings.TrimSpace(c.Meta(MetaDOI))); doi != "" {
		return "doi:" + strings.TrimPrefix(doi, "https://doi.org/")
	}
	if t := NormalizeTitle(c.Title); t != "" {
		return "title:" + t
	}
	return string(c.Source) + ":" + c.SourceID
}

// Text returns the title followed by the abstract truncated to maxChars
// (no truncation when maxChars <= 0).
func (c Candidate) Text(maxChars int) string {
	abstract := c.Abstract
	if maxChars > 0 && len(abstract) > maxChars {
		abstract = abstract[:maxChars]
	}
	if abstract == "" {
		return c.Title
	}
	return c.Title + ". " + abstract
}

// NormalizeTitle returns a lowercased, punctuation-stripped version of the title.
func NormalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Provenance records which ranking stage produced a score.
type Provenance string

const (
	ProvenanceLexical      Provenance = "lexical"
	ProvenanceSemantic     Provenance = "semantic"
	ProvenanceCrossEncoder Provenance = "cross_encoder"
	ProvenanceBlended      Provenance = "blended"
)

// ScoredCandidate wraps a Candidate with the score assigned by one ranking
// stage. Each stage creates a new list; the next stage supersedes it.
type ScoredCandidate struct {
	Candidate `yaml:",inline"`

	// Score is the stage score, always within [0, 1].
	Score float64 `json:"score" yaml:"score"`

	// OriginalRank is the position in the list the stage received.
	OriginalRank int `json:"original_rank" yaml:"original_rank"`

	// Provenance names the stage that produced Score.
	Provenance Provenance `json:"provenance" yaml:"provenance"`
}

// NewScored wraps c with score clamped into [0, 1].
func NewScored(c Candidate, score float64, rank int, p Provenance) ScoredCandidate {
	return ScoredCandidate{Candidate: c, Score: ClampUnit(score), OriginalRank: rank, Provenance: p}
}

// ClampUnit clamps v into [0, 1]. NaN maps to 0.
func ClampUnit(v float64) float64 {
	switch {
	case v != v:
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// FusedResult is one item of a Reciprocal Rank Fusion output. FusedScore is
// only comparable with other results of the same fusion call.
type FusedResult[T any] struct {
	Item                T              `json:"item" yaml:"item"`
	FusedScore          float64        `json:"fused_score" yaml:"fused_score"`
	ContributingSources []string       `json:"contributing_sources" yaml:"contributing_sources"`
	RankPerSource       map[string]int `json:"rank_per_source" yaml:"rank_per_source"`
}
