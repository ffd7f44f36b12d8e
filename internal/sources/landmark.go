// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/evidence-engine/internal/lexical"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

//go:embed landmark.yaml
var landmarkYAML []byte

// minLandmarkOverlap is the fraction of query keywords an entry must cover.
const minLandmarkOverlap = 0.3

// landmarkEntry is one curated trial or guideline.
type landmarkEntry struct {
	ID         string   `yaml:"id"`
	Acronym    string   `yaml:"acronym"`
	Title      string   `yaml:"title"`
	Year       int      `yaml:"year"`
	Kind       string   `yaml:"kind"`
	HasResults bool     `yaml:"has_results"`
	DOI        string   `yaml:"doi"`
	Journal    string   `yaml:"journal"`
	Abstract   string   `yaml:"abstract"`
	Tags       []string `yaml:"tags"`
	Keywords   []string `yaml:"keywords"`
}

func (e landmarkEntry) matchText() string {
	return strings.Join([]string{
		e.Acronym, e.Title, strings.Join(e.Keywords, " "), strings.Join(e.Tags, " "),
	}, " ")
}

func (e landmarkEntry) candidate() types.Candidate {
	link := ""
	if e.DOI != "" {
		link = "https://doi.org/" + e.DOI
	}
	return types.Candidate{
		SourceID:   e.ID,
		Title:      e.Title,
		Abstract:   e.Abstract,
		Year:       e.Year,
		Source:     types.SourceLandmark,
		Kind:       types.EvidenceKind(e.Kind),
		Tags:       e.Tags,
		URL:        link,
		HasResults: e.HasResults,
		RawMetadata: compactMeta(
			types.MetaDOI, e.DOI,
			types.MetaJournal, e.Journal,
			"acronym", e.Acronym,
		),
	}
}

// LandmarkAdapter serves a static database of landmark trials and
// practice guidelines. It makes no network calls.
type LandmarkAdapter struct {
	entries []landmarkEntry
}

// NewLandmarkAdapter parses a landmark database in YAML form.
func NewLandmarkAdapter(data []byte) (*LandmarkAdapter, error) {
	var entries []landmarkEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing landmark database: %w", err)
	}
	for i, e := range entries {
		if e.ID == "" || e.Title == "" {
			return nil, fmt.Errorf("landmark entry %d: id and title are required", i)
		}
		switch types.EvidenceKind(e.Kind) {
		case types.KindTrial, types.KindGuideline, types.KindSystematicReview, types.KindArticle:
		default:
			return nil, fmt.Errorf("landmark entry %s: unknown kind %q", e.ID, e.Kind)
		}
	}
	return &LandmarkAdapter{entries: entries}, nil
}

// DefaultLandmarkAdapter returns the adapter over the built-in database.
func DefaultLandmarkAdapter() *LandmarkAdapter {
	a, err := NewLandmarkAdapter(landmarkYAML)
	if err != nil {
		panic(err)
	}
	return a
}

// LoadLandmarkAdapter reads a landmark database from path.
func LoadLandmarkAdapter(path string) (*LandmarkAdapter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading landmark database: %w", err)
	}
	return NewLandmarkAdapter(data)
}

// Name returns the source identifier.
func (a *LandmarkAdapter) Name() types.SourceName { return types.SourceLandmark }

// Len returns the number of entries.
func (a *LandmarkAdapter) Len() int { return len(a.entries) }

// Search returns the entries covering enough of the query's keywords, best
// coverage first.
func (a *LandmarkAdapter) Search(ctx context.Context, query string, maxResults int) ([]types.Candidate, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	maxResults = clampResults(maxResults, len(a.entries)+1)

	type hit struct {
		entry landmarkEntry
		score float64
	}
	var hits []hit
	for _, e := range a.entries {
		if s := lexical.KeywordOverlap(query, e.matchText()); s >= minLandmarkOverlap {
			hits = append(hits, hit{entry: e, score: s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	results := make([]types.Candidate, 0, min(len(hits), maxResults))
	for _, h := range hits {
		if len(results) == maxResults {
			break
		}
		results = append(results, h.entry.candidate())
	}
	return results, nil
}
