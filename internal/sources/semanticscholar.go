// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// semanticAPIBase is the Semantic Scholar paper search endpoint. Declared
// as a var so tests can substitute an httptest server.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1/paper/search"

const semanticFields = "title,abstract,externalIds,year,venue,publicationTypes,url"

// SemanticScholarAdapter queries the Semantic Scholar API.
type SemanticScholarAdapter struct {
	Client *Client
	APIKey string
}

// Name returns the source identifier.
func (a *SemanticScholarAdapter) Name() types.SourceName { return types.SourceSemanticScholar }

// Search queries the Semantic Scholar API and returns results.
func (a *SemanticScholarAdapter) Search(ctx context.Context, query string, maxResults int) ([]types.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	maxResults = clampResults(maxResults, 100)

	params := url.Values{
		"query":  {query},
		"limit":  {strconv.Itoa(maxResults)},
		"fields": {semanticFields},
	}

	var header http.Header
	if a.APIKey != "" {
		header = http.Header{"x-api-key": {a.APIKey}}
	}
	body, err := a.Client.get(ctx, types.SourceSemanticScholar, semanticAPIBase+"?"+params.Encode(), header)
	if err != nil {
		return nil, err
	}

	var sr semanticResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("parsing Semantic Scholar response: %w", err)
	}

	results := make([]types.Candidate, 0, len(sr.Data))
	for _, paper := range sr.Data {
		if paper.Title == "" || paper.PaperID == "" {
			continue
		}
		results = append(results, paper.candidate())
	}
	return results, nil
}

func (paper semanticPaper) candidate() types.Candidate {
	kind := types.KindArticle
	for _, pt := range paper.PublicationTypes {
		switch pt {
		case "MetaAnalysis":
			kind = types.KindSystematicReview
		case "Review":
			if kind == types.KindArticle && classifyTitle(paper.Title) == types.KindSystematicReview {
				kind = types.KindSystematicReview
			}
		case "ClinicalTrial":
			if kind == types.KindArticle {
				kind = types.KindTrial
			}
		}
	}
	if kind == types.KindArticle {
		kind = classifyTitle(paper.Title)
	}

	link := paper.URL
	if link == "" {
		link = "https://www.semanticscholar.org/paper/" + paper.PaperID
	}

	return types.Candidate{
		SourceID: paper.PaperID,
		Title:    paper.Title,
		Abstract: paper.Abstract,
		Year:     paper.Year,
		Source:   types.SourceSemanticScholar,
		Kind:     kind,
		URL:      link,
		RawMetadata: compactMeta(
			types.MetaDOI, paper.ExternalIDs.DOI,
			types.MetaPMID, paper.ExternalIDs.PubMed,
			types.MetaJournal, paper.Venue,
		),
	}
}

// Semantic Scholar API JSON structures.
type semanticResponse struct {
	Total int             `json:"total"`
	Data  []semanticPaper `json:"data"`
}

type semanticPaper struct {
	PaperID          string              `json:"paperId"`
	Title            string              `json:"title"`
	Abstract         string              `json:"abstract"`
	Year             int                 `json:"year"`
	Venue            string              `json:"venue"`
	URL              string              `json:"url"`
	PublicationTypes []string            `json:"publicationTypes"`
	ExternalIDs      semanticExternalIDs `json:"externalIds"`
}

type semanticExternalIDs struct {
	DOI    string `json:"DOI"`
	PubMed string `json:"PubMed"`
}
