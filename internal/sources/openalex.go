// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// openAlexSearchBase is the OpenAlex Works search endpoint. Declared as a
// var so tests can substitute an httptest server.
var openAlexSearchBase = "https://api.openalex.org/works"

// OpenAlexAdapter queries the OpenAlex API.
type OpenAlexAdapter struct {
	Client *Client
	// Email is sent as mailto parameter for polite pool access.
	Email string
}

// Name returns the source identifier.
func (a *OpenAlexAdapter) Name() types.SourceName { return types.SourceOpenAlex }

// Search queries the OpenAlex API and returns results in relevance order.
func (a *OpenAlexAdapter) Search(ctx context.Context, query string, maxResults int) ([]types.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	maxResults = clampResults(maxResults, 200)

	params := url.Values{
		"search":   {query},
		"per_page": {strconv.Itoa(maxResults)},
		"page":     {"1"},
	}
	if a.Email != "" {
		params.Set("mailto", a.Email)
	}

	body, err := a.Client.get(ctx, types.SourceOpenAlex, openAlexSearchBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var oar openAlexResponse
	if err := json.Unmarshal(body, &oar); err != nil {
		return nil, fmt.Errorf("parsing OpenAlex response: %w", err)
	}

	results := make([]types.Candidate, 0, len(oar.Results))
	for _, work := range oar.Results {
		if work.Title == "" {
			continue
		}
		results = append(results, work.candidate())
	}
	return results, nil
}

func (work openAlexWork) candidate() types.Candidate {
	// Strip the https://doi.org/ prefix to get the bare DOI.
	doi := strings.TrimPrefix(work.DOI, "https://doi.org/")

	id := strings.TrimPrefix(work.ID, "https://openalex.org/")
	link := work.ID
	if doi != "" {
		link = work.DOI
	}

	var tags []string
	for _, m := range work.Mesh {
		if m.DescriptorName != "" && !containsFold(tags, m.DescriptorName) {
			tags = append(tags, m.DescriptorName)
		}
	}

	kind := classifyTitle(work.Title)
	if kind == types.KindArticle && work.Type == "review" {
		kind = types.KindSystematicReview
	}

	var journal string
	if work.PrimaryLocation.Source != nil {
		journal = work.PrimaryLocation.Source.DisplayName
	}

	var pmid string
	if work.IDs.PMID != "" {
		pmid = strings.TrimPrefix(work.IDs.PMID, "https://pubmed.ncbi.nlm.nih.gov/")
	}

	return types.Candidate{
		SourceID: id,
		Title:    work.Title,
		Abstract: reconstructAbstract(work.AbstractInvertedIndex),
		Year:     work.PublicationYear,
		Source:   types.SourceOpenAlex,
		Kind:     kind,
		Tags:     tags,
		URL:      link,
		RawMetadata: compactMeta(
			types.MetaDOI, doi,
			types.MetaJournal, journal,
			types.MetaPMID, pmid,
		),
	}
}

// reconstructAbstract converts OpenAlex's abstract_inverted_index back to
// plain text. The inverted index maps each word to a list of positions
// where that word appears.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// OpenAlex API JSON structures.
type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID                    string           `json:"id"`
	Title                 string           `json:"title"`
	DOI                   string           `json:"doi"`
	Type                  string           `json:"type"`
	PublicationYear       int              `json:"publication_year"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
	IDs                   struct {
		PMID string `json:"pmid"`
	} `json:"ids"`
	PrimaryLocation struct {
		Source *struct {
			DisplayName string `json:"display_name"`
		} `json:"source"`
	} `json:"primary_location"`
	Mesh []struct {
		DescriptorName string `json:"descriptor_name"`
	} `json:"mesh"`
}
