// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// europePMCSearchBase is the Europe PMC REST search endpoint. Declared as a
// var so tests can substitute an httptest server.
var europePMCSearchBase = "https://www.ebi.ac.uk/europepmc/webservices/rest/search"

// EuropePMCAdapter queries Europe PMC. Cochrane reviews are reported under
// the cochrane source name so they count as gold-standard evidence.
type EuropePMCAdapter struct {
	Client *Client
}

// Name returns the source identifier.
func (a *EuropePMCAdapter) Name() types.SourceName { return types.SourceEuropePMC }

// Search returns up to maxResults Europe PMC records in relevance order.
func (a *EuropePMCAdapter) Search(ctx context.Context, query string, maxResults int) ([]types.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	maxResults = clampResults(maxResults, 1000)

	params := url.Values{
		"query":      {query},
		"format":     {"json"},
		"resultType": {"core"},
		"pageSize":   {strconv.Itoa(maxResults)},
	}
	body, err := a.Client.get(ctx, types.SourceEuropePMC, europePMCSearchBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("parsing Europe PMC response: invalid JSON")
	}

	var results []types.Candidate
	gjson.GetBytes(body, "resultList.result").ForEach(func(_, rec gjson.Result) bool {
		if c, ok := europePMCCandidate(rec); ok {
			results = append(results, c)
		}
		return len(results) < maxResults
	})
	return results, nil
}

func europePMCCandidate(rec gjson.Result) (types.Candidate, bool) {
	id := rec.Get("id").String()
	title := strings.TrimSpace(rec.Get("title").String())
	if id == "" || title == "" {
		return types.Candidate{}, false
	}

	journal := rec.Get("journalInfo.journal.title").String()
	if journal == "" {
		journal = rec.Get("journalTitle").String()
	}

	var pubTypes []string
	rec.Get("pubTypeList.pubType").ForEach(func(_, v gjson.Result) bool {
		pubTypes = append(pubTypes, v.String())
		return true
	})
	kind := classifyPublicationTypes(pubTypes, journal)
	if kind == types.KindArticle {
		kind = classifyTitle(title)
	}

	var tags []string
	rec.Get("meshHeadingList.meshHeading.#.descriptorName").ForEach(func(_, v gjson.Result) bool {
		tags = append(tags, v.String())
		return true
	})

	source := types.SourceEuropePMC
	if kind == types.KindSystematicReview && strings.Contains(strings.ToLower(journal), "cochrane") {
		source = types.SourceCochrane
	}

	src := rec.Get("source").String()
	link := fmt.Sprintf("https://europepmc.org/article/%s/%s", src, id)
	if src == "" {
		link = "https://europepmc.org/search?query=" + url.QueryEscape(id)
	}

	return types.Candidate{
		SourceID: id,
		Title:    title,
		Abstract: stripTags(rec.Get("abstractText").String()),
		Year:     int(rec.Get("pubYear").Int()),
		Source:   source,
		Kind:     kind,
		Tags:     tags,
		URL:      link,
		RawMetadata: compactMeta(
			types.MetaPMID, rec.Get("pmid").String(),
			types.MetaDOI, rec.Get("doi").String(),
			types.MetaJournal, journal,
		),
	}, true
}

// stripTags removes inline HTML markup such as <h4> and <i> that Europe PMC
// leaves in abstracts.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>' && inTag:
			inTag = false
			b.WriteByte(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
