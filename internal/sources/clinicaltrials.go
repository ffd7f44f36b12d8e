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

// clinicalTrialsBase is the ClinicalTrials.gov v2 studies endpoint.
// Declared as a var so tests can substitute an httptest server.
var clinicalTrialsBase = "https://clinicaltrials.gov/api/v2/studies"

// ClinicalTrialsAdapter queries the ClinicalTrials.gov v2 API. Every study
// is a trial; HasResults reflects whether results were posted.
type ClinicalTrialsAdapter struct {
	Client *Client
}

// Name returns the source identifier.
func (a *ClinicalTrialsAdapter) Name() types.SourceName { return types.SourceClinicalTrials }

// Search returns up to maxResults registered studies in relevance order.
func (a *ClinicalTrialsAdapter) Search(ctx context.Context, query string, maxResults int) ([]types.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	maxResults = clampResults(maxResults, 1000)

	params := url.Values{
		"query.term": {query},
		"pageSize":   {strconv.Itoa(maxResults)},
		"format":     {"json"},
	}
	body, err := a.Client.get(ctx, types.SourceClinicalTrials, clinicalTrialsBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("parsing ClinicalTrials.gov response: invalid JSON")
	}

	var results []types.Candidate
	gjson.GetBytes(body, "studies").ForEach(func(_, study gjson.Result) bool {
		if c, ok := clinicalTrialCandidate(study); ok {
			results = append(results, c)
		}
		return len(results) < maxResults
	})
	return results, nil
}

func clinicalTrialCandidate(study gjson.Result) (types.Candidate, bool) {
	p := study.Get("protocolSection")
	nct := p.Get("identificationModule.nctId").String()
	title := p.Get("identificationModule.officialTitle").String()
	if title == "" {
		title = p.Get("identificationModule.briefTitle").String()
	}
	if nct == "" || title == "" {
		return types.Candidate{}, false
	}

	// Completion year reflects when the evidence became available.
	year := parseYear(p.Get("statusModule.completionDateStruct.date").String())
	if year == 0 {
		year = parseYear(p.Get("statusModule.startDateStruct.date").String())
	}

	var tags []string
	add := func(_, v gjson.Result) bool {
		if s := v.String(); s != "" && !containsFold(tags, s) {
			tags = append(tags, s)
		}
		return true
	}
	study.Get("derivedSection.conditionBrowseModule.meshes.#.term").ForEach(add)
	study.Get("derivedSection.interventionBrowseModule.meshes.#.term").ForEach(add)
	p.Get("conditionsModule.conditions").ForEach(add)

	var phases []string
	p.Get("designModule.phases").ForEach(func(_, v gjson.Result) bool {
		phases = append(phases, v.String())
		return true
	})

	return types.Candidate{
		SourceID:   nct,
		Title:      title,
		Abstract:   p.Get("descriptionModule.briefSummary").String(),
		Year:       year,
		Source:     types.SourceClinicalTrials,
		Kind:       types.KindTrial,
		Tags:       tags,
		URL:        "https://clinicaltrials.gov/study/" + nct,
		HasResults: study.Get("hasResults").Bool(),
		RawMetadata: compactMeta(
			"status", p.Get("statusModule.overallStatus").String(),
			"phase", strings.Join(phases, ","),
			"sponsor", p.Get("sponsorCollaboratorsModule.leadSponsor.name").String(),
		),
	}, true
}
