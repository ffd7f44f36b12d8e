// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/pdiddy/evidence-engine/internal/lexical"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// dailyMedBase is the DailyMed v2 services root. Declared as a var so tests
// can substitute an httptest server.
var dailyMedBase = "https://dailymed.nlm.nih.gov/dailymed/services/v2"

const (
	labelsPerDrug    = 2
	maxDrugsPerQuery = 3
	sectionChars     = 3000
	fullTextChars    = 5000
	minSectionChars  = 20
)

// splSection names a structured product label section by its LOINC code.
type splSection struct {
	code string
	name string
}

// splSections lists the label sections kept, most important first.
var splSections = []splSection{
	{"34067-9", "indications_and_usage"},
	{"34068-7", "dosage_and_administration"},
	{"43685-7", "warnings_and_precautions"},
	{"34084-4", "adverse_reactions"},
	{"34073-7", "drug_interactions"},
	{"34090-1", "clinical_pharmacology"},
	{"34076-0", "patient_information"},
	{"42229-5", "patient_package_insert"},
}

// DailyMedAdapter retrieves FDA drug labels for the drugs named in a
// query. Queries that name no known drug return no candidates.
type DailyMedAdapter struct {
	Client *Client
}

// Name returns the source identifier.
func (a *DailyMedAdapter) Name() types.SourceName { return types.SourceDailyMed }

// Search looks up labels for each drug named in query.
func (a *DailyMedAdapter) Search(ctx context.Context, query string, maxResults int) ([]types.Candidate, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	drugs := drugNames(query)
	if len(drugs) == 0 {
		return nil, nil
	}
	maxResults = clampResults(maxResults, 100)

	var (
		results []types.Candidate
		errs    []error
	)
	for _, drug := range drugs {
		labels, err := a.searchDrug(ctx, drug)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("%s: %w", drug, err))
			continue
		}
		results = append(results, labels...)
		if len(results) >= maxResults {
			return results[:maxResults], nil
		}
	}
	if len(results) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return results, nil
}

func (a *DailyMedAdapter) searchDrug(ctx context.Context, drug string) ([]types.Candidate, error) {
	params := url.Values{
		"drug_name": {drug},
		"pagesize":  {strconv.Itoa(labelsPerDrug)},
	}
	body, err := a.Client.get(ctx, types.SourceDailyMed, dailyMedBase+"/spls.json?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("parsing DailyMed response: invalid JSON")
	}

	var results []types.Candidate
	for i, spl := range gjson.GetBytes(body, "data").Array() {
		if i >= labelsPerDrug {
			break
		}
		setID := spl.Get("setid").String()
		if setID == "" {
			continue
		}
		xmlBody, err := a.Client.get(ctx, types.SourceDailyMed, dailyMedBase+"/spls/"+url.PathEscape(setID)+".xml", nil)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			a.Client.logger().Debug("skipping label", "source", types.SourceDailyMed, "setid", setID, "err", err)
			continue
		}
		sections, err := parseSPL(xmlBody)
		if err != nil {
			a.Client.logger().Debug("unparseable label", "source", types.SourceDailyMed, "setid", setID, "err", err)
			continue
		}

		published := spl.Get("published_date").String()
		if published == "" {
			published = spl.Get("published").String()
		}
		results = append(results, types.Candidate{
			SourceID: setID,
			Title:    spl.Get("title").String(),
			Abstract: searchableText(sections),
			Year:     labelYear(published),
			Source:   types.SourceDailyMed,
			Kind:     types.KindDrugLabel,
			Tags:     []string{drug},
			URL:      "https://dailymed.nlm.nih.gov/dailymed/drugInfo.cfm?setid=" + url.QueryEscape(setID),
			RawMetadata: compactMeta(
				"drug_name", drug,
				"spl_version", spl.Get("spl_version").String(),
				"published_date", published,
			),
		})
	}
	return results, nil
}

// drugNames returns the distinct known drug names in query, in order.
func drugNames(query string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, tok := range lexical.Tokenize(query) {
		if lexical.IsDrugName(tok) && !seen[tok] {
			seen[tok] = true
			out = append(out, tok)
			if len(out) == maxDrugsPerQuery {
				break
			}
		}
	}
	return out
}

// parseSPL extracts the known sections of a structured product label. Each
// <section> is identified by the first <code code="..."> it contains;
// subsection text counts toward every enclosing section. When no known
// section is present the whole document text is kept as full_text.
func parseSPL(data []byte) (map[string]string, error) {
	byCode := make(map[string]string, len(splSections))
	for _, s := range splSections {
		byCode[s.code] = s.name
	}

	type frame struct {
		code string
		text strings.Builder
	}
	var (
		stack []*frame
		all   strings.Builder
	)
	found := make(map[string][]string)
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing label XML: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "section":
				stack = append(stack, &frame{})
			case "code":
				if len(stack) > 0 && stack[len(stack)-1].code == "" {
					for _, attr := range t.Attr {
						if attr.Name.Local == "code" {
							stack[len(stack)-1].code = attr.Value
						}
					}
				}
			}
		case xml.EndElement:
			if t.Name.Local != "section" || len(stack) == 0 {
				continue
			}
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if name, ok := byCode[f.code]; ok {
				if text := collapse(f.text.String()); len(text) > minSectionChars {
					found[name] = append(found[name], text)
				}
			}
		case xml.CharData:
			for _, f := range stack {
				f.text.Write(t)
				f.text.WriteByte(' ')
			}
			all.Write(t)
			all.WriteByte(' ')
		}
	}

	sections := make(map[string]string, len(found))
	for name, texts := range found {
		sections[name] = truncate(strings.Join(texts, "\n\n"), sectionChars)
	}
	if len(sections) == 0 {
		if text := collapse(all.String()); text != "" {
			sections["full_text"] = truncate(text, fullTextChars)
		}
	}
	return sections, nil
}

// searchableText joins sections in priority order under readable headings.
func searchableText(sections map[string]string) string {
	var parts []string
	for _, s := range splSections {
		if text, ok := sections[s.name]; ok {
			parts = append(parts, heading(s.name)+": "+text)
		}
	}
	if text, ok := sections["full_text"]; ok {
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n")
}

func heading(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w == "and" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// labelYear parses DailyMed dates such as "May 10, 2024".
func labelYear(s string) int {
	if t, err := time.Parse("Jan 2, 2006", s); err == nil {
		return t.Year()
	}
	if i := strings.LastIndex(s, " "); i >= 0 {
		return parseYear(s[i+1:])
	}
	return parseYear(s)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
