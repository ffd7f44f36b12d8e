// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// E-utilities endpoints. Declared as vars so tests can substitute an
// httptest server.
var (
	pubmedSearchBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi"
	pubmedFetchBase  = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/efetch.fcgi"
)

// PubMedAdapter queries PubMed through NCBI E-utilities: esearch for the
// ranked PMID list, then efetch for the records.
type PubMedAdapter struct {
	Client *Client
	APIKey string
}

// Name returns the source identifier.
func (a *PubMedAdapter) Name() types.SourceName { return types.SourcePubMed }

// Search returns up to maxResults PubMed records in relevance order.
func (a *PubMedAdapter) Search(ctx context.Context, query string, maxResults int) ([]types.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	maxResults = clampResults(maxResults, 200)

	params := url.Values{
		"db":      {"pubmed"},
		"term":    {query},
		"retmax":  {strconv.Itoa(maxResults)},
		"retmode": {"json"},
		"sort":    {"relevance"},
	}
	if a.APIKey != "" {
		params.Set("api_key", a.APIKey)
	}
	body, err := a.Client.get(ctx, types.SourcePubMed, pubmedSearchBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var sr esearchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("parsing esearch response: %w", err)
	}
	ids := sr.Result.IDList
	if len(ids) == 0 {
		return nil, nil
	}

	params = url.Values{
		"db":      {"pubmed"},
		"id":      {strings.Join(ids, ",")},
		"retmode": {"xml"},
	}
	if a.APIKey != "" {
		params.Set("api_key", a.APIKey)
	}
	body, err = a.Client.get(ctx, types.SourcePubMed, pubmedFetchBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var set pubmedArticleSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("parsing efetch response: %w", err)
	}

	byPMID := make(map[string]types.Candidate, len(set.Articles))
	for _, art := range set.Articles {
		c := art.candidate()
		if c.SourceID != "" {
			byPMID[c.SourceID] = c
		}
	}

	// efetch does not preserve the esearch relevance order.
	results := make([]types.Candidate, 0, len(byPMID))
	for _, id := range ids {
		if c, ok := byPMID[id]; ok {
			results = append(results, c)
			delete(byPMID, id)
		}
	}
	return results, nil
}

func (art pubmedArticle) candidate() types.Candidate {
	mc := art.MedlineCitation
	pmid := strings.TrimSpace(mc.PMID)

	var abstract []string
	for _, p := range mc.Article.Abstract.Texts {
		text := strings.TrimSpace(string(p.Text))
		if text == "" {
			continue
		}
		if p.Label != "" {
			text = p.Label + ": " + text
		}
		abstract = append(abstract, text)
	}

	var tags []string
	for _, h := range mc.MeshHeadings {
		if name := strings.TrimSpace(h.Descriptor); name != "" {
			tags = append(tags, name)
		}
	}

	var doi string
	for _, id := range art.PubmedData.ArticleIDs {
		if id.IDType == "doi" {
			doi = strings.TrimSpace(id.Value)
			break
		}
	}

	pubDate := mc.Article.Journal.Issue.PubDate
	year := parseYear(pubDate.Year)
	if year == 0 {
		year = parseYear(pubDate.MedlineDate)
	}

	journal := strings.TrimSpace(mc.Article.Journal.Title)
	return types.Candidate{
		SourceID: pmid,
		Title:    strings.TrimSpace(string(mc.Article.Title)),
		Abstract: strings.Join(abstract, " "),
		Year:     year,
		Source:   types.SourcePubMed,
		Kind:     classifyPublicationTypes(mc.Article.PublicationTypes, journal),
		Tags:     tags,
		URL:      "https://pubmed.ncbi.nlm.nih.gov/" + pmid + "/",
		RawMetadata: compactMeta(
			types.MetaPMID, pmid,
			types.MetaDOI, doi,
			types.MetaJournal, journal,
		),
	}
}

// classifyPublicationTypes maps PubMed publication types to a kind. The
// strongest design wins: review over guideline over trial.
func classifyPublicationTypes(pubTypes []string, journal string) types.EvidenceKind {
	has := func(names ...string) bool {
		for _, pt := range pubTypes {
			for _, n := range names {
				if strings.EqualFold(strings.TrimSpace(pt), n) {
					return true
				}
			}
		}
		return false
	}
	switch {
	case has("Systematic Review", "Meta-Analysis"):
		return types.KindSystematicReview
	case strings.Contains(strings.ToLower(journal), "cochrane database of systematic reviews"):
		return types.KindSystematicReview
	case has("Practice Guideline", "Guideline", "Consensus Development Conference"):
		return types.KindGuideline
	case has("Randomized Controlled Trial", "Clinical Trial", "Clinical Trial, Phase III", "Clinical Trial, Phase IV", "Controlled Clinical Trial", "Pragmatic Clinical Trial"):
		return types.KindTrial
	default:
		return types.KindArticle
	}
}

// markupText collects the character data of an element and all of its
// descendants, so inline markup such as <i> or <sup> keeps its text.
type markupText string

func (m *markupText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var b strings.Builder
	depth := 0
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				*m = markupText(strings.Join(strings.Fields(b.String()), " "))
				return nil
			}
			depth--
		case xml.CharData:
			b.Write(t)
		}
	}
}

// E-utilities JSON and XML structures.
type esearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	MedlineCitation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Journal struct {
				Title string `xml:"Title"`
				Issue struct {
					PubDate struct {
						Year        string `xml:"Year"`
						MedlineDate string `xml:"MedlineDate"`
					} `xml:"PubDate"`
				} `xml:"JournalIssue"`
			} `xml:"Journal"`
			Title    markupText `xml:"ArticleTitle"`
			Abstract struct {
				Texts []pubmedAbstractText `xml:"AbstractText"`
			} `xml:"Abstract"`
			PublicationTypes []string `xml:"PublicationTypeList>PublicationType"`
		} `xml:"Article"`
		MeshHeadings []struct {
			Descriptor string `xml:"DescriptorName"`
		} `xml:"MeshHeadingList>MeshHeading"`
	} `xml:"MedlineCitation"`
	PubmedData struct {
		ArticleIDs []struct {
			IDType string `xml:"IdType,attr"`
			Value  string `xml:",chardata"`
		} `xml:"ArticleIdList>ArticleId"`
	} `xml:"PubmedData"`
}

type pubmedAbstractText struct {
	Label string
	Text  markupText
}

func (p *pubmedAbstractText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		if attr.Name.Local == "Label" {
			p.Label = attr.Value
		}
	}
	return p.Text.UnmarshalXML(d, start)
}
