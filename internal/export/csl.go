// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package export

import (
	"io"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// CSLItem represents a bibliographic entry in CSL (Citation Style Language)
// format. The field names and structure follow the CSL-JSON/CSL-YAML schema
// so that output is consumable by Pandoc and reference managers.
type CSLItem struct {
	ID             string   `yaml:"id"`
	Type           string   `yaml:"type"`
	Title          string   `yaml:"title"`
	ContainerTitle string   `yaml:"container-title,omitempty"`
	Abstract       string   `yaml:"abstract,omitempty"`
	Issued         *CSLDate `yaml:"issued,omitempty"`
	DOI            string   `yaml:"DOI,omitempty"`
	PMID           string   `yaml:"PMID,omitempty"`
	URL            string   `yaml:"URL,omitempty"`
	Genre          string   `yaml:"genre,omitempty"`
	Note           string   `yaml:"note,omitempty"`
}

// CSLDate represents a date in CSL format using date-parts.
type CSLDate struct {
	DateParts [][]int `yaml:"date-parts"`
}

// FormatCSL writes the ranked evidence as a CSL-YAML list to w, in rank order.
func FormatCSL(pkg types.EvidencePackage, w io.Writer) error {
	items := make([]CSLItem, len(pkg.Ranked))
	for i, r := range pkg.Ranked {
		items[i] = toCSLItem(r)
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(items)
}

// toCSLItem converts a fused result to a CSLItem. The note records which
// sources found the record.
func toCSLItem(r types.FusedResult[types.ScoredCandidate]) CSLItem {
	c := r.Item.Candidate
	item := CSLItem{
		ID:             cslID(c),
		Type:           cslType(c.Kind),
		Title:          c.Title,
		ContainerTitle: c.Meta(types.MetaJournal),
		Abstract:       c.Abstract,
		DOI:            strings.TrimPrefix(c.Meta(types.MetaDOI), "https://doi.org/"),
		PMID:           c.Meta(types.MetaPMID),
		URL:            c.URL,
		Genre:          string(c.Kind),
	}
	if c.Year > 0 {
		item.Issued = &CSLDate{DateParts: [][]int{{c.Year}}}
	}
	if len(r.ContributingSources) > 0 {
		item.Note = "sources: " + strings.Join(r.ContributingSources, ", ")
	}
	return item
}

// cslID prefers the DOI, then the source-scoped identifier.
func cslID(c types.Candidate) string {
	if doi := c.Meta(types.MetaDOI); doi != "" {
		return strings.TrimPrefix(doi, "https://doi.org/")
	}
	return string(c.Source) + ":" + c.SourceID
}

func cslType(k types.EvidenceKind) string {
	switch k {
	case types.KindGuideline:
		return "report"
	case types.KindTrial:
		return "dataset"
	case types.KindDrugLabel:
		return "document"
	default:
		return "article-journal"
	}
}
