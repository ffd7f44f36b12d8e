// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

const splXML = `<?xml version="1.0" encoding="UTF-8"?>
<document xmlns="urn:hl7-org:v3">
  <code code="34391-3" displayName="HUMAN PRESCRIPTION DRUG LABEL"/>
  <title>ELIQUIS (apixaban) tablets</title>
  <component><structuredBody>
    <component><section>
      <code code="34067-9" displayName="INDICATIONS &amp; USAGE SECTION"/>
      <title>1 INDICATIONS AND USAGE</title>
      <text><paragraph>ELIQUIS is indicated to reduce the risk of stroke and systemic embolism in nonvalvular atrial fibrillation.</paragraph></text>
    </section></component>
    <component><section>
      <code code="34068-7"/>
      <title>2 DOSAGE AND ADMINISTRATION</title>
      <text>The recommended dose is 5 mg orally twice daily.</text>
      <component><section>
        <code code="42229-5"/>
        <text>Dose adjustment in patients with serum creatinine of at least 1.5 mg/dL.</text>
      </section></component>
    </section></component>
    <component><section>
      <code code="34084-4"/>
      <text>Short.</text>
    </section></component>
  </structuredBody></component>
</document>`

func TestParseSPL(t *testing.T) {
	sections, err := parseSPL([]byte(splXML))
	require.NoError(t, err)

	assert.Contains(t, sections["indications_and_usage"], "reduce the risk of stroke")
	assert.Contains(t, sections["dosage_and_administration"], "5 mg orally twice daily")
	assert.Contains(t, sections["dosage_and_administration"], "serum creatinine", "subsection text counts toward the parent")
	assert.Contains(t, sections["patient_package_insert"], "serum creatinine")
	assert.NotContains(t, sections, "adverse_reactions", "sections of 20 characters or fewer are skipped")
	assert.NotContains(t, sections, "full_text")
}

func TestParseSPLFallsBackToFullText(t *testing.T) {
	doc := `<document><title>Label</title><text>` + strings.Repeat("x", 6000) + `</text></document>`
	sections, err := parseSPL([]byte(doc))
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Len(t, sections["full_text"], fullTextChars)
}

func TestParseSPLTruncatesSections(t *testing.T) {
	doc := `<document><section><code code="34073-7"/><text>` + strings.Repeat("interaction ", 400) + `</text></section></document>`
	sections, err := parseSPL([]byte(doc))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(sections["drug_interactions"]), sectionChars)
}

func TestSearchableTextOrder(t *testing.T) {
	text := searchableText(map[string]string{
		"drug_interactions":     "avoid strong CYP3A4 inhibitors",
		"indications_and_usage": "stroke prevention",
	})
	assert.True(t, strings.HasPrefix(text, "Indications and Usage: stroke prevention"))
	assert.Contains(t, text, "Drug Interactions: avoid strong CYP3A4 inhibitors")
}

func TestLabelYear(t *testing.T) {
	assert.Equal(t, 2024, labelYear("May 10, 2024"))
	assert.Equal(t, 2023, labelYear("Dec 1, 2023"))
	assert.Equal(t, 2022, labelYear("2022-01-05"))
	assert.Zero(t, labelYear(""))
}

func TestTruncateKeepsRunes(t *testing.T) {
	s := "abécd" // é is two bytes at offsets 2-3
	assert.Equal(t, "ab", truncate(s, 3))
	assert.Equal(t, s, truncate(s, 100))
}

func TestDailyMedSearch(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		switch {
		case r.URL.Path == "/spls.json":
			assert.Equal(t, "apixaban", r.URL.Query().Get("drug_name"))
			w.Write([]byte(`{"data":[
				{"setid":"e9481622-7cc6-418a-acb6-c5450daae9b0","title":"ELIQUIS (apixaban) tablet, film coated","published_date":"May 10, 2024","spl_version":30},
				{"setid":"missing-xml","title":"APIXABAN tablet","published_date":"Jan 3, 2023"}
			]}`))
		case r.URL.Path == "/spls/e9481622-7cc6-418a-acb6-c5450daae9b0.xml":
			w.Write([]byte(splXML))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()
	swap(t, &dailyMedBase, ts.URL)

	a := &DailyMedAdapter{Client: testClient(ts)}
	results, err := a.Search(context.Background(), "apixaban dosing in CKD", 10)
	require.NoError(t, err)
	require.Len(t, results, 1, "labels whose XML cannot be fetched are skipped")

	label := results[0]
	assert.Equal(t, types.KindDrugLabel, label.Kind)
	assert.Equal(t, types.SourceDailyMed, label.Source)
	assert.Equal(t, 2024, label.Year)
	assert.Equal(t, []string{"apixaban"}, label.Tags)
	assert.True(t, strings.HasPrefix(label.Abstract, "Indications and Usage:"))
	assert.Equal(t, "30", label.Meta("spl_version"))
}

func TestDailyMedSearchWithoutDrugNames(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer ts.Close()
	swap(t, &dailyMedBase, ts.URL)

	results, err := (&DailyMedAdapter{Client: testClient(ts)}).Search(context.Background(), "sepsis fluid resuscitation", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, atomic.LoadInt32(&calls), "no request without a drug name")
}

func TestDailyMedSearchAllFailed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()
	swap(t, &dailyMedBase, ts.URL)

	_, err := (&DailyMedAdapter{Client: testClient(ts)}).Search(context.Background(), "warfarin", 10)
	assert.Error(t, err)
}

func TestDrugNames(t *testing.T) {
	assert.Equal(t, []string{"apixaban", "warfarin"}, drugNames("Apixaban vs warfarin vs apixaban"))
	assert.Empty(t, drugNames("sepsis"))
}
