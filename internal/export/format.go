// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package export renders evidence results for people and tools: a ranked
// table, JSON, CSL-YAML for reference managers, and saved query files that
// can be reloaded without querying the sources again.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/pdiddy/evidence-engine/internal/pipeline"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// FormatTable writes the ranked evidence, the sufficiency verdict and the
// per-source outcome as a human-readable report to w.
func FormatTable(res pipeline.Result, w io.Writer) {
	pkg := res.Package
	if len(pkg.Ranked) == 0 {
		fmt.Fprintln(w, "No evidence found.")
	} else {
		fmt.Fprintf(w, "%-4s  %-60s  %-17s  %-4s  %-6s  %s\n",
			"Rank", "Title", "Kind", "Year", "Score", "Sources")
		fmt.Fprintln(w, strings.Repeat("-", 110))

		for i, r := range pkg.Ranked {
			c := r.Item
			year := ""
			if c.Year > 0 {
				year = fmt.Sprintf("%d", c.Year)
			}
			fmt.Fprintf(w, "%-4d  %-60s  %-17s  %-4s  %-6.2f  %s\n",
				i+1, truncate(c.Title, 60), c.Kind, year, c.Score, strings.Join(r.ContributingSources, ","))
		}
	}

	s := res.Sufficiency
	fmt.Fprintf(w, "\nSufficiency: %d/100 (%s)", s.Score, s.Level)
	if s.AnchorScenario != nil {
		fmt.Fprintf(w, ", scenario %s with %d anchor(s)", *s.AnchorScenario, s.AnchorMatches)
	}
	fmt.Fprintln(w)

	if len(pkg.Fallback) > 0 {
		fmt.Fprintln(w, "\nWeb results:")
		for _, c := range pkg.Fallback {
			fmt.Fprintf(w, "  - %s  %s\n", truncate(c.Title, 60), c.URL)
		}
	}

	st := res.Stats
	fmt.Fprintf(w, "\n%d raw, %d semantic, %d reranked, %d final", st.Raw, st.SemanticFiltered, st.Reranked, st.Final)
	if st.CacheHits > 0 {
		fmt.Fprintf(w, " (%d from cache)", st.CacheHits)
	}
	fmt.Fprintf(w, " in %s\n", st.Latency.Round(time.Millisecond))
	for _, e := range SourceErrors(st) {
		fmt.Fprintln(w, "  !", e)
	}
}

// FormatJSON writes the full result as indented JSON to w.
func FormatJSON(res pipeline.Result, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// SourceErrors lists "source: status: error" for every source that did not
// answer, sorted by source name.
func SourceErrors(st types.Stats) []string {
	var out []string
	for name, ss := range st.PerSource {
		if ss.Status == types.StatusOK || ss.Status == types.StatusCached {
			continue
		}
		out = append(out, fmt.Sprintf("%s: %s: %s", name, ss.Status, ss.Error))
	}
	slices.Sort(out)
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
