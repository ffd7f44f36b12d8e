// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sufficiency

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/evidence-engine/internal/relevance"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

//go:embed anchors.yaml
var defaultAnchorsYAML []byte

// Scenario is a curated disease and decision combination.
type Scenario struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description"`
	Diseases    []string `yaml:"diseases"`
	Decisions   []string `yaml:"decisions"`
}

// ParseScenarios decodes and validates a scenario list.
func ParseScenarios(data []byte) ([]Scenario, error) {
	var scenarios []Scenario
	if err := yaml.Unmarshal(data, &scenarios); err != nil {
		return nil, fmt.Errorf("parsing anchor scenarios: %w", err)
	}
	for i, s := range scenarios {
		if s.ID == "" {
			return nil, fmt.Errorf("anchor scenario %d: missing id", i)
		}
		if len(s.Diseases) == 0 || len(s.Decisions) == 0 {
			return nil, fmt.Errorf("anchor scenario %s: needs diseases and decisions", s.ID)
		}
	}
	return scenarios, nil
}

// LoadScenarios reads a scenario file.
func LoadScenarios(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading anchor scenarios: %w", err)
	}
	return ParseScenarios(data)
}

// DefaultScenarios returns the built-in anchor scenarios.
func DefaultScenarios() []Scenario {
	s, err := ParseScenarios(defaultAnchorsYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in anchor scenarios: %v", err))
	}
	return s
}

// decisionTags are the tags a decision can be drawn from.
func decisionTags(c types.Concepts) []string {
	tags := make([]string, 0, len(c.Interventions)+len(c.Biomarkers)+len(c.Outcomes))
	tags = append(tags, c.Interventions...)
	tags = append(tags, c.Biomarkers...)
	return append(tags, c.Outcomes...)
}

// recognizes reports whether the query concepts name every scenario
// disease and at least one decision.
func (s Scenario) recognizes(query types.Concepts) bool {
	for _, d := range s.Diseases {
		if !slices.Contains(query.Diseases, d) {
			return false
		}
	}
	return containsAny(decisionTags(query), s.Decisions)
}

// anchors reports whether a guideline's concepts cover the scenario.
func (s Scenario) anchors(doc types.Concepts) bool {
	return containsAny(doc.Diseases, s.Diseases) && containsAny(decisionTags(doc), s.Decisions)
}

func containsAny(have, want []string) bool {
	for _, w := range want {
		if slices.Contains(have, w) {
			return true
		}
	}
	return false
}

// candidateText joins the fields a guideline is matched on.
func candidateText(c types.Candidate) string {
	return c.Title + "\n" + strings.Join(c.Tags, "; ") + "\n" + c.Abstract
}

// matchScenario returns the first recognized scenario.
func matchScenario(scenarios []Scenario, query types.Concepts) (Scenario, bool) {
	for _, s := range scenarios {
		if s.recognizes(query) {
			return s, true
		}
	}
	return Scenario{}, false
}

// countAnchors counts the guidelines in items that anchor s.
func countAnchors(s Scenario, vocab *relevance.Vocabulary, items []types.Candidate) int {
	n := 0
	for _, c := range items {
		if c.Kind != types.KindGuideline {
			continue
		}
		if s.anchors(vocab.Extract(candidateText(c))) {
			n++
		}
	}
	return n
}
