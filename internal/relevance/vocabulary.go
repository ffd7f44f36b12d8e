// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package relevance extracts controlled-vocabulary concepts from text and
// drops candidates that do not share enough of the query's concepts.
package relevance

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Category groups vocabulary tags.
type Category string

const (
	Disease      Category = "diseases"
	Biomarker    Category = "biomarkers"
	Intervention Category = "interventions"
	Outcome      Category = "outcomes"
)

// Categories lists every category in scoring order.
var Categories = []Category{Disease, Biomarker, Intervention, Outcome}

//go:embed vocabulary.yaml
var defaultVocabularyYAML []byte

// Rule recognizes one tag.
type Rule struct {
	Tag      string
	Patterns []*regexp.Regexp
}

// Matches reports whether any pattern matches text.
func (r Rule) Matches(text string) bool {
	for _, p := range r.Patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// Vocabulary holds the rule tables per category. Tags within a category
// are kept in sorted order so extraction is deterministic.
type Vocabulary struct {
	rules map[Category][]Rule
}

// ParseVocabulary compiles a YAML document mapping category to tag to
// pattern list. Patterns are matched case-insensitively.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var raw map[Category]map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing vocabulary: %w", err)
	}
	v := &Vocabulary{rules: make(map[Category][]Rule, len(raw))}
	for cat, tags := range raw {
		if !validCategory(cat) {
			return nil, fmt.Errorf("vocabulary: unknown category %q", cat)
		}
		names := make([]string, 0, len(tags))
		for tag := range tags {
			names = append(names, tag)
		}
		sort.Strings(names)

		for _, tag := range names {
			rule := Rule{Tag: tag}
			for _, p := range tags[tag] {
				re, err := regexp.Compile("(?i)" + p)
				if err != nil {
					return nil, fmt.Errorf("vocabulary %s/%s: %w", cat, tag, err)
				}
				rule.Patterns = append(rule.Patterns, re)
			}
			if len(rule.Patterns) == 0 {
				return nil, fmt.Errorf("vocabulary %s/%s: no patterns", cat, tag)
			}
			v.rules[cat] = append(v.rules[cat], rule)
		}
	}
	return v, nil
}

// LoadVocabulary reads and compiles a vocabulary file.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vocabulary: %w", err)
	}
	return ParseVocabulary(data)
}

// DefaultVocabulary returns the built-in clinical vocabulary.
func DefaultVocabulary() *Vocabulary {
	v, err := ParseVocabulary(defaultVocabularyYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in vocabulary: %v", err))
	}
	return v
}

func validCategory(c Category) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Rules returns the rules of one category.
func (v *Vocabulary) Rules(c Category) []Rule { return v.rules[c] }

// Rule returns the rule for tag in category c.
func (v *Vocabulary) Rule(c Category, tag string) (Rule, bool) {
	for _, r := range v.rules[c] {
		if r.Tag == tag {
			return r, true
		}
	}
	return Rule{}, false
}

// Extract returns the tags of every rule matching text. It is a pure
// function of the vocabulary and text.
func (v *Vocabulary) Extract(text string) types.Concepts {
	var c types.Concepts
	for _, cat := range Categories {
		tags := v.match(cat, text)
		switch cat {
		case Disease:
			c.Diseases = tags
		case Biomarker:
			c.Biomarkers = tags
		case Intervention:
			c.Interventions = tags
		case Outcome:
			c.Outcomes = tags
		}
	}
	return c
}

func (v *Vocabulary) match(c Category, text string) []string {
	var tags []string
	for _, r := range v.rules[c] {
		if r.Matches(text) {
			tags = append(tags, r.Tag)
		}
	}
	return tags
}

// Tags returns the concept tags of category c.
func Tags(concepts types.Concepts, c Category) []string {
	switch c {
	case Disease:
		return concepts.Diseases
	case Biomarker:
		return concepts.Biomarkers
	case Intervention:
		return concepts.Interventions
	case Outcome:
		return concepts.Outcomes
	}
	return nil
}
