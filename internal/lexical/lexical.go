// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package lexical implements the token-level similarity measures used as
// keyword scores, tie-breakers, and the last-resort ranking signal.
package lexical

import (
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "how": true, "in": true,
	"is": true, "it": true, "of": true, "on": true, "or": true, "should": true,
	"that": true, "the": true, "this": true, "to": true, "what": true,
	"when": true, "which": true, "with": true, "without": true, "does": true,
	"do": true, "patients": true, "patient": true, "vs": true, "versus": true,
	"i": true, "we": true, "can": true, "after": true, "before": true,
}

// Tokenize lowercases text and splits it into alphanumeric tokens,
// dropping stopwords and single characters. Hyphenated terms are kept
// whole and also split ("beta-blocker" yields "beta-blocker", "beta", "blocker").
func Tokenize(text string) []string {
	var tokens []string
	for _, f := range splitWords(text) {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		tokens = append(tokens, f)
		if strings.Contains(f, "-") {
			for _, part := range strings.Split(f, "-") {
				if len(part) >= 2 && !stopwords[part] {
					tokens = append(tokens, part)
				}
			}
		}
	}
	return tokens
}

// splitWords lowercases text and splits it on anything other than letters,
// digits, and inner hyphens.
func splitWords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	words := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, "-"); f != "" {
			words = append(words, f)
		}
	}
	return words
}

// TokenSet returns the distinct tokens of text.
func TokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range Tokenize(text) {
		set[t] = true
	}
	return set
}

// Jaccard returns |A∩B| / |A∪B| over the token sets of a and b.
func Jaccard(a, b string) float64 {
	sa, sb := TokenSet(a), TokenSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for t := range sa {
		if sb[t] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// KeywordOverlap returns the fraction of query tokens present in doc.
func KeywordOverlap(query, doc string) float64 {
	q := TokenSet(query)
	if len(q) == 0 {
		return 0
	}
	d := TokenSet(doc)
	hit := 0
	for t := range q {
		if d[t] {
			hit++
		}
	}
	return float64(hit) / float64(len(q))
}
