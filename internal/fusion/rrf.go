// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fusion merges independently ranked lists with Reciprocal Rank Fusion.
//
// An item at 0-based rank r in a list with weight w contributes
// w / (k + r + 1) to its fused score. Items found in several lists
// accumulate one contribution per list, so agreement between lists
// outranks a single strong position.
package fusion

import (
	"sort"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// DefaultK is the standard RRF stabilizer constant.
const DefaultK = 60

// List is one ranked input, best first.
type List[T any] struct {
	// Name identifies the list in ContributingSources and RankPerSource.
	Name string

	// Items are ordered best first.
	Items []T

	// Weight scales the list's contributions. Zero means 1.0.
	Weight float64
}

// Options tunes a fusion call.
type Options struct {
	// K is the stabilizer constant; <= 0 uses DefaultK.
	K int
}

type accumulator[T any] struct {
	result types.FusedResult[T]
	order  int
}

// Fuse combines any number of ranked lists. idFn maps an item to its
// identity; items with the same identity are merged and the first one
// discovered is kept as the result item. The output is sorted by fused
// score descending; equal scores keep discovery order (list order, then
// rank within the list).
func Fuse[T any](lists []List[T], idFn func(T) string, opts Options) []types.FusedResult[T] {
	k := opts.K
	if k <= 0 {
		k = DefaultK
	}

	byID := make(map[string]*accumulator[T])
	var discovered []*accumulator[T]

	for _, list := range lists {
		w := list.Weight
		if w == 0 {
			w = 1.0
		}
		for r, item := range list.Items {
			id := idFn(item)
			acc, ok := byID[id]
			if !ok {
				acc = &accumulator[T]{
					result: types.FusedResult[T]{
						Item:          item,
						RankPerSource: make(map[string]int),
					},
					order: len(discovered),
				}
				byID[id] = acc
				discovered = append(discovered, acc)
			}
			// A duplicate inside one list only counts at its best rank.
			if _, seen := acc.result.RankPerSource[list.Name]; seen {
				continue
			}
			acc.result.FusedScore += w / float64(k+r+1)
			acc.result.RankPerSource[list.Name] = r
			acc.result.ContributingSources = append(acc.result.ContributingSources, list.Name)
		}
	}

	sort.SliceStable(discovered, func(i, j int) bool {
		if discovered[i].result.FusedScore != discovered[j].result.FusedScore {
			return discovered[i].result.FusedScore > discovered[j].result.FusedScore
		}
		return discovered[i].order < discovered[j].order
	})

	out := make([]types.FusedResult[T], len(discovered))
	for i, acc := range discovered {
		out[i] = acc.result
	}
	return out
}

// FusePair is the two-list form of Fuse, typically lexical against semantic.
func FusePair[T any](nameA string, a []T, nameB string, b []T, idFn func(T) string, opts Options) []types.FusedResult[T] {
	return Fuse([]List[T]{{Name: nameA, Items: a}, {Name: nameB, Items: b}}, idFn, opts)
}

// Items extracts the fused items in order.
func Items[T any](results []types.FusedResult[T]) []T {
	out := make([]T, len(results))
	for i, r := range results {
		out[i] = r.Item
	}
	return out
}
