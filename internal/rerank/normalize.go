// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rerank

import (
	"math"
	"strings"
)

// Label is one class score returned by the cross-encoder for a pair.
type Label struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

var (
	relevantLabels   = map[string]bool{"label_1": true, "relevant": true, "entailment": true, "1": true, "yes": true, "positive": true}
	irrelevantLabels = map[string]bool{"label_0": true, "irrelevant": true, "not_relevant": true, "contradiction": true, "0": true, "no": true, "negative": true}
)

// Normalize reduces a pair's raw model output to a relevance probability.
// A single score is passed through when it is already in [0, 1] and
// squashed with a sigmoid otherwise; a lone irrelevant-class score is
// inverted. With several labels the relevant
// class is used, after a softmax when the scores are logits. ok is false
// when the output carries no usable score.
func Normalize(labels []Label) (score float64, ok bool) {
	switch len(labels) {
	case 0:
		return 0, false
	case 1:
		s, ok := unit(labels[0].Score)
		if ok && irrelevantLabels[strings.ToLower(labels[0].Label)] {
			s = 1 - s
		}
		return s, ok
	}

	probs := make([]float64, len(labels))
	logits := false
	for i, l := range labels {
		if math.IsNaN(l.Score) || math.IsInf(l.Score, 0) {
			return 0, false
		}
		probs[i] = l.Score
		if l.Score < 0 || l.Score > 1 {
			logits = true
		}
	}
	if logits {
		probs = softmax(probs)
	}

	for i, l := range labels {
		if relevantLabels[strings.ToLower(l.Label)] {
			return probs[i], true
		}
	}
	if len(labels) == 2 {
		for i, l := range labels {
			if irrelevantLabels[strings.ToLower(l.Label)] {
				return 1 - probs[i], true
			}
		}
	}

	best := probs[0]
	for _, p := range probs[1:] {
		best = math.Max(best, p)
	}
	return best, true
}

func unit(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if v >= 0 && v <= 1 {
		return v, true
	}
	return Sigmoid(v), true
}

// Sigmoid maps a logit to (0, 1).
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func softmax(xs []float64) []float64 {
	maxX := xs[0]
	for _, x := range xs[1:] {
		maxX = math.Max(maxX, x)
	}
	out := make([]float64, len(xs))
	var sum float64
	for i, x := range xs {
		out[i] = math.Exp(x - maxX)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
