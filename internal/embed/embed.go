// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package embed turns text into fixed-size vectors for the semantic filter.
//
// Two implementations are provided. LangChain calls an OpenAI-compatible
// embeddings endpoint. Pseudo derives a deterministic vector from the
// text's tokens and bigrams and never fails; the semantic filter falls
// back to it whenever the service is unavailable.
package embed

import (
	"context"
	"log/slog"
	"math"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// DefaultDimension is the vector size of the pseudo-embedder.
const DefaultDimension = 768

// Embedder produces vector embeddings.
type Embedder interface {
	// EmbedText embeds a single text.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts embeds texts in one call and returns one vector per text,
	// in input order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// FromConfig returns the configured embedding service, or the pseudo
// embedder when no endpoint is set.
func FromConfig(cfg types.EmbeddingConfig, dim int, logger *slog.Logger) (Embedder, error) {
	if cfg.BaseURL == "" {
		return NewPseudo(dim), nil
	}
	return NewLangChain(cfg, logger)
}

// Cosine returns the cosine similarity of a and b. Vectors of different
// length, zero vectors, and non-finite results yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0
	}
	return sim
}
