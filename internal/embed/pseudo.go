// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/pdiddy/evidence-engine/internal/lexical"
)

// bigramWeight scales bigram features relative to single tokens.
const bigramWeight = 0.5

// Pseudo is a deterministic feature-hashing embedder. Each token and each
// adjacent token pair is hashed into a bucket with a hash-derived sign;
// the vector is then L2-normalized. Texts sharing vocabulary get a
// positive cosine similarity, so ranking keeps some signal without a
// model. Text with no tokens embeds to the zero vector.
type Pseudo struct {
	dim int
}

// NewPseudo creates a pseudo-embedder of dimension dim
// (DefaultDimension when dim <= 0).
func NewPseudo(dim int) *Pseudo {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &Pseudo{dim: dim}
}

// Dimension returns the vector size.
func (p *Pseudo) Dimension() int { return p.dim }

// EmbedText never fails.
func (p *Pseudo) EmbedText(_ context.Context, text string) ([]float32, error) {
	return p.Vector(text), nil
}

// EmbedTexts never fails.
func (p *Pseudo) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.Vector(t)
	}
	return out, nil
}

// Vector returns the embedding of text.
func (p *Pseudo) Vector(text string) []float32 {
	vec := make([]float64, p.dim)
	tokens := lexical.Tokenize(text)
	for i, tok := range tokens {
		p.add(vec, tok, 1)
		if i > 0 {
			p.add(vec, tokens[i-1]+" "+tok, bigramWeight)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, p.dim)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func (p *Pseudo) add(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	bucket := int(sum % uint64(p.dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}
