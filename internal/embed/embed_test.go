// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
		{"nan", []float32{float32(math.NaN()), 1}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-6)
		})
	}
}

func TestPseudoDeterministic(t *testing.T) {
	p := NewPseudo(0)
	assert.Equal(t, DefaultDimension, p.Dimension())

	a := p.Vector("apixaban in chronic kidney disease")
	b := p.Vector("apixaban in chronic kidney disease")
	assert.Equal(t, a, b)
	assert.InDelta(t, 1, Cosine(a, b), 1e-6)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1, norm, 1e-5, "vectors are L2-normalized")
}

func TestPseudoSharedVocabularyIsCloser(t *testing.T) {
	p := NewPseudo(256)
	query := p.Vector("DAPT duration after PCI in high bleeding risk")
	near := p.Vector("Abbreviated DAPT after PCI for high bleeding risk patients")
	far := p.Vector("Fluid resuscitation volume in septic shock")

	assert.Greater(t, Cosine(query, near), Cosine(query, far))
	assert.Greater(t, Cosine(query, near), 0.3)
}

func TestPseudoEmptyTextIsZero(t *testing.T) {
	v := NewPseudo(16).Vector("the of and")
	assert.Len(t, v, 16)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestPseudoEmbedTexts(t *testing.T) {
	p := NewPseudo(32)
	vecs, err := p.EmbedTexts(context.Background(), []string{"sepsis", "warfarin"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, p.Vector("warfarin"), vecs[1])
}

func TestFromConfigWithoutEndpointIsPseudo(t *testing.T) {
	e, err := FromConfig(types.EmbeddingConfig{}, 64, nil)
	require.NoError(t, err)
	p, ok := e.(*Pseudo)
	require.True(t, ok)
	assert.Equal(t, 64, p.Dimension())
}

func TestNewLangChainRequiresURL(t *testing.T) {
	_, err := NewLangChain(types.EmbeddingConfig{}, nil)
	assert.Error(t, err)
}

func embeddingServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"), r.URL.Path)
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"model overloaded","type":"server_error"}}`))
			return
		}
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		for i := range req.Input {
			data[i] = item{Object: "embedding", Embedding: []float32{float32(i + 1), 0, 1}, Index: i}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 4, "total_tokens": 4},
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestLangChainEmbedTexts(t *testing.T) {
	ts := embeddingServer(t, http.StatusOK)
	e, err := NewLangChain(types.EmbeddingConfig{BaseURL: ts.URL + "/v1", Model: "bge-base"}, nil)
	require.NoError(t, err)

	vecs, err := e.EmbedTexts(context.Background(), []string{"first text", "second\ntext"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 0, 1}, vecs[0])
	assert.Equal(t, []float32{2, 0, 1}, vecs[1])

	one, err := e.EmbedText(context.Background(), "single")
	require.NoError(t, err)
	assert.Len(t, one, 3)
}

func TestLangChainServiceError(t *testing.T) {
	ts := embeddingServer(t, http.StatusInternalServerError)
	e, err := NewLangChain(types.EmbeddingConfig{BaseURL: ts.URL + "/v1"}, nil)
	require.NoError(t, err)

	_, err = e.EmbedTexts(context.Background(), []string{"text"})
	assert.Error(t, err)
}
