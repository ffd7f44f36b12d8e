// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/pdiddy/evidence-engine/internal/httputil"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// HFClient calls a Hugging Face style text-classification endpoint serving
// a cross-encoder such as BAAI/bge-reranker-v2-m3.
//
// The request body is {"inputs": [{"text": q, "text_pair": d}, ...]}.
// Accepted response shapes, one element per pair:
//
//	[[{"label": "LABEL_1", "score": 0.93}, ...], ...]   all labels per pair
//	[{"label": "LABEL_0", "score": 0.88}, ...]          top label per pair
//	[0.93, -2.1, ...]                                   raw scores
//	[{"index": 1, "score": 0.93}, ...]                  rerank endpoints, any order
type HFClient struct {
	URL    string
	APIKey string
	Model  string
	HTTP   *http.Client
	Retry  httputil.RetryPolicy
	Logger *slog.Logger
}

// NewHFClient creates a client for cfg.URL.
func NewHFClient(cfg types.CrossEncoderConfig, httpCfg types.HTTPConfig, retry httputil.RetryPolicy) *HFClient {
	timeout := httpCfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HFClient{
		URL:    cfg.URL,
		APIKey: cfg.APIKey,
		Model:  cfg.Model,
		HTTP:   &http.Client{Timeout: timeout},
		Retry:  retry,
	}
}

type hfInput struct {
	Text     string `json:"text"`
	TextPair string `json:"text_pair"`
}

// Classify implements CrossEncoder.
func (c *HFClient) Classify(ctx context.Context, pairs []Pair) ([][]Label, error) {
	inputs := make([]hfInput, len(pairs))
	for i, p := range pairs {
		inputs[i] = hfInput{Text: p.Query, TextPair: p.Doc}
	}
	payload := map[string]any{
		"inputs":     inputs,
		"parameters": map[string]any{"top_k": nil},
	}
	if c.Model != "" {
		payload["model"] = c.Model
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	retry := c.Retry
	if retry.Logger == nil {
		retry.Logger = c.Logger
	}
	resp, err := retry.Do(ctx, c.HTTP, req)
	if err != nil {
		return nil, fmt.Errorf("cross-encoder request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cross-encoder returned HTTP %d: %s", resp.StatusCode, gjson.GetBytes(data, "error").String())
	}
	return parseLabels(data, len(pairs))
}

// parseLabels decodes any of the accepted response shapes into one label
// list per pair.
func parseLabels(data []byte, n int) ([][]Label, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("cross-encoder response is not JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, fmt.Errorf("cross-encoder response is not an array")
	}
	items := root.Array()
	if len(items) != n {
		return nil, fmt.Errorf("cross-encoder returned %d results for %d pairs", len(items), n)
	}

	out := make([][]Label, n)
	for i, item := range items {
		switch {
		case item.IsArray():
			for _, l := range item.Array() {
				out[i] = append(out[i], Label{Label: l.Get("label").String(), Score: l.Get("score").Float()})
			}
		case item.IsObject() && item.Get("index").Exists():
			idx := int(item.Get("index").Int())
			if idx < 0 || idx >= n {
				return nil, fmt.Errorf("cross-encoder result index %d out of range", idx)
			}
			out[idx] = []Label{{Score: item.Get("score").Float()}}
		case item.IsObject():
			out[i] = []Label{{Label: item.Get("label").String(), Score: item.Get("score").Float()}}
		case item.Type == gjson.Number:
			out[i] = []Label{{Score: item.Float()}}
		default:
			return nil, fmt.Errorf("unexpected cross-encoder result %s", item.Raw)
		}
	}
	return out, nil
}

// FromConfig creates a Reranker backed by an HFClient, or a lexical-only
// Reranker when no endpoint is configured.
func FromConfig(cfg types.CrossEncoderConfig, httpCfg types.HTTPConfig, retry httputil.RetryPolicy, logger *slog.Logger) *Reranker {
	if cfg.URL == "" {
		return New(nil, logger)
	}
	client := NewHFClient(cfg, httpCfg, retry)
	client.Logger = logger
	return New(client, logger)
}
