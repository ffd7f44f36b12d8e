// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fallback runs a general web search when the gathered evidence is
// judged insufficient.
package fallback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/pdiddy/evidence-engine/internal/httputil"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Searcher returns web citations for a query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]types.Citation, error)
}

// ErrNoAPIKey is returned when the search service has no credentials.
var ErrNoAPIKey = errors.New("fallback search: no API key configured")

// tavilySearchURL is a variable so tests can point it at a local server.
var tavilySearchURL = "https://api.tavily.com/search"

// TavilyClient searches the web through the Tavily API.
type TavilyClient struct {
	APIKey      string
	SearchDepth string
	MaxResults  int
	HTTP        *http.Client
	Retry       httputil.RetryPolicy
	Logger      *slog.Logger
}

// NewTavilyClient creates a client from configuration.
func NewTavilyClient(cfg types.FallbackConfig, httpCfg types.HTTPConfig, retry httputil.RetryPolicy) *TavilyClient {
	timeout := httpCfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	depth := cfg.SearchDepth
	if depth == "" {
		depth = "advanced"
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}
	return &TavilyClient{
		APIKey:      cfg.APIKey,
		SearchDepth: depth,
		MaxResults:  maxResults,
		HTTP:        &http.Client{Timeout: timeout},
		Retry:       retry,
	}
}

// FromConfig returns the configured Searcher, or nil when the fallback is
// disabled.
func FromConfig(cfg types.FallbackConfig, httpCfg types.HTTPConfig, retry httputil.RetryPolicy, logger *slog.Logger) Searcher {
	if !cfg.Enabled {
		return nil
	}
	c := NewTavilyClient(cfg, httpCfg, retry)
	c.Logger = logger
	return c
}

// Search implements Searcher. Results without a URL are dropped.
func (c *TavilyClient) Search(ctx context.Context, query string) ([]types.Citation, error) {
	if c.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("fallback search: empty query")
	}

	body, err := json.Marshal(map[string]any{
		"api_key":      c.APIKey,
		"query":        query,
		"search_depth": c.SearchDepth,
		"max_results":  c.MaxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tavilySearchURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	retry := c.Retry
	if retry.Logger == nil {
		retry.Logger = c.Logger
	}
	resp, err := retry.Do(ctx, c.HTTP, req)
	if err != nil {
		return nil, fmt.Errorf("fallback search request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fallback search returned HTTP %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("fallback search response is not JSON")
	}

	var out []types.Citation
	gjson.GetBytes(data, "results").ForEach(func(_, r gjson.Result) bool {
		u := r.Get("url").String()
		if u == "" {
			return true
		}
		out = append(out, types.Citation{
			Title:   r.Get("title").String(),
			URL:     u,
			Snippet: r.Get("content").String(),
			Score:   r.Get("score").Float(),
		})
		return true
	})
	return out, nil
}
