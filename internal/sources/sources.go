// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sources holds the adapters for the external evidence catalogs.
// Each adapter turns a free-text clinical query into a list of
// types.Candidate values. Adapters are stateless apart from their shared
// Client; they never cache and never rank.
package sources

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/evidence-engine/internal/httputil"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Adapter searches a single evidence catalog. Implementations must be safe
// for concurrent use and must honour ctx cancellation.
type Adapter interface {
	Name() types.SourceName
	Search(ctx context.Context, query string, maxResults int) ([]types.Candidate, error)
}

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 16 << 20

// Client is the HTTP plumbing shared by the adapters: a rate limiter, the
// retry policy and a fixed User-Agent.
type Client struct {
	HTTP      *http.Client
	Retry     httputil.RetryPolicy
	Limiter   *rate.Limiter
	UserAgent string
	Logger    *slog.Logger
}

// NewClient creates a Client limited to rps requests per second (no limit
// when rps <= 0).
func NewClient(httpCfg types.HTTPConfig, retry httputil.RetryPolicy, rps float64) *Client {
	timeout := httpCfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &Client{
		HTTP:      &http.Client{Timeout: timeout},
		Retry:     retry,
		Limiter:   limiter,
		UserAgent: httpCfg.UserAgent,
	}
}

// get fetches rawURL and returns the body of a 200 response.
func (c *Client) get(ctx context.Context, source types.SourceName, rawURL string, header http.Header) ([]byte, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	policy := c.Retry
	if policy.Logger == nil {
		policy.Logger = c.logger()
	}
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := policy.Do(ctx, httpClient, req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Source: source, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", source, err)
	}
	return body, nil
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// clampResults bounds maxResults to [1, limit], defaulting to 20.
func clampResults(maxResults, limit int) int {
	if maxResults <= 0 {
		maxResults = 20
	}
	if maxResults > limit {
		maxResults = limit
	}
	return maxResults
}

// parseYear returns the leading four-digit year in s, or zero.
func parseYear(s string) int {
	s = strings.TrimSpace(s)
	if len(s) < 4 {
		return 0
	}
	y := 0
	for _, r := range s[:4] {
		if r < '0' || r > '9' {
			return 0
		}
		y = y*10 + int(r-'0')
	}
	return y
}

// classifyTitle infers a kind from title wording when a source carries no
// publication type.
func classifyTitle(title string) types.EvidenceKind {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "systematic review"), strings.Contains(t, "meta-analysis"), strings.Contains(t, "meta analysis"):
		return types.KindSystematicReview
	case strings.Contains(t, "guideline"), strings.Contains(t, "consensus statement"), strings.Contains(t, "recommendation"):
		return types.KindGuideline
	case strings.Contains(t, "randomized"), strings.Contains(t, "randomised"), strings.Contains(t, "trial"):
		return types.KindTrial
	default:
		return types.KindArticle
	}
}

func compactMeta(kv ...string) map[string]string {
	m := make(map[string]string)
	for i := 0; i+1 < len(kv); i += 2 {
		if v := strings.TrimSpace(kv[i+1]); v != "" {
			m[kv[i]] = v
		}
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
