// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides the retry policy shared by every outbound HTTP client.
package httputil

import (
	"context"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = time.Second
	defaultMaxDelay   = 30 * time.Second
)

// RetryPolicy describes when and how a request is retried. The zero value
// is usable and behaves like DefaultRetryPolicy.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay is the first backoff delay; it doubles on every retry.
	BaseDelay time.Duration

	// MaxDelay caps a single backoff delay.
	MaxDelay time.Duration

	// Jitter is the fraction of each delay that is randomized (0 disables).
	Jitter float64

	// Retryable decides whether a response status is retried. Nil retries
	// 429 and 5xx.
	Retryable func(status int) bool

	// Logger receives retry notices. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultRetryPolicy returns 3 retries starting at 1s with 20% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: defaultMaxRetries,
		BaseDelay:  defaultBaseDelay,
		MaxDelay:   defaultMaxDelay,
		Jitter:     0.2,
	}
}

// PolicyFromConfig builds a RetryPolicy from configuration.
func PolicyFromConfig(cfg types.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.BaseDelay,
		MaxDelay:   cfg.MaxDelay,
		Jitter:     cfg.Jitter,
	}
}

// IsRetryableStatus reports whether status is 429 or a 5xx.
func IsRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// Do executes req and retries retryable statuses with exponential backoff
// plus jitter. A Retry-After header in seconds overrides the computed delay
// (still capped by MaxDelay).
//
// On each retry the response body is drained and closed before sleeping.
// If the context is cancelled during a backoff wait Do returns ctx.Err().
// After exhausting retries the last retryable response is returned so the
// caller can inspect it. Transport errors are returned immediately.
func (p RetryPolicy) Do(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	maxRetries := p.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryableStatus
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for attempt := 0; ; attempt++ {
		r := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			r.Body = body
		}

		resp, err := client.Do(r)
		if err != nil {
			return nil, err
		}

		if !retryable(resp.StatusCode) {
			return resp, nil
		}

		// Exhausted retries: return the retryable response as-is.
		if attempt >= maxRetries {
			return resp, nil
		}

		backoff := p.Backoff(attempt)
		if ra := retryAfter(resp.Header.Get("Retry-After")); ra > 0 {
			backoff = p.capDelay(ra)
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		logger.Debug("retrying request",
			"url", req.URL.Redacted(), "status", resp.StatusCode,
			"attempt", attempt+1, "max_retries", maxRetries, "backoff", backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Backoff returns the delay before retry number attempt (0-based):
// BaseDelay * 2^attempt, capped at MaxDelay, with up to Jitter of it
// randomized.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	d := p.capDelay(time.Duration(math.Pow(2, float64(attempt))) * base)
	if p.Jitter > 0 {
		j := math.Min(p.Jitter, 1)
		// Spread the delay uniformly over [d*(1-j), d].
		d = time.Duration(float64(d) * (1 - j*rand.Float64()))
	}
	return d
}

func (p RetryPolicy) capDelay(d time.Duration) time.Duration {
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	if d > maxDelay || d <= 0 {
		return maxDelay
	}
	return d
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
