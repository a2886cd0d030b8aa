// Package httpx is the HTTP wrapper shared by every collector.
//
// Transient failures (network errors, 408, 5xx) are retried with exponential
// backoff and jitter up to Policy.MaxAttempts. A 429 sleeps a cooldown and
// retries without spending an attempt. Any other 4xx fails immediately.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/logger"
)

const (
	// DefaultUserAgent identifies the collector to origin servers.
	DefaultUserAgent = "Sentinela/1.0 (+public-spending audit)"

	// maxErrorBody bounds how much of a failed response is drained.
	maxErrorBody = 64 << 10
)

// Policy bounds retries, cooldowns and request pacing.
type Policy struct {
	// MaxAttempts is the number of tries for transient failures.
	MaxAttempts int

	// BaseDelay and MaxDelay bound the exponential backoff.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Cooldown is the sleep after a 429 without a usable Retry-After.
	Cooldown time.Duration

	// MaxCooldowns caps consecutive 429s before the request fails.
	MaxCooldowns int

	// MinDelay is the minimum spacing between requests to one source.
	MinDelay time.Duration

	// RequestTimeout is the per-call timeout.
	RequestTimeout time.Duration
}

// DefaultPolicy returns the pipeline defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    5,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		Cooldown:       30 * time.Second,
		MaxCooldowns:   10,
		MinDelay:       700 * time.Millisecond,
		RequestTimeout: 60 * time.Second,
	}
}

// Client executes requests under a Policy.
type Client struct {
	http    *http.Client
	policy  Policy
	limiter *RateLimiter
	headers http.Header
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying client, e.g. to carry a cookie jar.
// The policy's request timeout is applied to it.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers.Set(key, value) }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a client for one source.
func NewClient(policy Policy, opts ...Option) *Client {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	c := &Client{
		http:    &http.Client{},
		policy:  policy,
		limiter: NewRateLimiter(policy.MinDelay),
		headers: make(http.Header),
		log:     logger.For("httpx"),
	}
	c.headers.Set("User-Agent", DefaultUserAgent)
	for _, opt := range opts {
		opt(c)
	}
	if policy.RequestTimeout > 0 {
		c.http.Timeout = policy.RequestTimeout
	}
	return c
}

// HTTP returns the underlying client.
func (c *Client) HTTP() *http.Client {
	return c.http
}

// RateLimiter returns the client's limiter.
func (c *Client) RateLimiter() *RateLimiter {
	return c.limiter
}

// RequestFunc builds a fresh request for each attempt.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// Do runs the request under the policy. On success the caller owns the body.
func (c *Client) Do(ctx context.Context, build RequestFunc) (*http.Response, error) {
	attempts, cooldowns := 0, 0
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		req, err := build(ctx)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		for k, vs := range c.headers {
			if req.Header.Get(k) == "" {
				req.Header[k] = vs
			}
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			attempts++
			if attempts >= c.policy.MaxAttempts {
				return nil, fmt.Errorf("%w: %s %s: %w", domain.ErrTransientNetwork, req.Method, redact(req.URL), err)
			}
			if err := c.backoff(ctx, attempts, req, err.Error()); err != nil {
				return nil, err
			}
			continue
		}

		switch {
		case resp.StatusCode < 400:
			return resp, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			wait := RetryAfter(resp, c.policy.Cooldown, c.policy.MaxDelay*4)
			discard(resp)
			cooldowns++
			if c.policy.MaxCooldowns > 0 && cooldowns > c.policy.MaxCooldowns {
				return nil, &StatusError{StatusCode: resp.StatusCode, URL: redact(req.URL)}
			}
			c.log.Warn("rate limited, cooling down", "url", redact(req.URL), "wait", wait, "cooldowns", cooldowns)
			c.limiter.RecordRateLimit(wait)

		case IsRetryableStatus(resp.StatusCode):
			discard(resp)
			attempts++
			if attempts >= c.policy.MaxAttempts {
				return nil, &StatusError{StatusCode: resp.StatusCode, URL: redact(req.URL)}
			}
			if err := c.backoff(ctx, attempts, req, resp.Status); err != nil {
				return nil, err
			}

		default:
			discard(resp)
			return nil, &StatusError{StatusCode: resp.StatusCode, URL: redact(req.URL)}
		}
	}
}

func (c *Client) backoff(ctx context.Context, attempt int, req *http.Request, reason string) error {
	d := Backoff(attempt, c.policy.BaseDelay, c.policy.MaxDelay)
	c.log.Debug("retrying", "url", redact(req.URL), "attempt", attempt, "delay", d, "reason", reason)
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Get fetches url.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) (*http.Response, error) {
	return c.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		copyHeader(req.Header, header)
		return req, nil
	})
}

// PostForm posts an urlencoded form.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, header http.Header) (*http.Response, error) {
	body := form.Encode()
	return c.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		copyHeader(req.Header, header)
		return req, nil
	})
}

// GetBytes fetches url and reads the whole body.
func (c *Client) GetBytes(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	resp, err := c.Get(ctx, rawURL, header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", domain.ErrTransientNetwork, err)
	}
	return data, nil
}

func copyHeader(dst, src http.Header) {
	for k, vs := range src {
		dst[k] = append([]string(nil), vs...)
	}
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}

// redact drops the query string, which may carry API keys.
func redact(u *url.URL) string {
	if u == nil {
		return ""
	}
	clean := *u
	clean.RawQuery = ""
	clean.User = nil
	return clean.String()
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
