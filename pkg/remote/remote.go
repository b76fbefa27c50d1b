// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-clearinghouse.
//
// go-clearinghouse is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package remote performs the clearinghouse's outbound HTTP GETs: JWKS
// documents, OpenID configuration documents and userinfo responses.
//
// Every failure, whether transport, non-2xx status, oversized body or
// malformed JSON, is reported as ErrFetch so callers can match one sentinel.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	adapter "github.com/jeremyhahn/go-clearinghouse/pkg/adapters/metrics"
	"github.com/jeremyhahn/go-clearinghouse/pkg/correlation"
	"github.com/jeremyhahn/go-clearinghouse/pkg/ratelimit"
)

// ErrFetch is returned when a remote document cannot be retrieved or decoded.
var ErrFetch = errors.New("remote: fetch failed")

// Kind labels a fetch for metrics and error messages.
type Kind string

const (
	KindJWKS                Kind = "jwks"
	KindOpenIDConfiguration Kind = "openid_configuration"
	KindUserInfo            Kind = "userinfo"
)

const (
	// DefaultTimeout bounds a single fetch when the caller's HTTP client has none.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxBodyBytes caps how much of a response body is read.
	DefaultMaxBodyBytes = 1 << 20
)

// Client fetches JSON documents over HTTP.
type Client struct {
	httpClient   *http.Client
	limiter      *ratelimit.Limiter
	metrics      adapter.MetricsAdapter
	maxBodyBytes int64
	userAgent    string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRateLimiter throttles requests per upstream host.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithMetrics records fetch counts and latency.
func WithMetrics(m adapter.MetricsAdapter) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithMaxBodyBytes overrides DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBodyBytes = n
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		metrics:      adapter.NewNoOpMetrics(),
		maxBodyBytes: DefaultMaxBodyBytes,
		userAgent:    "go-clearinghouse",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HTTPClient returns the underlying HTTP client.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// GetJSON fetches rawURL and decodes the JSON body into out. When bearer is
// non-empty it is sent as "Authorization: Bearer <bearer>".
func (c *Client) GetJSON(ctx context.Context, kind Kind, rawURL, bearer string, out any) error {
	body, err := c.Get(ctx, kind, rawURL, bearer)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s %s: invalid JSON: %v", ErrFetch, kind, rawURL, err)
	}
	return nil
}

// Get fetches rawURL and returns the body of a 2xx response.
func (c *Client) Get(ctx context.Context, kind Kind, rawURL, bearer string) ([]byte, error) {
	var body []byte
	err := adapter.Timed(ctx, c.metrics, adapter.MetricFetchLatency, map[string]string{adapter.TagKind: string(kind)}, func() error {
		var err error
		body, err = c.get(ctx, kind, rawURL, bearer)
		return err
	})

	status := adapter.StatusSuccess
	if err != nil {
		status = adapter.StatusError
	}
	_ = c.metrics.RecordCounter(ctx, adapter.MetricFetchTotal, map[string]string{
		adapter.TagKind:   string(kind),
		adapter.TagStatus: status,
	})
	return body, err
}

func (c *Client) get(ctx context.Context, kind Kind, rawURL, bearer string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %s: invalid URL %q", ErrFetch, kind, rawURL)
	}

	if err := c.limiter.Wait(ctx, u.Host); err != nil {
		return nil, fmt.Errorf("%w: %s %s: rate limit: %v", ErrFetch, kind, rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: failed to create request: %v", ErrFetch, kind, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	correlation.Inject(ctx, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrFetch, kind, rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxBodyBytes))
		return nil, fmt.Errorf("%w: %s %s: status %d", ErrFetch, kind, rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: failed to read response body: %v", ErrFetch, kind, rawURL, err)
	}
	if int64(len(body)) > c.maxBodyBytes {
		return nil, fmt.Errorf("%w: %s %s: response exceeds %d bytes", ErrFetch, kind, rawURL, c.maxBodyBytes)
	}
	return body, nil
}
