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

package clearinghouse

import (
	"net/http"
	"time"

	"github.com/jeremyhahn/go-clearinghouse/pkg/adapters/audit"
	"github.com/jeremyhahn/go-clearinghouse/pkg/adapters/logger"
	adapter "github.com/jeremyhahn/go-clearinghouse/pkg/adapters/metrics"
	"github.com/jeremyhahn/go-clearinghouse/pkg/jwks"
	"github.com/jeremyhahn/go-clearinghouse/pkg/ratelimit"
)

type options struct {
	httpClient *http.Client
	cache      *jwks.Cache
	logger     logger.Logger
	metrics    adapter.MetricsAdapter
	auditor    audit.AuditAdapter
	limiter    *ratelimit.Limiter
	leeway     time.Duration
	cacheSize  int
	clock      func() time.Time
	userAgent  string
	maxBody    int64
}

// Option configures a Clearinghouse.
type Option func(*options)

// WithHTTPClient sets the client used for discovery, key set and userinfo
// requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithKeyCache shares an existing key cache. WithCacheSize is ignored when
// a cache is supplied.
func WithKeyCache(c *jwks.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithLogger sets the logger. Dropped visas are logged at Warn.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics adapter.
func WithMetrics(m adapter.MetricsAdapter) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithAuditor records an event for every visa accepted or dropped.
func WithAuditor(a audit.AuditAdapter) Option {
	return func(o *options) {
		if a != nil {
			o.auditor = a
		}
	}
}

// WithRateLimiter throttles outbound requests per host.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

// WithLeeway allows clock skew on exp, nbf and iat.
func WithLeeway(d time.Duration) Option {
	return func(o *options) { o.leeway = d }
}

// WithCacheSize sets the capacity of the key cache created by New.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// WithClock overrides the time source for token time claims.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithUserAgent sets the User-Agent of outbound requests.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// WithMaxBodyBytes caps how much of each broker response is read.
func WithMaxBodyBytes(n int64) Option {
	return func(o *options) { o.maxBody = n }
}
