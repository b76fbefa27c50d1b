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

// Package metrics provides an adapter interface for metrics and telemetry,
// allowing calling applications to implement custom metrics collection strategies.
//
// The clearinghouse records through MetricsAdapter only; pkg/metrics provides
// the Prometheus implementation and NoOpMetrics is the default.
package metrics

import (
	"context"
	"time"
)

// Standard metric names used throughout the clearinghouse
const (
	// Key cache
	MetricCacheHits      = "clearinghouse.cache.hits"
	MetricCacheMisses    = "clearinghouse.cache.misses"
	MetricCacheEvictions = "clearinghouse.cache.evictions"
	MetricCacheSize      = "clearinghouse.cache.size"

	// Remote fetches (JWKS, OpenID configuration, userinfo)
	MetricFetchTotal   = "clearinghouse.fetch.total"
	MetricFetchLatency = "clearinghouse.latency.fetch"

	// Token verification
	MetricVerifyTotal   = "clearinghouse.verify.total"
	MetricVerifyLatency = "clearinghouse.latency.verify"

	// Visa outcomes
	MetricVisasAccepted = "clearinghouse.visas.accepted"
	MetricVisasDropped  = "clearinghouse.visas.dropped"
)

// Tag keys
const (
	TagKind   = "kind"
	TagStatus = "status"
	TagReason = "reason"
	TagFlow   = "flow"
)

// Tag values for TagStatus
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// MetricsAdapter provides metrics and telemetry collection capabilities.
//
// Applications can implement this interface to provide custom metrics
// strategies (e.g., Prometheus, StatsD, DataDog, OpenTelemetry integration).
type MetricsAdapter interface {
	// RecordCounter increments a counter metric by 1
	RecordCounter(ctx context.Context, name string, tags map[string]string) error

	// RecordCounterWithValue increments a counter metric by a specific value
	RecordCounterWithValue(ctx context.Context, name string, value int64, tags map[string]string) error

	// RecordGauge sets a gauge metric to a specific value
	RecordGauge(ctx context.Context, name string, value float64, tags map[string]string) error

	// RecordHistogram records a value into a histogram (for distributions)
	RecordHistogram(ctx context.Context, name string, value float64, tags map[string]string) error

	// RecordTimer measures the duration of an operation and records it
	RecordTimer(ctx context.Context, name string, duration time.Duration, tags map[string]string) error

	// Name returns the metrics adapter name for logging/debugging
	Name() string
}

// Timed runs fn and records its duration under name. The status tag is set
// from fn's result and merged with tags. Recording errors are ignored.
func Timed(ctx context.Context, m MetricsAdapter, name string, tags map[string]string, fn func() error) error {
	start := time.Now()
	err := fn()
	if m == nil {
		return err
	}

	merged := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		merged[k] = v
	}
	merged[TagStatus] = StatusSuccess
	if err != nil {
		merged[TagStatus] = StatusError
	}
	_ = m.RecordTimer(ctx, name, time.Since(start), merged)
	return err
}
