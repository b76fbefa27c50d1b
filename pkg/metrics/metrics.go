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

// Package metrics provides Prometheus instrumentation for the clearinghouse.
// PrometheusAdapter implements the metrics adapter interface on top of a
// dedicated registry, translating dotted metric names into Prometheus
// collectors on first use.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	adapter "github.com/jeremyhahn/go-clearinghouse/pkg/adapters/metrics"
)

const (
	// Namespace is the Prometheus namespace for all clearinghouse metrics
	Namespace = "clearinghouse"

	// Label names
	LabelMethod     = "method"
	LabelStatusCode = "status_code"
)

var _ adapter.MetricsAdapter = (*PrometheusAdapter)(nil)

// PrometheusAdapter records adapter metrics into a Prometheus registry.
//
// The first recording of a name fixes its label set; later recordings with
// a different set of tag keys fail with an error rather than panic.
type PrometheusAdapter struct {
	registry *prometheus.Registry
	factory  promauto.Factory

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	labels     map[string][]string

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewPrometheusAdapter creates an adapter with its own registry. When
// withRuntime is set the Go runtime and process collectors are registered.
func NewPrometheusAdapter(withRuntime bool) *PrometheusAdapter {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector())
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	factory := promauto.With(reg)

	return &PrometheusAdapter{
		registry:   reg,
		factory:    factory,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		labels:     make(map[string][]string),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests by method and status code",
			},
			[]string{LabelMethod, LabelStatusCode},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{LabelMethod},
		),
	}
}

// Registry returns the underlying registry.
func (p *PrometheusAdapter) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusAdapter) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Name returns the metrics adapter name
func (p *PrometheusAdapter) Name() string {
	return "prometheus"
}

// RecordCounter increments a counter by 1
func (p *PrometheusAdapter) RecordCounter(ctx context.Context, name string, tags map[string]string) error {
	return p.RecordCounterWithValue(ctx, name, 1, tags)
}

// RecordCounterWithValue increments a counter by value
func (p *PrometheusAdapter) RecordCounterWithValue(_ context.Context, name string, value int64, tags map[string]string) error {
	if value < 0 {
		return fmt.Errorf("metrics: counter %s cannot decrease", name)
	}
	keys, values, err := p.labelsFor(name, tags)
	if err != nil {
		return err
	}

	p.mu.Lock()
	vec, ok := p.counters[name]
	if !ok {
		vec = p.factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      promName(name) + "_total",
			Help:      name,
		}, keys)
		p.counters[name] = vec
	}
	p.mu.Unlock()

	vec.WithLabelValues(values...).Add(float64(value))
	return nil
}

// RecordGauge sets a gauge
func (p *PrometheusAdapter) RecordGauge(_ context.Context, name string, value float64, tags map[string]string) error {
	keys, values, err := p.labelsFor(name, tags)
	if err != nil {
		return err
	}

	p.mu.Lock()
	vec, ok := p.gauges[name]
	if !ok {
		vec = p.factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      promName(name),
			Help:      name,
		}, keys)
		p.gauges[name] = vec
	}
	p.mu.Unlock()

	vec.WithLabelValues(values...).Set(value)
	return nil
}

// RecordHistogram observes a value
func (p *PrometheusAdapter) RecordHistogram(_ context.Context, name string, value float64, tags map[string]string) error {
	keys, values, err := p.labelsFor(name, tags)
	if err != nil {
		return err
	}

	p.mu.Lock()
	vec, ok := p.histograms[name]
	if !ok {
		vec = p.factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      promName(name),
			Help:      name,
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, keys)
		p.histograms[name] = vec
	}
	p.mu.Unlock()

	vec.WithLabelValues(values...).Observe(value)
	return nil
}

// RecordTimer observes duration in seconds
func (p *PrometheusAdapter) RecordTimer(ctx context.Context, name string, duration time.Duration, tags map[string]string) error {
	return p.RecordHistogram(ctx, name+".seconds", duration.Seconds(), tags)
}

// RecordHTTPRequest records an HTTP request with its duration and status.
func (p *PrometheusAdapter) RecordHTTPRequest(method, statusCode string, duration float64) {
	p.httpRequests.WithLabelValues(method, statusCode).Inc()
	p.httpDuration.WithLabelValues(method).Observe(duration)
}

// labelsFor returns the sorted label names and matching values for tags,
// checking them against the label set fixed by the first recording of name.
func (p *PrometheusAdapter) labelsFor(name string, tags map[string]string) ([]string, []string, error) {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p.mu.Lock()
	defer p.mu.Unlock()
	if fixed, ok := p.labels[name]; ok {
		if strings.Join(fixed, ",") != strings.Join(keys, ",") {
			return nil, nil, fmt.Errorf("metrics: %s recorded with labels %v, previously %v", name, keys, fixed)
		}
	} else {
		p.labels[name] = keys
	}

	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = tags[k]
	}
	return keys, values, nil
}

// promName maps "clearinghouse.cache.hits" to "cache_hits".
func promName(name string) string {
	name = strings.TrimPrefix(name, Namespace+".")
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}
