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

package metrics

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryMetrics is a metrics adapter that keeps every recording in memory.
// It backs tests and the CLI's end-of-run summary.
type MemoryMetrics struct {
	mu       sync.Mutex
	counters map[string]int64
	gauges   map[string]float64
	samples  map[string][]float64
}

// NewMemoryMetrics creates an empty in-memory metrics adapter
func NewMemoryMetrics() *MemoryMetrics {
	return &MemoryMetrics{
		counters: make(map[string]int64),
		gauges:   make(map[string]float64),
		samples:  make(map[string][]float64),
	}
}

// RecordCounter increments the counter for name and tags by 1
func (m *MemoryMetrics) RecordCounter(ctx context.Context, name string, tags map[string]string) error {
	return m.RecordCounterWithValue(ctx, name, 1, tags)
}

// RecordCounterWithValue increments the counter for name and tags by value
func (m *MemoryMetrics) RecordCounterWithValue(_ context.Context, name string, value int64, tags map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[seriesKey(name, tags)] += value
	return nil
}

// RecordGauge sets the gauge for name and tags
func (m *MemoryMetrics) RecordGauge(_ context.Context, name string, value float64, tags map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[seriesKey(name, tags)] = value
	return nil
}

// RecordHistogram appends value to the samples for name and tags
func (m *MemoryMetrics) RecordHistogram(_ context.Context, name string, value float64, tags map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := seriesKey(name, tags)
	m.samples[key] = append(m.samples[key], value)
	return nil
}

// RecordTimer records duration in seconds as a histogram sample
func (m *MemoryMetrics) RecordTimer(ctx context.Context, name string, duration time.Duration, tags map[string]string) error {
	return m.RecordHistogram(ctx, name, duration.Seconds(), tags)
}

// Name returns the metrics adapter name
func (m *MemoryMetrics) Name() string {
	return "memory"
}

// Counter returns the counter for name summed across all tag sets.
func (m *MemoryMetrics) Counter(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for key, v := range m.counters {
		if seriesName(key) == name {
			total += v
		}
	}
	return total
}

// CounterWith returns the counter for exactly name and tags.
func (m *MemoryMetrics) CounterWith(name string, tags map[string]string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[seriesKey(name, tags)]
}

// Gauge returns the last gauge value recorded for name and tags.
func (m *MemoryMetrics) Gauge(name string, tags map[string]string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.gauges[seriesKey(name, tags)]
	return v, ok
}

// Samples returns the number of histogram samples for name across all tag sets.
func (m *MemoryMetrics) Samples(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, v := range m.samples {
		if seriesName(key) == name {
			n += len(v)
		}
	}
	return n
}

// seriesKey renders name{k=v,...} with tags in sorted order.
func seriesKey(name string, tags map[string]string) string {
	if len(tags) == 0 {
		return name
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(tags[k])
	}
	b.WriteByte('}')
	return b.String()
}

func seriesName(key string) string {
	name, _, _ := strings.Cut(key, "{")
	return name
}
