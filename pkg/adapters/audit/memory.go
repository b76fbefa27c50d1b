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


package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-clearinghouse/pkg/correlation"
)

// DefaultCapacity is the number of events a MemoryAuditAdapter keeps when
// no capacity is given.
const DefaultCapacity = 1024

// ErrNilEvent is returned by Record for a nil event.
var ErrNilEvent = errors.New("audit: event cannot be nil")

// MemoryAuditAdapter keeps the most recent events in a fixed-size ring.
// Older events are overwritten once the ring is full.
type MemoryAuditAdapter struct {
	mu     sync.RWMutex
	events []*Event
	next   int
	full   bool
	total  int64
}

// NewMemoryAuditAdapter creates an in-memory adapter holding up to capacity
// events. A capacity below one uses DefaultCapacity.
func NewMemoryAuditAdapter(capacity int) *MemoryAuditAdapter {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &MemoryAuditAdapter{events: make([]*Event, capacity)}
}

// Record stores a copy of event. ID, Timestamp and CorrelationID are filled
// in when empty.
func (m *MemoryAuditAdapter) Record(ctx context.Context, event *Event) error {
	if event == nil {
		return ErrNilEvent
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.CorrelationID == "" {
		event.CorrelationID = correlation.GetCorrelationID(ctx)
	}
	stored := *event

	m.mu.Lock()
	m.events[m.next] = &stored
	m.next = (m.next + 1) % len(m.events)
	if m.next == 0 {
		m.full = true
	}
	m.total++
	m.mu.Unlock()
	return nil
}

// Events returns copies of the events matching query, newest first.
func (m *MemoryAuditAdapter) Events(query *EventQuery) []*Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Event
	m.each(func(e *Event) bool {
		if query.Matches(e) {
			c := *e
			out = append(out, &c)
		}
		return query == nil || query.Limit <= 0 || len(out) < query.Limit
	})
	return out
}

// Statistics aggregates the retained events. TotalEvents counts every event
// ever recorded, including those overwritten.
func (m *MemoryAuditAdapter) Statistics() *Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := &Statistics{
		TotalEvents:      m.total,
		EventsByType:     make(map[EventType]int64),
		EventsByFlow:     make(map[string]int64),
		RejectionReasons: make(map[string]int64),
	}
	m.each(func(e *Event) bool {
		s.EventsByType[e.EventType]++
		s.EventsByFlow[e.Flow]++
		if e.Outcome == OutcomeRejected {
			s.RejectionReasons[e.Reason]++
		}
		return true
	})
	return s
}

// Len returns the number of retained events.
func (m *MemoryAuditAdapter) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.full {
		return len(m.events)
	}
	return m.next
}

// Clear drops all retained events.
func (m *MemoryAuditAdapter) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.events {
		m.events[i] = nil
	}
	m.next = 0
	m.full = false
}

// each walks retained events newest first until fn returns false.
// Callers hold m.mu.
func (m *MemoryAuditAdapter) each(fn func(*Event) bool) {
	n := m.next
	if m.full {
		n = len(m.events)
	}
	for i := 1; i <= n; i++ {
		idx := (m.next - i + len(m.events)) % len(m.events)
		if !fn(m.events[idx]) {
			return
		}
	}
}
