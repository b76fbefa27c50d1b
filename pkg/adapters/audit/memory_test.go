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
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jeremyhahn/go-clearinghouse/pkg/correlation"
)

func TestMemoryAuditAdapter_Record(t *testing.T) {
	adapter := NewMemoryAuditAdapter(4)
	ctx := correlation.WithCorrelationID(context.Background(), "req-1")

	event := &Event{
		EventType: EventVisaAccepted,
		Outcome:   OutcomeAccepted,
		Flow:      "discovery",
		Subject:   "alice",
		VisaType:  "AffiliationAndRole",
	}
	if err := adapter.Record(ctx, event); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if event.ID == "" {
		t.Error("Event ID was not generated")
	}
	if event.Timestamp.IsZero() {
		t.Error("Event timestamp was not set")
	}
	if event.CorrelationID != "req-1" {
		t.Errorf("CorrelationID = %q, want req-1", event.CorrelationID)
	}

	t.Run("NilEvent", func(t *testing.T) {
		if err := adapter.Record(ctx, nil); err != ErrNilEvent {
			t.Errorf("Record(nil) = %v, want ErrNilEvent", err)
		}
	})

	t.Run("StoresCopy", func(t *testing.T) {
		event.Subject = "mallory"
		got := adapter.Events(nil)
		if len(got) != 1 || got[0].Subject != "alice" {
			t.Fatalf("stored event mutated: %+v", got)
		}
		got[0].Subject = "bob"
		if adapter.Events(nil)[0].Subject != "alice" {
			t.Error("Events returned a shared pointer")
		}
	})
}

func TestMemoryAuditAdapter_Ring(t *testing.T) {
	adapter := NewMemoryAuditAdapter(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = adapter.Record(ctx, &Event{EventType: EventVisaAccepted, Subject: fmt.Sprintf("user-%d", i)})
	}

	if adapter.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", adapter.Len())
	}
	got := adapter.Events(nil)
	want := []string{"user-4", "user-3", "user-2"}
	for i, e := range got {
		if e.Subject != want[i] {
			t.Errorf("event %d subject = %q, want %q", i, e.Subject, want[i])
		}
	}
	if s := adapter.Statistics(); s.TotalEvents != 5 {
		t.Errorf("TotalEvents = %d, want 5", s.TotalEvents)
	}

	adapter.Clear()
	if adapter.Len() != 0 || len(adapter.Events(nil)) != 0 {
		t.Error("Clear did not drop events")
	}
}

func TestMemoryAuditAdapter_DefaultCapacity(t *testing.T) {
	adapter := NewMemoryAuditAdapter(0)
	if len(adapter.events) != DefaultCapacity {
		t.Errorf("capacity = %d, want %d", len(adapter.events), DefaultCapacity)
	}
}

func TestMemoryAuditAdapter_Events(t *testing.T) {
	adapter := NewMemoryAuditAdapter(16)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	events := []*Event{
		{EventType: EventVisaAccepted, Outcome: OutcomeAccepted, Flow: "discovery", Subject: "alice", Timestamp: base},
		{EventType: EventVisaRejected, Outcome: OutcomeRejected, Flow: "discovery", Reason: "expired", Timestamp: base.Add(time.Minute)},
		{EventType: EventVisaRejected, Outcome: OutcomeRejected, Flow: "opaque", Reason: "signature", Timestamp: base.Add(2 * time.Minute)},
		{EventType: EventVisaAccepted, Outcome: OutcomeAccepted, Flow: "single", Subject: "bob", Timestamp: base.Add(3 * time.Minute)},
	}
	for _, e := range events {
		if err := adapter.Record(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	start := base.Add(time.Minute)
	end := base.Add(2 * time.Minute)

	tests := []struct {
		name  string
		query *EventQuery
		want  int
	}{
		{"All", nil, 4},
		{"Empty", &EventQuery{}, 4},
		{"ByType", &EventQuery{EventTypes: []EventType{EventVisaRejected}}, 2},
		{"ByFlow", &EventQuery{Flow: "discovery"}, 2},
		{"BySubject", &EventQuery{Subject: "bob"}, 1},
		{"ByReason", &EventQuery{Reason: "expired"}, 1},
		{"ByTime", &EventQuery{StartTime: &start, EndTime: &end}, 2},
		{"Limit", &EventQuery{Limit: 3}, 3},
		{"NoMatch", &EventQuery{Flow: "none"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := adapter.Events(tt.query); len(got) != tt.want {
				t.Errorf("Events() returned %d events, want %d", len(got), tt.want)
			}
		})
	}

	t.Run("NewestFirst", func(t *testing.T) {
		got := adapter.Events(&EventQuery{Limit: 1})
		if got[0].Subject != "bob" {
			t.Errorf("first event subject = %q, want bob", got[0].Subject)
		}
	})
}

func TestMemoryAuditAdapter_Statistics(t *testing.T) {
	adapter := NewMemoryAuditAdapter(8)
	ctx := context.Background()

	_ = adapter.Record(ctx, &Event{EventType: EventVisaAccepted, Outcome: OutcomeAccepted, Flow: "discovery"})
	_ = adapter.Record(ctx, &Event{EventType: EventVisaRejected, Outcome: OutcomeRejected, Flow: "discovery", Reason: "expired"})
	_ = adapter.Record(ctx, &Event{EventType: EventVisaRejected, Outcome: OutcomeRejected, Flow: "opaque", Reason: "expired"})

	s := adapter.Statistics()
	if s.TotalEvents != 3 {
		t.Errorf("TotalEvents = %d, want 3", s.TotalEvents)
	}
	if s.EventsByType[EventVisaRejected] != 2 {
		t.Errorf("rejected = %d, want 2", s.EventsByType[EventVisaRejected])
	}
	if s.EventsByFlow["discovery"] != 2 {
		t.Errorf("discovery = %d, want 2", s.EventsByFlow["discovery"])
	}
	if s.RejectionReasons["expired"] != 2 {
		t.Errorf("expired = %d, want 2", s.RejectionReasons["expired"])
	}
}

func TestMemoryAuditAdapter_Concurrent(t *testing.T) {
	adapter := NewMemoryAuditAdapter(64)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = adapter.Record(ctx, &Event{EventType: EventVisaAccepted})
				_ = adapter.Events(&EventQuery{Limit: 5})
			}
		}()
	}
	wg.Wait()

	if s := adapter.Statistics(); s.TotalEvents != 200 {
		t.Errorf("TotalEvents = %d, want 200", s.TotalEvents)
	}
	if adapter.Len() != 64 {
		t.Errorf("Len() = %d, want 64", adapter.Len())
	}
}

func TestNoOpAuditAdapter(t *testing.T) {
	var a AuditAdapter = NewNoOpAuditAdapter()
	if err := a.Record(context.Background(), &Event{}); err != nil {
		t.Errorf("Record() = %v", err)
	}
}
