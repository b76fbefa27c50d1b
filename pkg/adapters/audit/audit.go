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
	"time"
)

// EventType identifies what was decided.
type EventType string

const (
	// EventVisaAccepted is recorded for each visa that verified and decoded.
	EventVisaAccepted EventType = "visa.accepted"

	// EventVisaRejected is recorded for each visa that was dropped.
	EventVisaRejected EventType = "visa.rejected"
)

// EventOutcome is the result of a decision.
type EventOutcome string

const (
	OutcomeAccepted EventOutcome = "accepted"
	OutcomeRejected EventOutcome = "rejected"
)

// Event is a single visa decision.
type Event struct {
	// ID is assigned by the adapter when empty.
	ID string `json:"id"`

	// Timestamp is assigned by the adapter when zero.
	Timestamp time.Time `json:"timestamp"`

	EventType EventType    `json:"event_type"`
	Outcome   EventOutcome `json:"outcome"`

	// Flow is the retrieval flow that produced the visa token.
	Flow string `json:"flow"`

	// Subject, VisaType, Value and Source are only set for accepted visas.
	Subject  string `json:"subject,omitempty"`
	VisaType string `json:"visa_type,omitempty"`
	Value    string `json:"value,omitempty"`
	Source   string `json:"source,omitempty"`

	// KeyID and JWKSURL come from the token header when it is readable.
	KeyID   string `json:"kid,omitempty"`
	JWKSURL string `json:"jku,omitempty"`

	// Reason is the rejection category; Error carries the detail.
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`

	CorrelationID string `json:"correlation_id,omitempty"`
}

// AuditAdapter records visa decisions.
//
// Record must be safe for concurrent use and should not block on slow
// sinks; the verifier calls it inline for every visa.
type AuditAdapter interface {
	Record(ctx context.Context, event *Event) error
}

// EventQuery filters recorded events. Zero values match everything.
type EventQuery struct {
	EventTypes []EventType
	Flow       string
	Subject    string
	Reason     string

	// StartTime and EndTime bound the event timestamp, inclusive.
	StartTime *time.Time
	EndTime   *time.Time

	// Limit caps the number of results, newest first.
	Limit int
}

// Matches reports whether e satisfies the query.
func (q *EventQuery) Matches(e *Event) bool {
	if q == nil {
		return true
	}
	if len(q.EventTypes) > 0 {
		found := false
		for _, t := range q.EventTypes {
			if e.EventType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Flow != "" && e.Flow != q.Flow {
		return false
	}
	if q.Subject != "" && e.Subject != q.Subject {
		return false
	}
	if q.Reason != "" && e.Reason != q.Reason {
		return false
	}
	if q.StartTime != nil && e.Timestamp.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && e.Timestamp.After(*q.EndTime) {
		return false
	}
	return true
}

// Statistics summarizes recorded events.
type Statistics struct {
	TotalEvents      int64
	EventsByType     map[EventType]int64
	EventsByFlow     map[string]int64
	RejectionReasons map[string]int64
}

// NoOpAuditAdapter discards every event.
type NoOpAuditAdapter struct{}

// NewNoOpAuditAdapter returns an adapter that records nothing.
func NewNoOpAuditAdapter() *NoOpAuditAdapter { return &NoOpAuditAdapter{} }

// Record implements AuditAdapter.
func (*NoOpAuditAdapter) Record(context.Context, *Event) error { return nil }
