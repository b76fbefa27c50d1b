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


/*
Package audit records visa accept and reject decisions.

Every visa the clearinghouse examines produces one Event: EventVisaAccepted
with the decoded subject, type, value and source, or EventVisaRejected with
the rejection reason and the key reference from the token header. Events
carry the correlation ID of the request that produced them.

# Implementations

NoOpAuditAdapter discards events and is the default.

MemoryAuditAdapter keeps the most recent events in a fixed-size ring and
supports filtering with EventQuery and aggregation with Statistics. Events
are lost on restart.

Applications that need durable trails implement AuditAdapter themselves
and pass it with clearinghouse.WithAuditor.

# Usage

	trail := audit.NewMemoryAuditAdapter(4096)
	ch, err := clearinghouse.New(clearinghouse.WithAuditor(trail))
	...
	rejected := trail.Events(&audit.EventQuery{
		EventTypes: []audit.EventType{audit.EventVisaRejected},
	})
*/
package audit
