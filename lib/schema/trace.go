// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"time"
)

// TraceEvent result values. The empty string means the outcome could
// not be derived from the captured bus event.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// SessionTrace is a durable capture of a bounded window of event bus
// activity. It is created at recording start, mutated only by the
// recorder while active, frozen at stop, then persisted.
type SessionTrace struct {
	TraceID string `json:"trace_id"`

	// Name is the operator-supplied label for the recording.
	Name string `json:"name"`

	// Classification is a free-form category (e.g. "incident",
	// "demo", "regression").
	Classification string `json:"classification,omitempty"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`

	// User and CodeRef are captured at recording start: the git
	// identity and the main line's HEAD commit at that instant.
	User    string `json:"user,omitempty"`
	CodeRef string `json:"code_ref,omitempty"`

	// AutoSummary is deterministic derived text describing the
	// captured events.
	AutoSummary string `json:"auto_summary,omitempty"`

	// AuditRefs links related audit snapshot ids.
	AuditRefs []string `json:"audit_refs,omitempty"`

	// EventCount is the number of retained trace events. The events
	// themselves live in a companion file so listing stays cheap.
	EventCount int `json:"event_count"`

	// DurationS is the recording's wall-clock length in seconds.
	DurationS float64 `json:"duration_s"`

	// Shared is true when the trace is committed to the ledger
	// branch, false when it exists only in the local checkout.
	// Flipping shared back to false does not purge already-pushed
	// history — anyone who pulled the branch retains the data.
	Shared bool `json:"shared"`

	// EventsDigest is the hex BLAKE3 keyed digest of the companion
	// events file, used to verify export bundles.
	EventsDigest string `json:"events_digest,omitempty"`
}

// Validate checks the fields a SessionTrace must carry.
func (s *SessionTrace) Validate() error {
	if s.TraceID == "" {
		return fmt.Errorf("trace_id is required")
	}
	if s.Name == "" {
		return fmt.Errorf("trace name is required")
	}
	return nil
}

// TraceEvent is one bus event translated into trace vocabulary.
type TraceEvent struct {
	// Seq is the bus-global sequence number the event carried.
	Seq uint64 `json:"seq"`

	TS time.Time `json:"ts"`

	// Type is the bus event type ("<domain>:<action>").
	Type string `json:"type"`

	// Key is the resource identifier, possibly empty.
	Key string `json:"key,omitempty"`

	// Target is the trace-level resource name (the bus event's key).
	Target string `json:"target,omitempty"`

	// Result is ResultOK, ResultFailed, or "" when unknown.
	Result string `json:"result,omitempty"`

	DurationMS int64 `json:"duration_ms,omitempty"`

	// Detail carries the bus event's data payload.
	Detail map[string]any `json:"detail,omitempty"`
}
