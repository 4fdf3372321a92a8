// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package eventbus

import (
	"strings"
	"time"
)

// SchemaVersion is stamped on every event so persisted captures can be
// interpreted after the event shape evolves.
const SchemaVersion = 1

// Control event types synthesized by the bus itself. They carry
// connection lifecycle state, not domain activity, so recorders and
// dashboards filter them out of durable captures.
const (
	// TypeReady is the first event every subscriber receives. Its
	// Meta carries the bus instance id and the latest sequence.
	TypeReady = "state:ready"

	// TypeSnapshot delivers the full latest-state map to subscribers
	// whose catch-up window cannot be replayed.
	TypeSnapshot = "state:snapshot"

	// TypeHeartbeat is published when the bus has been idle for the
	// heartbeat interval, so consumers can distinguish "quiet" from
	// "disconnected".
	TypeHeartbeat = "state:heartbeat"
)

// Type suffixes with bus-level meaning.
const (
	// doneSuffix marks a completion event. A keyed completion updates
	// the latest-state map.
	doneSuffix = ":done"

	// bustSuffix marks a cache invalidation. Its data "scope" field is
	// either "all" or a comma-separated key list.
	bustSuffix = ":bust"
)

// Event is one message on the bus. Domain packages publish events with
// Type, Key, and payload fields set; the bus stamps SchemaVersion, TS,
// and Seq at publish time.
type Event struct {
	SchemaVersion int `json:"schema_version"`

	TS time.Time `json:"ts"`

	// Seq is the bus-global monotonic sequence number, starting at 1.
	Seq uint64 `json:"seq"`

	// Type is "<domain>:<action>", e.g. "cache:refresh:done".
	Type string `json:"type"`

	// Key identifies the resource the event concerns. Optional.
	Key string `json:"key,omitempty"`

	// Data is the event payload.
	Data map[string]any `json:"data,omitempty"`

	// Error is a human-readable failure description. Non-empty Error
	// marks the event as failed regardless of Data.
	Error string `json:"error,omitempty"`

	// DurationS is how long the underlying operation took, in seconds.
	DurationS float64 `json:"duration_s,omitempty"`

	// Meta carries bus bookkeeping (instance id, replay markers). It
	// is never interpreted by domain code.
	Meta map[string]any `json:"meta,omitempty"`
}

// IsControl reports whether the event type is bus-internal lifecycle
// state rather than domain activity.
func IsControl(eventType string) bool {
	switch eventType {
	case TypeReady, TypeSnapshot, TypeHeartbeat:
		return true
	}
	return false
}

// IsCompletion reports whether the event type marks a completed
// operation.
func IsCompletion(eventType string) bool {
	return strings.HasSuffix(eventType, doneSuffix)
}

// isBust reports whether the event type is a cache invalidation.
func isBust(eventType string) bool {
	return strings.HasSuffix(eventType, bustSuffix)
}

// bustScope returns the keys a bust event invalidates. The second
// return value is true when the whole latest-state map is cleared.
func bustScope(event Event) (keys []string, all bool) {
	scope, _ := event.Data["scope"].(string)
	if scope == "" || scope == "all" {
		return nil, true
	}
	for _, key := range strings.Split(scope, ",") {
		key = strings.TrimSpace(key)
		if key != "" {
			keys = append(keys, key)
		}
	}
	return keys, false
}
