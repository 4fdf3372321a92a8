// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"time"
)

// Run status values. A Run records one completed or attempted unit of
// automation; its status summarizes the outcome.
const (
	// StatusOK means the run completed successfully.
	StatusOK = "ok"

	// StatusFailed means the run did not complete.
	StatusFailed = "failed"

	// StatusPartial means the run completed some but not all of its
	// work (e.g. one module out of three failed).
	StatusPartial = "partial"
)

// Run is one completed/attempted unit of automation. Once a run_id is
// assigned it never changes, and a Run is immutable after being
// recorded — there is no update API.
type Run struct {
	// RunID is the generated identifier. Its timestamp prefix makes
	// lexicographic order match chronological order; its random
	// suffix keeps concurrent same-second runs distinct.
	RunID string `json:"run_id"`

	// Type is the kind of automation (e.g. "detect", "deploy").
	Type string `json:"type"`

	// Subtype further qualifies Type. Optional.
	Subtype string `json:"subtype,omitempty"`

	// Status is one of StatusOK, StatusFailed, StatusPartial.
	Status string `json:"status"`

	// User is the git identity that recorded the run. Filled from
	// repository configuration when absent.
	User string `json:"user,omitempty"`

	// CodeRef is the commit id of the *main* line at record time —
	// not the ledger branch. Filled from the primary working tree's
	// HEAD when absent.
	CodeRef string `json:"code_ref,omitempty"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`

	// DurationMS is the run's wall-clock duration in milliseconds.
	DurationMS int64 `json:"duration_ms"`

	// Environment names where the run executed (e.g. "local", "ci").
	Environment string `json:"environment,omitempty"`

	// ModulesAffected lists touched modules in order.
	ModulesAffected []string `json:"modules_affected,omitempty"`

	// Summary is a short human-readable description of the outcome.
	Summary string `json:"summary,omitempty"`

	// Metadata is an open key→value map. It is stored in the full
	// run document but omitted from the tag index for compactness.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Validate checks the fields a Run must carry before being recorded.
// RunID, User, and CodeRef may be empty — the ledger fills them.
func (r *Run) Validate() error {
	if r.Type == "" {
		return fmt.Errorf("run type is required")
	}
	switch r.Status {
	case StatusOK, StatusFailed, StatusPartial:
	default:
		return fmt.Errorf("run status %q must be one of %q, %q, %q",
			r.Status, StatusOK, StatusFailed, StatusPartial)
	}
	return nil
}

// IndexCopy returns a copy of the run suitable for the tag index: the
// bulky Metadata map is dropped so tag messages stay compact. The full
// document in the worktree retains everything.
func (r *Run) IndexCopy() Run {
	indexed := *r
	indexed.Metadata = nil
	return indexed
}

// RunEvent is a single fine-grained step inside a Run's execution.
// Events are owned by exactly one Run, persisted alongside it, and
// ordered by Seq.
type RunEvent struct {
	// Seq is monotonic within the run.
	Seq int `json:"seq"`

	TS time.Time `json:"ts"`

	// Type classifies the step (e.g. "adapter:call").
	Type string `json:"type"`

	// Adapter names the integration that performed the step.
	Adapter string `json:"adapter,omitempty"`

	// ActionID correlates the step with an external action.
	ActionID string `json:"action_id,omitempty"`

	// Target is the resource the step acted on.
	Target string `json:"target,omitempty"`

	Status     string `json:"status,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`

	// Detail is an open map of step-specific fields.
	Detail map[string]any `json:"detail,omitempty"`
}

// Completion is the explicit run-completion callback contract. The
// surrounding presentation layer constructs one from whatever response
// shape it has — the ledger never inspects transport responses.
type Completion struct {
	Status     string
	Summary    string
	DurationMS int64
}
