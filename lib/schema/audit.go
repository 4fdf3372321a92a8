// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"time"
)

// Audit is a point-in-time snapshot of operational state: a titled
// collection of cards describing checks, findings, or inventory at the
// moment the snapshot was taken.
type Audit struct {
	// AuditID is the generated identifier, timestamp-prefixed like a
	// run id.
	AuditID string `json:"audit_id"`

	// Title is the operator-supplied snapshot label.
	Title string `json:"title"`

	CreatedAt time.Time `json:"created_at"`

	// User is the git identity that saved the snapshot.
	User string `json:"user,omitempty"`

	// CodeRef is the main line's HEAD commit at save time.
	CodeRef string `json:"code_ref,omitempty"`

	// Cards are the snapshot's content. Omitted from the tag index.
	Cards []AuditCard `json:"cards,omitempty"`

	// CardCount is retained in the index so listings can report size
	// without reading the worktree.
	CardCount int `json:"card_count"`
}

// AuditCard is one item inside an audit snapshot.
type AuditCard struct {
	// ID identifies the card within the snapshot.
	ID string `json:"id"`

	// Title is the card headline.
	Title string `json:"title"`

	// Status is a free-form state ("ok", "warning", "stale", ...).
	Status string `json:"status,omitempty"`

	// Detail is an open map of card-specific fields.
	Detail map[string]any `json:"detail,omitempty"`
}

// Validate checks the fields an Audit must carry before being saved.
// AuditID, User, and CodeRef may be empty — the ledger fills them.
func (a *Audit) Validate() error {
	if a.Title == "" {
		return fmt.Errorf("audit title is required")
	}
	return nil
}

// IndexCopy returns a copy suitable for the tag index: cards are
// dropped, their count retained.
func (a *Audit) IndexCopy() Audit {
	indexed := *a
	indexed.Cards = nil
	indexed.CardCount = len(a.Cards)
	return indexed
}
