// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/chronik-dev/chronik/lib/schema"
)

func sampleAudit() schema.Audit {
	return schema.Audit{
		Title: "quarterly access review",
		Cards: []schema.AuditCard{
			{ID: "iam-keys", Title: "IAM key rotation", Status: "ok"},
			{ID: "stale-users", Title: "Stale user accounts", Status: "warning",
				Detail: map[string]any{"count": 3}},
		},
	}
}

func TestAuditLifecycle(t *testing.T) {
	t.Parallel()
	dir, ledger := newTestLedger(t)
	ctx := context.Background()

	saved, err := ledger.SaveAudit(ctx, sampleAudit())
	if err != nil {
		t.Fatalf("SaveAudit: %v", err)
	}
	if saved.AuditID == "" || saved.User == "" || saved.CodeRef == "" {
		t.Errorf("audit not filled: %+v", saved)
	}
	if saved.CardCount != 2 {
		t.Errorf("card count = %d, want 2", saved.CardCount)
	}
	// Audit documents sit at the checkout root, not under ledger/.
	if _, err := os.Stat(filepath.Join(dir, ".chronik", "audits", saved.AuditID+".json")); err != nil {
		t.Errorf("audit document not at audits/<id>.json: %v", err)
	}

	listed, err := ledger.ListAudits(ctx, 10)
	if err != nil {
		t.Fatalf("ListAudits: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("listed %d audits, want 1", len(listed))
	}
	// The index keeps the count but not the cards themselves.
	if listed[0].Cards != nil {
		t.Errorf("index entry carries cards: %+v", listed[0].Cards)
	}
	if listed[0].CardCount != 2 {
		t.Errorf("index card count = %d, want 2", listed[0].CardCount)
	}

	fetched, err := ledger.GetAudit(ctx, saved.AuditID)
	if err != nil {
		t.Fatalf("GetAudit: %v", err)
	}
	if len(fetched.Cards) != 2 || fetched.Cards[1].Status != "warning" {
		t.Errorf("fetched cards = %+v", fetched.Cards)
	}

	if err := ledger.DeleteAudit(ctx, saved.AuditID); err != nil {
		t.Fatalf("DeleteAudit: %v", err)
	}
	if _, err := ledger.GetAudit(ctx, saved.AuditID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetAudit after delete = %v, want ErrNotFound", err)
	}
	listed, err = ledger.ListAudits(ctx, 10)
	if err != nil {
		t.Fatalf("ListAudits after delete: %v", err)
	}
	if len(listed) != 0 {
		t.Errorf("listed %d audits after delete, want 0", len(listed))
	}
}

func TestDeleteAuditUnknown(t *testing.T) {
	t.Parallel()
	_, ledger := newTestLedger(t)
	err := ledger.DeleteAudit(context.Background(), "audit_20260101T000000Z_ghost_0000")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestParseAuditCardsAcceptsJSONC(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cards.jsonc")
	content := `[
	// rotation checked by hand on 2026-02-01
	{
		"id": "iam-keys",
		"title": "IAM key rotation",
		"status": "ok", // trailing comma below is fine too
	},
]`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cards, err := ParseAuditCards(path)
	if err != nil {
		t.Fatalf("ParseAuditCards: %v", err)
	}
	if len(cards) != 1 || cards[0].ID != "iam-keys" {
		t.Fatalf("cards = %+v", cards)
	}
}

func TestParseAuditCardsAcceptsWrapperObject(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cards.json")
	content := `{"cards": [{"id": "a", "title": "A"}, {"id": "b", "title": "B"}]}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cards, err := ParseAuditCards(path)
	if err != nil {
		t.Fatalf("ParseAuditCards: %v", err)
	}
	if len(cards) != 2 || cards[1].ID != "b" {
		t.Fatalf("cards = %+v", cards)
	}
}
