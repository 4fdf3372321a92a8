// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"

	"github.com/tidwall/jsonc"

	"github.com/chronik-dev/chronik/lib/schema"
)

// SaveAudit persists an audit snapshot and indexes it with an
// annotated tag. Empty AuditID, User, and CodeRef are filled in the
// same way RecordRun fills them. The completed audit is returned.
func (l *Ledger) SaveAudit(ctx context.Context, audit schema.Audit) (schema.Audit, error) {
	if err := audit.Validate(); err != nil {
		return schema.Audit{}, fmt.Errorf("invalid audit: %w", err)
	}
	l.fillIdentity(ctx, &audit.User, &audit.CodeRef)
	if audit.AuditID == "" {
		audit.AuditID = schema.NewRecordID("audit", audit.Title, l.clock.Now())
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = l.clock.Now()
	}
	audit.CardCount = len(audit.Cards)

	document, err := marshalDocument(audit)
	if err != nil {
		return schema.Audit{}, fmt.Errorf("encoding audit %s: %w", audit.AuditID, err)
	}
	auditPath := path.Join(auditsDir, audit.AuditID+".json")
	if err := l.tree.WriteFile(auditPath, document); err != nil {
		return schema.Audit{}, err
	}
	if err := l.tree.Commit(ctx, fmt.Sprintf("chronik: save audit %s", audit.AuditID), auditPath); err != nil {
		return schema.Audit{}, err
	}
	if err := l.tagIndex(ctx, auditTagPrefix+audit.AuditID, audit.IndexCopy()); err != nil {
		return schema.Audit{}, err
	}

	l.logger.Info("audit saved", "audit_id", audit.AuditID, "cards", audit.CardCount)
	return audit, nil
}

// ListAudits returns up to n audit snapshots from the tag index,
// newest first, skipping unparseable entries.
func (l *Ledger) ListAudits(ctx context.Context, n int) ([]schema.Audit, error) {
	entries, err := l.tree.ListTags(ctx, auditTagPrefix, n)
	if err != nil {
		return nil, err
	}
	audits := make([]schema.Audit, 0, len(entries))
	for _, entry := range entries {
		var audit schema.Audit
		if err := json.Unmarshal([]byte(entry.Message), &audit); err != nil || audit.AuditID == "" {
			l.logger.Warn("skipping unparseable audit index tag", "tag", entry.Name, "error", err)
			continue
		}
		audits = append(audits, audit)
	}
	return audits, nil
}

// GetAudit returns the full audit document, cards included. Unknown
// ids return ErrNotFound.
func (l *Ledger) GetAudit(ctx context.Context, auditID string) (schema.Audit, error) {
	data, err := l.tree.ReadFile(path.Join(auditsDir, auditID+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return schema.Audit{}, fmt.Errorf("audit %s: %w", auditID, ErrNotFound)
	}
	if err != nil {
		return schema.Audit{}, err
	}
	var audit schema.Audit
	if err := json.Unmarshal(data, &audit); err != nil {
		return schema.Audit{}, fmt.Errorf("parsing audit %s: %w", auditID, err)
	}
	return audit, nil
}

// DeleteAudit removes an audit snapshot's document and index tag.
// Deleting an unknown id returns ErrNotFound.
func (l *Ledger) DeleteAudit(ctx context.Context, auditID string) error {
	auditPath := path.Join(auditsDir, auditID+".json")
	if _, err := l.tree.ReadFile(auditPath); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("audit %s: %w", auditID, ErrNotFound)
	}
	if err := l.tree.Remove(auditPath); err != nil {
		return err
	}
	if err := l.tree.Commit(ctx, fmt.Sprintf("chronik: delete audit %s", auditID), auditPath); err != nil {
		return err
	}
	if err := l.tree.DeleteTag(ctx, auditTagPrefix+auditID); err != nil {
		return err
	}
	l.logger.Info("audit deleted", "audit_id", auditID)
	return nil
}

// ParseAuditCards reads audit cards from a JSON or JSONC file. Card
// files are written by hand during reviews, so comments and trailing
// commas are allowed; the file is translated to plain JSON before
// parsing. The file holds either a bare card array or an object with a
// "cards" field.
func ParseAuditCards(filePath string) ([]schema.AuditCard, error) {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	data := jsonc.ToJSON(raw)

	var cards []schema.AuditCard
	if err := json.Unmarshal(data, &cards); err == nil {
		return cards, nil
	}
	var wrapper struct {
		Cards []schema.AuditCard `json:"cards"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parsing audit cards from %s: %w", filePath, err)
	}
	return wrapper.Cards, nil
}
