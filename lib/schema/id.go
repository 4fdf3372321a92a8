// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewRecordID builds a sortable record id: kind prefix, UTC
// timestamp, sanitized label, and a short random suffix to keep
// concurrent same-second records distinct. The timestamp prefix makes
// lexicographic order match chronological order.
//
//	run_20260210T090000Z_detect_3f2a
func NewRecordID(kind, label string, now time.Time) string {
	stamp := now.UTC().Format("20060102T150405Z")
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	return fmt.Sprintf("%s_%s_%s_%s", kind, stamp, SanitizeLabel(label), suffix)
}

// SanitizeLabel lowercases a label and replaces anything outside
// [a-z0-9-] so ids stay safe as path segments and tag names.
func SanitizeLabel(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "record"
	}
	return b.String()
}
