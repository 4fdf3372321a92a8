// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger persists runs, audits, and traces on the dedicated
// ledger branch and indexes them with annotated tags.
//
// Every record is written twice: a full JSON document in the branch's
// worktree (the source of truth) and a compact single-line JSON copy
// in an annotated tag message (the index). Listing reads only tags,
// sorted newest first by tag creation time, so it stays fast no matter
// how large the worktree grows. Lookups by id read the worktree
// document.
//
// Records are append-only. A recorded run is never modified;
// corrections are new runs. The one exception is deletion of audit
// snapshots, which removes both the document and its index tag.
package ledger
