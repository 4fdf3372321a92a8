// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

// Package worktree manages the dedicated ledger branch and its
// isolated secondary checkout inside the host project's repository.
//
// The ledger branch is an orphan: its root commit has no parent, so
// ledger data shares no history with the project's main line. The
// branch is checked out into a secondary worktree directory (by
// default .chronik/ under the repository root) which is excluded from
// the main line's own version control via .git/info/exclude, so ledger
// writes never show up as dirty state on the primary branch.
//
// Manager provides the low-level primitives the ledger builds on:
// idempotent setup (Ensure), atomic file writes, commits, annotated
// tags, and push/pull synchronization. All mutating operations
// serialize on an advisory file lock in the repository's git
// directory, so concurrent writers — including separate processes
// sharing one repository — queue rather than interleave git
// subprocess invocations.
package worktree
