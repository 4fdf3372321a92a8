// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the durable record types of the Chronik
// ledger: runs (units of automation), run events (fine-grained steps
// inside a run), session traces (captured windows of live bus
// activity), and audit snapshots.
//
// All records serialize as snake_case JSON. Run and trace documents
// are written indented with a trailing newline; their event companions
// are newline-delimited JSON. Records are append-only: a Run is
// immutable once recorded, and corrections are new Runs.
package schema
