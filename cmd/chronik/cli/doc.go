// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command tree framework for the chronik
// binary: declarative Command structs with pflag flag sets, structured
// help output, typo suggestions for unknown commands and flags, and
// shared output helpers (JSON emission, exit codes, command loggers).
package cli
