// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

// Package trace captures bounded windows of live event bus activity
// as durable session traces.
//
// A Recorder attaches to the bus as a listener, translates domain
// events into trace vocabulary (bus control events are discarded),
// and on stop derives a deterministic summary and persists the trace
// through a Store. Traces start private: the files exist only in the
// local ledger checkout. Sharing commits them to the ledger branch;
// unsharing flips the metadata back but deliberately does not rewrite
// branch history, since anyone who pulled in the meantime has the data
// anyway.
//
// Traces can be exported as standalone bundles: deterministic CBOR,
// zstd-compressed, with a keyed BLAKE3 digest over the events so a
// recipient can verify the capture was not altered in transit.
package trace
