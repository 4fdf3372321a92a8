// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

// Package eventbus implements Chronik's in-process publish/subscribe
// hub with bounded replay.
//
// Every published event is stamped with a bus-global monotonic
// sequence number and retained in a fixed-size replay buffer. A
// subscriber that reconnects with the last sequence it saw gets the
// missed events replayed, exactly once and in order, provided they are
// still retained and fit its delivery queue; otherwise it receives a
// state snapshot and resumes live from there. Delivery never blocks a
// publisher: a subscriber that cannot keep up is disconnected rather
// than slowing the bus.
//
// The bus also maintains a "latest state" map keyed by resource:
// completion events (type suffix ":done") update it, invalidation
// events (suffix ":bust") clear it, and Snapshot exposes it with
// per-entry ages so late joiners can rebuild state without replay.
//
// A Bus is constructed explicitly and carries a unique instance id.
// There is no package-level singleton: tests and embedders run as many
// independent buses as they like.
package eventbus
