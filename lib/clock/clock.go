// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock parameter instead of calling time.Now
// or time.After directly. In production, Real() provides standard
// library behavior. In tests, NewFake() provides a deterministic clock
// that advances only when Advance is called, so heartbeat and
// snapshot-age behavior can be tested without sleeping.
package clock

import "time"

// Clock abstracts the time operations the ledger and event bus need.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once
	// duration d has elapsed. Equivalent to time.After.
	After(d time.Duration) <-chan time.Time
}
