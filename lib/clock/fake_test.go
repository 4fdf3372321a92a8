// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFake_AfterFiresOnAdvance(t *testing.T) {
	t.Parallel()

	fake := NewFake()
	ch := fake.After(10 * time.Second)

	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	fake.Advance(9 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before its deadline")
	default:
	}

	fake.Advance(1 * time.Second)
	select {
	case <-ch:
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestFake_AfterNonPositiveFiresImmediately(t *testing.T) {
	t.Parallel()

	fake := NewFake()
	select {
	case <-fake.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestFake_NowAdvances(t *testing.T) {
	t.Parallel()

	fake := NewFake()
	start := fake.Now()
	fake.Advance(90 * time.Second)
	if got := fake.Now().Sub(start); got != 90*time.Second {
		t.Errorf("Now advanced by %v, want 90s", got)
	}
}
