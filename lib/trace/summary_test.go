// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"testing"

	"github.com/chronik-dev/chronik/lib/schema"
)

func TestSummarizeEmpty(t *testing.T) {
	t.Parallel()
	if got := Summarize(nil); got != "no events captured" {
		t.Errorf("Summarize(nil) = %q", got)
	}
}

func TestSummarizeCacheRefreshes(t *testing.T) {
	t.Parallel()
	events := []schema.TraceEvent{
		{Type: "cache:refresh:done", DurationMS: 1000},
		{Type: "cache:refresh:done", DurationMS: 1000},
		{Type: "cache:refresh:done", DurationMS: 1000},
	}
	if got := Summarize(events); got != "3 cache refreshes, 3.0s total" {
		t.Errorf("Summarize = %q, want %q", got, "3 cache refreshes, 3.0s total")
	}
}

func TestSummarizeOrdersByCountThenFirstSeen(t *testing.T) {
	t.Parallel()
	events := []schema.TraceEvent{
		{Type: "deploy:start"},
		{Type: "cache:refresh:done"},
		{Type: "cache:refresh:done"},
		{Type: "sync:push:done"},
	}
	// cache leads on count; deploy and sync tie and keep appearance
	// order.
	want := "2 cache refreshes, 1 deployment, 1 sync operation"
	if got := Summarize(events); got != want {
		t.Errorf("Summarize = %q, want %q", got, want)
	}
}

func TestSummarizeUnknownDomainFallback(t *testing.T) {
	t.Parallel()
	events := []schema.TraceEvent{
		{Type: "billing:invoice:done"},
		{Type: "billing:invoice:done"},
	}
	if got := Summarize(events); got != "2 billing events" {
		t.Errorf("Summarize = %q", got)
	}
	if got := Summarize(events[:1]); got != "1 billing event" {
		t.Errorf("singular Summarize = %q", got)
	}
}

func TestSummarizeDurationBuckets(t *testing.T) {
	t.Parallel()
	cases := []struct {
		ms   int64
		want string
	}{
		{500, "1 cache refresh, 500ms total"},
		{59_400, "1 cache refresh, 59.4s total"},
		{150_000, "1 cache refresh, 2.5m total"},
	}
	for _, c := range cases {
		events := []schema.TraceEvent{{Type: "cache:refresh:done", DurationMS: c.ms}}
		if got := Summarize(events); got != c.want {
			t.Errorf("Summarize(%dms) = %q, want %q", c.ms, got, c.want)
		}
	}
}

func TestSummarizeNoDurationsOmitsTotal(t *testing.T) {
	t.Parallel()
	events := []schema.TraceEvent{{Type: "cache:refresh:done"}}
	if got := Summarize(events); got != "1 cache refresh" {
		t.Errorf("Summarize = %q", got)
	}
}
