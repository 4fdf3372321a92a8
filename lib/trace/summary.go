// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"fmt"
	"strings"
	"time"

	"github.com/chronik-dev/chronik/lib/schema"
)

// eventLabels maps event domains (the segment before the first colon)
// to human nouns for summaries. Domains without an entry fall back to
// "<domain> event(s)".
var eventLabels = map[string]struct{ singular, plural string }{
	"cache":  {"cache refresh", "cache refreshes"},
	"deploy": {"deployment", "deployments"},
	"detect": {"detection run", "detection runs"},
	"sync":   {"sync operation", "sync operations"},
	"audit":  {"audit check", "audit checks"},
}

// Summarize derives a one-line description of a capture. The output
// is deterministic for a given event slice: domains ordered by
// descending count with ties broken by first appearance, followed by
// the total captured duration when any event carried one.
//
//	"3 cache refreshes, 1 deployment, 3.0s total"
func Summarize(events []schema.TraceEvent) string {
	if len(events) == 0 {
		return "no events captured"
	}

	counts := make(map[string]int)
	var order []string
	var totalMS int64
	for _, event := range events {
		domain := event.Type
		if i := strings.Index(domain, ":"); i >= 0 {
			domain = domain[:i]
		}
		if counts[domain] == 0 {
			order = append(order, domain)
		}
		counts[domain]++
		totalMS += event.DurationMS
	}

	// Stable sort keeps first-appearance order among equal counts.
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && counts[order[j]] > counts[order[j-1]]; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}

	parts := make([]string, 0, len(order)+1)
	for _, domain := range order {
		parts = append(parts, fmt.Sprintf("%d %s", counts[domain], label(domain, counts[domain])))
	}
	if totalMS > 0 {
		parts = append(parts, formatDuration(totalMS)+" total")
	}
	return strings.Join(parts, ", ")
}

func label(domain string, count int) string {
	if entry, ok := eventLabels[domain]; ok {
		if count == 1 {
			return entry.singular
		}
		return entry.plural
	}
	if count == 1 {
		return domain + " event"
	}
	return domain + " events"
}

// formatDuration buckets a millisecond total into the unit a human
// would reach for: milliseconds under a second, one-decimal seconds
// under a minute, one-decimal minutes beyond.
func formatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", ms)
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
}
