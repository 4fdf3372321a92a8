// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"

	"github.com/chronik-dev/chronik/lib/clock"
	"github.com/chronik-dev/chronik/lib/schema"
	"github.com/chronik-dev/chronik/lib/worktree"
)

// ErrNotFound is returned when a trace id has no document in the
// ledger checkout. Check with errors.Is.
var ErrNotFound = errors.New("trace not found")

// tracesDir is the trace area of the ledger checkout.
const tracesDir = "ledger/traces"

// StoreOptions configures a Store.
type StoreOptions struct {
	Clock  clock.Clock
	Logger *slog.Logger
}

// Store persists session traces in the ledger checkout. Unshared
// traces live only as local files; shared traces are committed to the
// ledger branch.
type Store struct {
	tree   *worktree.Manager
	clock  clock.Clock
	logger *slog.Logger
}

// NewStore returns a Store writing under the given worktree manager.
func NewStore(tree *worktree.Manager, opts StoreOptions) *Store {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Store{tree: tree, clock: opts.Clock, logger: opts.Logger}
}

func tracePath(traceID string) string {
	return path.Join(tracesDir, traceID, "trace.json")
}

func eventsPath(traceID string) string {
	return path.Join(tracesDir, traceID, "events.jsonl")
}

// Save writes a trace and its events to the local checkout without
// committing. The events digest is computed here so every later
// export verifies against the bytes as originally captured.
func (s *Store) Save(trace schema.SessionTrace, events []schema.TraceEvent) (schema.SessionTrace, error) {
	if err := trace.Validate(); err != nil {
		return schema.SessionTrace{}, fmt.Errorf("invalid trace: %w", err)
	}
	trace.EventCount = len(events)

	lines, err := eventsJSONL(events)
	if err != nil {
		return schema.SessionTrace{}, fmt.Errorf("encoding events for %s: %w", trace.TraceID, err)
	}
	trace.EventsDigest = digestEvents(lines)

	if err := s.tree.WriteFile(eventsPath(trace.TraceID), lines); err != nil {
		return schema.SessionTrace{}, err
	}
	if err := s.writeDocument(trace); err != nil {
		return schema.SessionTrace{}, err
	}
	return trace, nil
}

// Get returns a trace's metadata document.
func (s *Store) Get(traceID string) (schema.SessionTrace, error) {
	data, err := s.tree.ReadFile(tracePath(traceID))
	if errors.Is(err, fs.ErrNotExist) {
		return schema.SessionTrace{}, fmt.Errorf("%s: %w", traceID, ErrNotFound)
	}
	if err != nil {
		return schema.SessionTrace{}, err
	}
	var trace schema.SessionTrace
	if err := json.Unmarshal(data, &trace); err != nil {
		return schema.SessionTrace{}, fmt.Errorf("parsing trace %s: %w", traceID, err)
	}
	return trace, nil
}

// Events returns a trace's captured events in sequence order.
func (s *Store) Events(traceID string) ([]schema.TraceEvent, error) {
	if _, err := s.Get(traceID); err != nil {
		return nil, err
	}
	data, err := s.tree.ReadFile(eventsPath(traceID))
	if errors.Is(err, fs.ErrNotExist) {
		return []schema.TraceEvent{}, nil
	}
	if err != nil {
		return nil, err
	}

	var events []schema.TraceEvent
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var event schema.TraceEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("parsing events for %s: %w", traceID, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading events for %s: %w", traceID, err)
	}
	return events, nil
}

// List returns all traces, newest first by start time. Unparseable
// documents are skipped with a warning.
func (s *Store) List() ([]schema.SessionTrace, error) {
	ids, err := s.tree.ListDir(tracesDir)
	if err != nil {
		return nil, err
	}
	traces := make([]schema.SessionTrace, 0, len(ids))
	for _, id := range ids {
		trace, err := s.Get(id)
		if err != nil {
			s.logger.Warn("skipping unparseable trace", "trace_id", id, "error", err)
			continue
		}
		traces = append(traces, trace)
	}
	sort.Slice(traces, func(i, j int) bool {
		return traces[i].StartedAt.After(traces[j].StartedAt)
	})
	return traces, nil
}

// Share marks a trace shared and commits both its files to the ledger
// branch. Sharing an already-shared trace is a no-op commit.
func (s *Store) Share(ctx context.Context, traceID string) (schema.SessionTrace, error) {
	trace, err := s.Get(traceID)
	if err != nil {
		return schema.SessionTrace{}, err
	}
	trace.Shared = true
	if err := s.writeDocument(trace); err != nil {
		return schema.SessionTrace{}, err
	}
	message := fmt.Sprintf("chronik: share trace %s", traceID)
	if err := s.tree.Commit(ctx, message, path.Join(tracesDir, traceID)); err != nil {
		return schema.SessionTrace{}, err
	}
	s.logger.Info("trace shared", "trace_id", traceID)
	return trace, nil
}

// Unshare flips a trace back to private and commits only the metadata
// document. Already-committed events stay in branch history: unsharing
// stops advertising the trace but cannot recall data from anyone who
// pulled it.
func (s *Store) Unshare(ctx context.Context, traceID string) (schema.SessionTrace, error) {
	trace, err := s.Get(traceID)
	if err != nil {
		return schema.SessionTrace{}, err
	}
	trace.Shared = false
	if err := s.writeDocument(trace); err != nil {
		return schema.SessionTrace{}, err
	}
	message := fmt.Sprintf("chronik: unshare trace %s", traceID)
	if err := s.tree.Commit(ctx, message, tracePath(traceID)); err != nil {
		return schema.SessionTrace{}, err
	}
	s.logger.Info("trace unshared", "trace_id", traceID)
	return trace, nil
}

// Update applies a metadata mutation to a trace. Immutable fields
// (id, digest, event count) are restored after the mutation. Shared
// traces get the change committed.
func (s *Store) Update(ctx context.Context, traceID string, mutate func(*schema.SessionTrace)) (schema.SessionTrace, error) {
	trace, err := s.Get(traceID)
	if err != nil {
		return schema.SessionTrace{}, err
	}
	id, digest, count := trace.TraceID, trace.EventsDigest, trace.EventCount
	mutate(&trace)
	trace.TraceID, trace.EventsDigest, trace.EventCount = id, digest, count

	if err := trace.Validate(); err != nil {
		return schema.SessionTrace{}, fmt.Errorf("invalid trace update: %w", err)
	}
	if err := s.writeDocument(trace); err != nil {
		return schema.SessionTrace{}, err
	}
	if trace.Shared {
		message := fmt.Sprintf("chronik: update trace %s", traceID)
		if err := s.tree.Commit(ctx, message, tracePath(traceID)); err != nil {
			return schema.SessionTrace{}, err
		}
	}
	return trace, nil
}

// writeDocument renders the trace metadata as its indented JSON
// document.
func (s *Store) writeDocument(trace schema.SessionTrace) error {
	document, err := json.MarshalIndent(trace, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding trace %s: %w", trace.TraceID, err)
	}
	return s.tree.WriteFile(tracePath(trace.TraceID), append(document, '\n'))
}

// eventsJSONL renders events as newline-delimited JSON. This encoding
// is the digest preimage, so it must stay deterministic: one
// json.Marshal line per event, in slice order.
func eventsJSONL(events []schema.TraceEvent) ([]byte, error) {
	var buf bytes.Buffer
	for _, event := range events {
		line, err := json.Marshal(event)
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
