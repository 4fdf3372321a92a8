// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

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

	"github.com/chronik-dev/chronik/lib/clock"
	"github.com/chronik-dev/chronik/lib/git"
	"github.com/chronik-dev/chronik/lib/schema"
	"github.com/chronik-dev/chronik/lib/worktree"
)

// ErrNotFound is returned when a record id has no document in the
// ledger worktree. Check with errors.Is.
var ErrNotFound = errors.New("not found")

// Tag name prefixes for the index.
const (
	runTagPrefix   = "chronik-run-"
	auditTagPrefix = "chronik-audit-"
)

// Worktree paths, relative to the ledger checkout.
const (
	runsDir   = "ledger/runs"
	auditsDir = "audits"
	tracesDir = "ledger/traces"
)

// Options configures a Ledger.
type Options struct {
	Clock  clock.Clock
	Logger *slog.Logger
}

// Ledger records and queries durable operational history.
type Ledger struct {
	repo   *git.Repository
	tree   *worktree.Manager
	clock  clock.Clock
	logger *slog.Logger
}

// New returns a Ledger backed by the given repository and worktree
// manager. Call Setup (or worktree.Manager.Ensure) before the first
// write.
func New(repo *git.Repository, tree *worktree.Manager, opts Options) *Ledger {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Ledger{
		repo:   repo,
		tree:   tree,
		clock:  opts.Clock,
		logger: opts.Logger,
	}
}

// Tree returns the underlying worktree manager.
func (l *Ledger) Tree() *worktree.Manager {
	return l.tree
}

// Setup brings the ledger branch and checkout into working order. Safe
// to call repeatedly.
func (l *Ledger) Setup(ctx context.Context) error {
	return l.tree.Ensure(ctx)
}

// RecordRun persists a run and its events and indexes the run with an
// annotated tag. Empty RunID, User, and CodeRef are filled in: the id
// is generated, the user comes from git configuration, and the code
// ref is the primary working tree's HEAD. The completed run is
// returned.
//
// Re-recording an identical run under an explicit RunID is idempotent:
// the commit records nothing and the tag is force-updated in place.
func (l *Ledger) RecordRun(ctx context.Context, run schema.Run, events []schema.RunEvent) (schema.Run, error) {
	if err := run.Validate(); err != nil {
		return schema.Run{}, fmt.Errorf("invalid run: %w", err)
	}
	l.fillIdentity(ctx, &run.User, &run.CodeRef)
	if run.RunID == "" {
		run.RunID = schema.NewRecordID("run", run.Type, l.clock.Now())
	}
	if run.DurationMS == 0 && run.EndedAt.After(run.StartedAt) {
		run.DurationMS = run.EndedAt.Sub(run.StartedAt).Milliseconds()
	}

	document, err := marshalDocument(run)
	if err != nil {
		return schema.Run{}, fmt.Errorf("encoding run %s: %w", run.RunID, err)
	}
	runPath := path.Join(runsDir, run.RunID, "run.json")
	if err := l.tree.WriteFile(runPath, document); err != nil {
		return schema.Run{}, err
	}

	eventsPath := path.Join(runsDir, run.RunID, "events.jsonl")
	if len(events) > 0 {
		lines, err := marshalLines(events)
		if err != nil {
			return schema.Run{}, fmt.Errorf("encoding events for %s: %w", run.RunID, err)
		}
		if err := l.tree.WriteFile(eventsPath, lines); err != nil {
			return schema.Run{}, err
		}
	}

	message := fmt.Sprintf("chronik: record run %s", run.RunID)
	if err := l.tree.Commit(ctx, message, path.Join(runsDir, run.RunID)); err != nil {
		return schema.Run{}, err
	}
	if err := l.tagIndex(ctx, runTagPrefix+run.RunID, run.IndexCopy()); err != nil {
		return schema.Run{}, err
	}

	l.logger.Info("run recorded", "run_id", run.RunID, "type", run.Type, "status", run.Status)
	return run, nil
}

// FinishRun applies a completion callback to a run in memory. The
// presentation layer calls this with whatever outcome it observed,
// then passes the result to RecordRun.
func FinishRun(run schema.Run, completion schema.Completion) schema.Run {
	if completion.Status != "" {
		run.Status = completion.Status
	}
	if completion.Summary != "" {
		run.Summary = completion.Summary
	}
	if completion.DurationMS != 0 {
		run.DurationMS = completion.DurationMS
	}
	return run
}

// ListRuns returns up to n runs from the tag index, newest first. A
// tag whose message does not parse is skipped with a warning rather
// than failing the listing: one corrupt index entry must not hide the
// rest of the history.
func (l *Ledger) ListRuns(ctx context.Context, n int) ([]schema.Run, error) {
	entries, err := l.tree.ListTags(ctx, runTagPrefix, n)
	if err != nil {
		return nil, err
	}
	runs := make([]schema.Run, 0, len(entries))
	for _, entry := range entries {
		var run schema.Run
		if err := json.Unmarshal([]byte(entry.Message), &run); err != nil || run.RunID == "" {
			l.logger.Warn("skipping unparseable run index tag", "tag", entry.Name, "error", err)
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// GetRun returns the full run document, including metadata the index
// omits. Unknown ids return ErrNotFound.
func (l *Ledger) GetRun(ctx context.Context, runID string) (schema.Run, error) {
	data, err := l.tree.ReadFile(path.Join(runsDir, runID, "run.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return schema.Run{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return schema.Run{}, err
	}
	var run schema.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return schema.Run{}, fmt.Errorf("parsing run %s: %w", runID, err)
	}
	return run, nil
}

// GetRunEvents returns a run's events in sequence order. A run
// recorded without events yields an empty slice; an unknown run id
// returns ErrNotFound.
func (l *Ledger) GetRunEvents(ctx context.Context, runID string) ([]schema.RunEvent, error) {
	if _, err := l.tree.ReadFile(path.Join(runsDir, runID, "run.json")); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	data, err := l.tree.ReadFile(path.Join(runsDir, runID, "events.jsonl"))
	if errors.Is(err, fs.ErrNotExist) {
		return []schema.RunEvent{}, nil
	}
	if err != nil {
		return nil, err
	}

	var events []schema.RunEvent
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var event schema.RunEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("parsing events for %s: %w", runID, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading events for %s: %w", runID, err)
	}
	return events, nil
}

// PushLedger publishes the ledger branch and tags to the remote. No
// configured remote is success.
func (l *Ledger) PushLedger(ctx context.Context) error {
	return l.tree.Push(ctx)
}

// PullLedger brings remote ledger history into the local branch. No
// configured remote, or a remote without the branch, is success.
func (l *Ledger) PullLedger(ctx context.Context) error {
	return l.tree.Pull(ctx)
}

// fillIdentity populates empty user and code ref fields from the
// primary working tree. Failures leave the fields empty: identity is
// advisory, not a precondition for recording.
func (l *Ledger) fillIdentity(ctx context.Context, user, codeRef *string) {
	if *user == "" {
		*user = l.repo.UserName(ctx)
	}
	if *codeRef == "" {
		if head, err := l.repo.Head(ctx); err == nil {
			*codeRef = head
		}
	}
}

// tagIndex writes a record's compact JSON index copy as an annotated
// tag on the primary line's current HEAD, marking which code state the
// record was taken against. A repository with no commits yet falls
// back to the ledger branch head so the index still exists.
func (l *Ledger) tagIndex(ctx context.Context, tagName string, record any) error {
	message, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding index for %s: %w", tagName, err)
	}
	target, err := l.repo.Head(ctx)
	if err != nil || target == "" {
		target = l.tree.Branch()
	}
	return l.tree.Tag(ctx, tagName, target, string(message))
}

// marshalDocument renders a record as the indented JSON document
// stored in the worktree.
func marshalDocument(record any) ([]byte, error) {
	document, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(document, '\n'), nil
}

// marshalLines renders records as newline-delimited JSON.
func marshalLines[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
