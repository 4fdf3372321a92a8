// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/chronik-dev/chronik/lib/clock"
	"github.com/chronik-dev/chronik/lib/eventbus"
	"github.com/chronik-dev/chronik/lib/git"
	"github.com/chronik-dev/chronik/lib/schema"
)

// listenerPrefix namespaces recorder bus listeners. The trace id is
// appended so concurrent captures never share a feed.
const listenerPrefix = "trace-recorder:"

// Poster publishes a short text notice to wherever the operators talk
// (chat, ticket comment). The "@trace:<id>" token in posted text is
// the convention consumers use to link back to the trace.
type Poster interface {
	Post(ctx context.Context, text string) error
}

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	// Poster receives the stop notice when Stop is called with
	// autoPost. Optional.
	Poster Poster
	Clock  clock.Clock
	Logger *slog.Logger
}

// Recorder captures bounded windows of bus activity. Each Start opens
// an independent capture with its own bus listener; any number may run
// at once, addressed by trace id.
type Recorder struct {
	bus    *eventbus.Bus
	store  *Store
	repo   *git.Repository
	poster Poster
	clock  clock.Clock
	logger *slog.Logger

	mutex    sync.Mutex
	captures map[string]*capture
}

type capture struct {
	trace  schema.SessionTrace
	events []schema.TraceEvent
	done   chan struct{}
}

// NewRecorder returns a Recorder capturing from bus and persisting
// through store. The repository supplies the identity fields stamped
// on each trace.
func NewRecorder(bus *eventbus.Bus, store *Store, repo *git.Repository, opts RecorderOptions) *Recorder {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{
		bus:      bus,
		store:    store,
		repo:     repo,
		poster:   opts.Poster,
		clock:    opts.Clock,
		logger:   opts.Logger,
		captures: make(map[string]*capture),
	}
}

// Start begins capturing bus activity. The trace id is returned
// immediately; events flow into the capture until Stop is called with
// that id. Captures already in progress are unaffected.
func (r *Recorder) Start(ctx context.Context, name, classification string) (string, error) {
	now := r.clock.Now()
	trace := schema.SessionTrace{
		TraceID:        schema.NewRecordID("trace", name, now),
		Name:           name,
		Classification: classification,
		StartedAt:      now,
		User:           r.repo.UserName(ctx),
	}
	if head, err := r.repo.Head(ctx); err == nil {
		trace.CodeRef = head
	}
	if err := trace.Validate(); err != nil {
		return "", err
	}

	active := &capture{trace: trace, done: make(chan struct{})}
	r.mutex.Lock()
	r.captures[trace.TraceID] = active
	r.mutex.Unlock()

	feed := r.bus.AddListener(listenerPrefix + trace.TraceID)
	go r.consume(active, feed)

	r.logger.Info("recording started", "trace_id", trace.TraceID, "name", name)
	return trace.TraceID, nil
}

// consume drains the listener feed into the capture until the feed is
// closed. Bus control events never enter the capture: they describe
// the connection, not the session.
func (r *Recorder) consume(active *capture, feed <-chan eventbus.Event) {
	defer close(active.done)
	for event := range feed {
		if eventbus.IsControl(event.Type) {
			continue
		}
		translated := translate(event)
		r.mutex.Lock()
		active.events = append(active.events, translated)
		r.mutex.Unlock()
	}
}

// Stop ends the capture identified by traceID, persists its trace
// (private by default), and returns it. An id that is not recording
// returns ErrNotFound. With autoPost set and a Poster configured, a
// short notice with the derived summary and the "@trace:<id>" token is
// posted; posting failures are logged, never fatal — the trace is
// already saved.
func (r *Recorder) Stop(ctx context.Context, traceID string, autoPost bool) (schema.SessionTrace, error) {
	r.mutex.Lock()
	active, ok := r.captures[traceID]
	delete(r.captures, traceID)
	r.mutex.Unlock()
	if !ok {
		return schema.SessionTrace{}, fmt.Errorf("recording %s: %w", traceID, ErrNotFound)
	}

	// Closing the listener flushes and ends the consume goroutine.
	r.bus.RemoveListener(listenerPrefix + active.trace.TraceID)
	<-active.done

	trace := active.trace
	trace.EndedAt = r.clock.Now()
	trace.DurationS = trace.EndedAt.Sub(trace.StartedAt).Seconds()
	trace.AutoSummary = Summarize(active.events)

	saved, err := r.store.Save(trace, active.events)
	if err != nil {
		return schema.SessionTrace{}, err
	}
	r.logger.Info("recording stopped", "trace_id", saved.TraceID,
		"events", saved.EventCount, "summary", saved.AutoSummary)

	if autoPost && r.poster != nil {
		notice := fmt.Sprintf("session trace %q: %s @trace:%s",
			saved.Name, saved.AutoSummary, saved.TraceID)
		if err := r.poster.Post(ctx, notice); err != nil {
			r.logger.Warn("trace notice post failed", "trace_id", saved.TraceID, "error", err)
		}
	}
	return saved, nil
}

// Summary returns a recording's derived summary without stopping it.
// An id that is not recording returns ErrNotFound.
func (r *Recorder) Summary(traceID string) (string, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	active, ok := r.captures[traceID]
	if !ok {
		return "", fmt.Errorf("recording %s: %w", traceID, ErrNotFound)
	}
	return Summarize(active.events), nil
}

// Active returns the trace ids currently recording, sorted.
func (r *Recorder) Active() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	ids := make([]string, 0, len(r.captures))
	for id := range r.captures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// translate converts a bus event into trace vocabulary.
func translate(event eventbus.Event) schema.TraceEvent {
	target, _ := event.Data["target"].(string)
	if target == "" {
		target = event.Key
	}
	return schema.TraceEvent{
		Seq:        event.Seq,
		TS:         event.TS,
		Type:       event.Type,
		Key:        event.Key,
		Target:     target,
		Result:     deriveResult(event),
		DurationMS: int64(event.DurationS * 1000),
		Detail:     event.Data,
	}
}

// deriveResult maps a bus event's outcome signals onto the trace
// result vocabulary: an explicit error always means failure, then the
// payload status field, then the completion type suffix. Everything
// else is left unknown.
func deriveResult(event eventbus.Event) string {
	if event.Error != "" {
		return schema.ResultFailed
	}
	if status, ok := event.Data["status"].(string); ok {
		switch status {
		case "failed", "error":
			return schema.ResultFailed
		case "ok", "success":
			return schema.ResultOK
		}
	}
	if eventbus.IsCompletion(event.Type) {
		return schema.ResultOK
	}
	return ""
}
