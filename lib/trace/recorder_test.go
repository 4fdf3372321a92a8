// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/chronik-dev/chronik/lib/clock"
	"github.com/chronik-dev/chronik/lib/eventbus"
	"github.com/chronik-dev/chronik/lib/git"
	"github.com/chronik-dev/chronik/lib/testutil"
	"github.com/chronik-dev/chronik/lib/worktree"
)

type fixture struct {
	dir      string
	bus      *eventbus.Bus
	store    *Store
	recorder *Recorder
	fake     *clock.Fake
}

type memoryPoster struct {
	posts []string
	fail  bool
}

func (p *memoryPoster) Post(_ context.Context, text string) error {
	if p.fail {
		return fmt.Errorf("chat unavailable")
	}
	p.posts = append(p.posts, text)
	return nil
}

func newFixture(t *testing.T, poster Poster) *fixture {
	t.Helper()
	dir := testutil.InitRepo(t)
	repo := git.NewRepository(dir)
	tree := worktree.NewManager(repo, worktree.Options{})
	if err := tree.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	fake := clock.NewFake()
	bus := eventbus.New(eventbus.Options{Clock: fake, HeartbeatInterval: time.Hour})
	store := NewStore(tree, StoreOptions{Clock: fake})
	recorder := NewRecorder(bus, store, repo, RecorderOptions{Poster: poster, Clock: fake})
	return &fixture{dir: dir, bus: bus, store: store, recorder: recorder, fake: fake}
}

func gitOut(t *testing.T, dir string, args ...string) string {
	t.Helper()
	command := exec.Command("git", append([]string{"-C", dir}, args...)...)
	output, err := command.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, output)
	}
	return strings.TrimSpace(string(output))
}

func TestRecordingLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	traceID, err := f.recorder.Start(ctx, "cache warm check", "demo")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !strings.HasPrefix(traceID, "trace_") || !strings.Contains(traceID, "cache-warm-check") {
		t.Errorf("trace id = %q", traceID)
	}
	if active := f.recorder.Active(); len(active) != 1 || active[0] != traceID {
		t.Errorf("active = %v, want [%s]", active, traceID)
	}

	for i := 0; i < 3; i++ {
		f.bus.Publish(eventbus.Event{Type: "cache:refresh:done", Key: "users", DurationS: 1.0})
	}
	// Control events never enter the capture.
	f.bus.Publish(eventbus.Event{Type: eventbus.TypeHeartbeat})

	f.fake.Advance(5 * time.Second)
	trace, err := f.recorder.Stop(ctx, traceID, false)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if trace.EventCount != 3 {
		t.Errorf("event count = %d, want 3", trace.EventCount)
	}
	if trace.AutoSummary != "3 cache refreshes, 3.0s total" {
		t.Errorf("summary = %q", trace.AutoSummary)
	}
	if trace.DurationS != 5.0 {
		t.Errorf("duration = %v, want 5.0", trace.DurationS)
	}
	if trace.Shared {
		t.Error("fresh trace is shared")
	}
	if trace.User != "Test" || trace.CodeRef == "" {
		t.Errorf("identity = %q %q", trace.User, trace.CodeRef)
	}

	if _, err := f.recorder.Stop(ctx, traceID, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Stop err = %v, want ErrNotFound", err)
	}

	events, err := f.store.Events(trace.TraceID)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("stored events = %d", len(events))
	}
	for i, event := range events {
		if event.Result != "ok" {
			t.Errorf("event %d result = %q, want ok", i, event.Result)
		}
		if event.DurationMS != 1000 {
			t.Errorf("event %d duration = %d, want 1000", i, event.DurationMS)
		}
		if i > 0 && events[i].Seq <= events[i-1].Seq {
			t.Errorf("events out of order: %d then %d", events[i-1].Seq, events[i].Seq)
		}
	}

	// Unshared traces leave no commits on the ledger branch.
	subject := gitOut(t, f.dir, "log", "-1", "--format=%s", "chronik/ledger")
	if strings.Contains(subject, trace.TraceID) {
		t.Errorf("unshared trace committed: %q", subject)
	}
}

func TestRecorderSummaryWhileActive(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.recorder.Summary("trace_20260101T000000Z_ghost_0000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Summary for unknown id = %v, want ErrNotFound", err)
	}
	traceID, err := f.recorder.Start(ctx, "live", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.bus.Publish(eventbus.Event{Type: "deploy:finish:done", Key: "api"})
	waitForCapture(t, f.recorder, traceID, 1)

	summary, err := f.recorder.Summary(traceID)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary != "1 deployment" {
		t.Errorf("summary = %q", summary)
	}
	if _, err := f.recorder.Stop(ctx, traceID, false); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestConcurrentRecordingsCaptureIndependently(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	firstID, err := f.recorder.Start(ctx, "first window", "")
	if err != nil {
		t.Fatalf("Start first: %v", err)
	}
	f.bus.Publish(eventbus.Event{Type: "cache:refresh:done", Key: "users", DurationS: 1.0})

	secondID, err := f.recorder.Start(ctx, "second window", "")
	if err != nil {
		t.Fatalf("Start second: %v", err)
	}
	if secondID == firstID {
		t.Fatalf("colliding trace ids: %q", firstID)
	}
	if active := f.recorder.Active(); len(active) != 2 {
		t.Fatalf("active = %v, want both recordings", active)
	}
	f.bus.Publish(eventbus.Event{Type: "deploy:finish:done", Key: "api"})

	// The first window spans both events, the second only the deploy.
	first, err := f.recorder.Stop(ctx, firstID, false)
	if err != nil {
		t.Fatalf("Stop first: %v", err)
	}
	if first.EventCount != 2 {
		t.Errorf("first event count = %d, want 2", first.EventCount)
	}
	second, err := f.recorder.Stop(ctx, secondID, false)
	if err != nil {
		t.Fatalf("Stop second: %v", err)
	}
	if second.EventCount != 1 {
		t.Errorf("second event count = %d, want 1", second.EventCount)
	}
	events, err := f.store.Events(secondID)
	if err != nil || len(events) != 1 || events[0].Key != "api" {
		t.Fatalf("second window events = %+v, %v", events, err)
	}

	if _, err := f.recorder.Stop(ctx, "trace_20260101T000000Z_ghost_0000", false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Stop unknown id = %v, want ErrNotFound", err)
	}
}

// waitForCapture polls until a capture has n events. The listener feed
// is drained by a goroutine, so delivery is asynchronous even though
// publishing is not.
func waitForCapture(t *testing.T, recorder *Recorder, traceID string, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		recorder.mutex.Lock()
		active, ok := recorder.captures[traceID]
		count := 0
		if ok {
			count = len(active.events)
		}
		recorder.mutex.Unlock()
		if count >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("capture never reached %d events", n)
}

func TestStopPostsNotice(t *testing.T) {
	t.Parallel()
	poster := &memoryPoster{}
	f := newFixture(t, poster)
	ctx := context.Background()

	traceID, err := f.recorder.Start(ctx, "incident review", "incident")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.bus.Publish(eventbus.Event{Type: "cache:refresh:done", Key: "users", DurationS: 1.0})
	if _, err := f.recorder.Stop(ctx, traceID, true); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if len(poster.posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(poster.posts))
	}
	notice := poster.posts[0]
	if !strings.Contains(notice, "@trace:"+traceID) {
		t.Errorf("notice missing trace token: %q", notice)
	}
	if !strings.Contains(notice, "1 cache refresh") {
		t.Errorf("notice missing summary: %q", notice)
	}
}

func TestStopSurvivesPosterFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &memoryPoster{fail: true})
	ctx := context.Background()

	traceID, err := f.recorder.Start(ctx, "flaky chat", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	trace, err := f.recorder.Stop(ctx, traceID, true)
	if err != nil {
		t.Fatalf("Stop with failing poster: %v", err)
	}
	// The trace was saved despite the failed post.
	if _, err := f.store.Get(trace.TraceID); err != nil {
		t.Fatalf("Get after failed post: %v", err)
	}
}

func TestStopWithoutAutoPostDoesNotPost(t *testing.T) {
	t.Parallel()
	poster := &memoryPoster{}
	f := newFixture(t, poster)
	ctx := context.Background()

	traceID, err := f.recorder.Start(ctx, "quiet", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.recorder.Stop(ctx, traceID, false); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(poster.posts) != 0 {
		t.Errorf("posts = %v, want none", poster.posts)
	}
}

func TestFailedEventsDeriveFailedResult(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	traceID, err := f.recorder.Start(ctx, "failures", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.bus.Publish(eventbus.Event{Type: "deploy:finish", Key: "api", Error: "rollback triggered"})
	f.bus.Publish(eventbus.Event{Type: "deploy:finish", Key: "web",
		Data: map[string]any{"status": "failed"}})
	f.bus.Publish(eventbus.Event{Type: "deploy:progress", Key: "worker"})

	trace, err := f.recorder.Stop(ctx, traceID, false)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	events, err := f.store.Events(trace.TraceID)
	if err != nil || len(events) != 3 {
		t.Fatalf("events = %v, %v", events, err)
	}
	if events[0].Result != "failed" || events[1].Result != "failed" {
		t.Errorf("failure results = %q, %q", events[0].Result, events[1].Result)
	}
	if events[2].Result != "" {
		t.Errorf("ambiguous event result = %q, want unknown", events[2].Result)
	}
}
