// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chronik-dev/chronik/lib/eventbus"
	"github.com/chronik-dev/chronik/lib/git"
	"github.com/chronik-dev/chronik/lib/schema"
	"github.com/chronik-dev/chronik/lib/testutil"
	"github.com/chronik-dev/chronik/lib/trace"
	"github.com/chronik-dev/chronik/lib/worktree"
)

// newTestServer stands up a busServer over a real repository and
// ledger checkout, served from an httptest listener.
func newTestServer(t *testing.T) (*httptest.Server, *eventbus.Bus) {
	t.Helper()
	dir := testutil.InitRepo(t)
	repo := git.NewRepository(dir)
	tree := worktree.NewManager(repo, worktree.Options{})
	if err := tree.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	bus := eventbus.New(eventbus.Options{HeartbeatInterval: time.Hour})
	store := trace.NewStore(tree, trace.StoreOptions{})
	recorder := trace.NewRecorder(bus, store, repo, trace.RecorderOptions{})
	server := newBusServer(bus, recorder, slog.New(slog.DiscardHandler))

	httpServer := httptest.NewServer(server.handler())
	t.Cleanup(httpServer.Close)
	return httpServer, bus
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("encoding request: %v", err)
	}
	response, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return response
}

func decodeBody[T any](t *testing.T, response *http.Response) T {
	t.Helper()
	defer response.Body.Close()
	var value T
	if err := json.NewDecoder(response.Body).Decode(&value); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return value
}

func TestServePublishSnapshotStats(t *testing.T) {
	t.Parallel()
	server, _ := newTestServer(t)

	response := postJSON(t, server.URL+"/publish", eventbus.Event{
		Type: "cache:refresh:done", Key: "users", DurationS: 1.5,
	})
	if response.StatusCode != http.StatusOK {
		t.Fatalf("publish status = %d", response.StatusCode)
	}
	stamped := decodeBody[eventbus.Event](t, response)
	if stamped.Seq != 1 || stamped.TS.IsZero() {
		t.Errorf("stamped = seq %d ts %v", stamped.Seq, stamped.TS)
	}

	snapshotResponse, err := http.Get(server.URL + "/snapshot")
	if err != nil {
		t.Fatalf("GET /snapshot: %v", err)
	}
	state := decodeBody[map[string]eventbus.SnapshotEntry](t, snapshotResponse)
	if entry, ok := state["users"]; !ok || entry.Event.Type != "cache:refresh:done" {
		t.Errorf("snapshot state = %+v", state)
	}

	statsResponse, err := http.Get(server.URL + "/stats")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	stats := decodeBody[eventbus.Stats](t, statsResponse)
	if stats.LatestSeq != 1 || stats.KeysTracked != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestServePublishRejectsBadEvents(t *testing.T) {
	t.Parallel()
	server, _ := newTestServer(t)

	// Missing type.
	response := postJSON(t, server.URL+"/publish", eventbus.Event{Key: "users"})
	response.Body.Close()
	if response.StatusCode != http.StatusBadRequest {
		t.Errorf("empty type status = %d, want 400", response.StatusCode)
	}

	// Bus-internal control types cannot be injected from outside.
	response = postJSON(t, server.URL+"/publish", eventbus.Event{Type: eventbus.TypeReady})
	response.Body.Close()
	if response.StatusCode != http.StatusBadRequest {
		t.Errorf("control type status = %d, want 400", response.StatusCode)
	}
}

// readFrames reads n SSE frames (blank-line delimited) off the stream.
func readFrames(t *testing.T, reader *bufio.Reader, n int) []string {
	t.Helper()
	frames := make([]string, 0, n)
	var current strings.Builder
	for len(frames) < n {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("reading stream after %d frames: %v", len(frames), err)
		}
		if line == "\n" {
			frames = append(frames, current.String())
			current.Reset()
			continue
		}
		current.WriteString(line)
	}
	return frames
}

func TestServeEventsStreamResume(t *testing.T) {
	t.Parallel()
	server, bus := newTestServer(t)

	for _, key := range []string{"users", "orders", "billing"} {
		bus.Publish(eventbus.Event{Type: "cache:refresh:done", Key: key})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/events", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	request.Header.Set("Last-Event-ID", "1")

	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	defer response.Body.Close()
	if got := response.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("Content-Type = %q", got)
	}

	// Resuming after seq 1 with everything retained: ready, then the
	// two missed events replayed in order.
	frames := readFrames(t, bufio.NewReader(response.Body), 3)
	if !strings.Contains(frames[0], "event: "+eventbus.TypeReady) {
		t.Errorf("first frame = %q, want ready", frames[0])
	}
	if !strings.Contains(frames[1], "id: 2") || !strings.Contains(frames[1], `"key":"orders"`) {
		t.Errorf("second frame = %q, want replayed seq 2", frames[1])
	}
	if !strings.Contains(frames[2], "id: 3") || !strings.Contains(frames[2], `"key":"billing"`) {
		t.Errorf("third frame = %q, want replayed seq 3", frames[2])
	}
}

func TestServeEventsStreamFreshConnection(t *testing.T) {
	t.Parallel()
	server, bus := newTestServer(t)

	bus.Publish(eventbus.Event{Type: "deploy:finish:done", Key: "api"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/events", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	defer response.Body.Close()

	// No resume state: ready then a snapshot carrying the state map.
	frames := readFrames(t, bufio.NewReader(response.Body), 2)
	if !strings.Contains(frames[0], "event: "+eventbus.TypeReady) {
		t.Errorf("first frame = %q, want ready", frames[0])
	}
	if !strings.Contains(frames[1], "event: "+eventbus.TypeSnapshot) || !strings.Contains(frames[1], `"api"`) {
		t.Errorf("second frame = %q, want snapshot with api state", frames[1])
	}
}

func TestServeTraceLifecycle(t *testing.T) {
	t.Parallel()
	server, bus := newTestServer(t)

	response := postJSON(t, server.URL+"/trace/start", map[string]string{
		"name": "incident window", "classification": "incident",
	})
	if response.StatusCode != http.StatusOK {
		t.Fatalf("trace start status = %d", response.StatusCode)
	}
	started := decodeBody[map[string]string](t, response)
	if !strings.HasPrefix(started["trace_id"], "trace_") {
		t.Fatalf("trace id = %q", started["trace_id"])
	}

	// A second recording runs alongside the first.
	response = postJSON(t, server.URL+"/trace/start", map[string]string{"name": "second window"})
	if response.StatusCode != http.StatusOK {
		t.Fatalf("second start status = %d", response.StatusCode)
	}
	secondStarted := decodeBody[map[string]string](t, response)
	if secondStarted["trace_id"] == started["trace_id"] {
		t.Fatalf("colliding trace ids: %q", started["trace_id"])
	}

	// Stop drains the listener's buffered feed before finalizing, so
	// the published event is in the capture without any settling wait.
	bus.Publish(eventbus.Event{Type: "cache:refresh:done", Key: "users", DurationS: 1})

	stopResponse := postJSON(t, server.URL+"/trace/stop", map[string]any{
		"trace_id": started["trace_id"],
	})
	if stopResponse.StatusCode != http.StatusOK {
		t.Fatalf("trace stop status = %d", stopResponse.StatusCode)
	}
	saved := decodeBody[schema.SessionTrace](t, stopResponse)
	if saved.TraceID != started["trace_id"] || saved.EventCount != 1 {
		t.Errorf("saved = %+v", saved)
	}

	// The second recording is untouched and stops on its own id.
	stopResponse = postJSON(t, server.URL+"/trace/stop", map[string]any{
		"trace_id": secondStarted["trace_id"],
	})
	if stopResponse.StatusCode != http.StatusOK {
		t.Fatalf("second trace stop status = %d", stopResponse.StatusCode)
	}
	stopResponse.Body.Close()

	// Stopping an id that is no longer recording is not found.
	stopResponse = postJSON(t, server.URL+"/trace/stop", map[string]any{
		"trace_id": started["trace_id"],
	})
	stopResponse.Body.Close()
	if stopResponse.StatusCode != http.StatusNotFound {
		t.Errorf("repeat stop status = %d, want 404", stopResponse.StatusCode)
	}

	// trace_id is mandatory.
	stopResponse = postJSON(t, server.URL+"/trace/stop", map[string]any{"post": false})
	stopResponse.Body.Close()
	if stopResponse.StatusCode != http.StatusBadRequest {
		t.Errorf("missing trace_id status = %d, want 400", stopResponse.StatusCode)
	}
}
