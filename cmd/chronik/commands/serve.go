// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/chronik-dev/chronik/cmd/chronik/cli"
	"github.com/chronik-dev/chronik/lib/eventbus"
	"github.com/chronik-dev/chronik/lib/sse"
	"github.com/chronik-dev/chronik/lib/trace"
)

func serveCommand() *cli.Command {
	var addr string

	return &cli.Command{
		Name:    "serve",
		Summary: "Serve the event bus over HTTP",
		Description: `Run the event bus as a local HTTP service. Dashboards and scripts
subscribe to /events as a Server-Sent Events stream (reconnection
resumes via the standard Last-Event-ID header), publish domain events
to /publish, and read the latest-state snapshot from /snapshot.

The trace recorder rides the same bus: /trace/start and /trace/stop
capture a bounded window of everything published while the server
runs, saved privately into the ledger checkout.`,
		Usage: "chronik serve [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("serve", pflag.ContinueOnError)
			flagSet.StringVar(&addr, "addr", "127.0.0.1:7777", "listen address")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Stream events, resuming after sequence 42",
				Command:     "curl -N -H 'Last-Event-ID: 42' http://127.0.0.1:7777/events",
			},
			{
				Description: "Publish a cache completion event",
				Command:     `curl -X POST http://127.0.0.1:7777/publish -d '{"type":"cache:refresh:done","key":"users"}'`,
			},
		},
		Run: func(args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			env, err := openEnvironment(ctx)
			if err != nil {
				return err
			}
			if err := env.setup(ctx); err != nil {
				return err
			}

			bus := eventbus.New(eventbus.Options{
				ReplayBuffer:      env.cfg.Bus.ReplayBuffer,
				SubscriberQueue:   env.cfg.Bus.SubscriberQueue,
				HeartbeatInterval: env.cfg.Bus.HeartbeatInterval(),
				Logger:            env.logger,
			})
			recorder := trace.NewRecorder(bus, env.traces, env.repo, trace.RecorderOptions{
				Logger: env.logger,
			})
			server := newBusServer(bus, recorder, env.logger)

			httpServer := &http.Server{Addr: addr, Handler: server.handler()}
			errCh := make(chan error, 1)
			go func() {
				errCh <- httpServer.ListenAndServe()
			}()
			env.logger.Info("serving event bus", "addr", addr, "instance_id", bus.InstanceID())

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}
}

// busServer exposes a Bus and a trace Recorder over HTTP.
type busServer struct {
	bus      *eventbus.Bus
	recorder *trace.Recorder
	logger   *slog.Logger
}

func newBusServer(bus *eventbus.Bus, recorder *trace.Recorder, logger *slog.Logger) *busServer {
	return &busServer{bus: bus, recorder: recorder, logger: logger}
}

func (s *busServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("POST /publish", s.handlePublish)
	mux.HandleFunc("GET /snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("POST /trace/start", s.handleTraceStart)
	mux.HandleFunc("POST /trace/stop", s.handleTraceStop)
	return mux
}

// handleEvents streams the bus to the client as SSE frames until the
// client disconnects. Subscription state lives entirely in the bus;
// the handler is just a pump.
func (s *busServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	sse.PrepareHeaders(w.Header())
	feed := s.bus.Subscribe(r.Context(), sse.ResumeSeq(r))
	encoder := sse.NewEncoder(w)
	for event := range feed {
		if err := encoder.Write(event); err != nil {
			// Client went away mid-frame; the context cancellation
			// tears down the subscription.
			return
		}
	}
}

func (s *busServer) handlePublish(w http.ResponseWriter, r *http.Request) {
	var event eventbus.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, fmt.Sprintf("invalid event: %v", err), http.StatusBadRequest)
		return
	}
	if event.Type == "" {
		http.Error(w, "event type is required", http.StatusBadRequest)
		return
	}
	if eventbus.IsControl(event.Type) {
		http.Error(w, fmt.Sprintf("type %s is reserved for the bus", event.Type), http.StatusBadRequest)
		return
	}
	// The bus stamps sequence and timestamp; whatever the client sent
	// in those fields is overwritten.
	stamped := s.bus.Publish(event)
	s.writeJSON(w, stamped)
}

func (s *busServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.bus.Snapshot())
}

func (s *busServer) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.bus.Stats())
}

func (s *busServer) handleTraceStart(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Name           string `json:"name"`
		Classification string `json:"classification"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	traceID, err := s.recorder.Start(r.Context(), request.Name, request.Classification)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, map[string]string{"trace_id": traceID})
}

func (s *busServer) handleTraceStop(w http.ResponseWriter, r *http.Request) {
	var request struct {
		TraceID string `json:"trace_id"`
		Post    bool   `json:"post"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if request.TraceID == "" {
		http.Error(w, "trace_id is required", http.StatusBadRequest)
		return
	}
	saved, err := s.recorder.Stop(r.Context(), request.TraceID, request.Post)
	if errors.Is(err, trace.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, saved)
}

func (s *busServer) writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(value); err != nil {
		// Headers are already out; nothing left to send the client.
		s.logger.Debug("response encoding failed", "error", err)
	}
}
