// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

// Package sse encodes bus events as Server-Sent Events frames.
//
// The frame layout is fixed: an "event:" line carrying the bus event
// type, an "id:" line carrying the sequence number, one "data:" line
// carrying the compact JSON event, and a blank line. Clients resume
// with the standard Last-Event-ID header; the id line is what makes
// browser EventSource reconnection carry the right sequence.
package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/chronik-dev/chronik/lib/eventbus"
)

// Encoder writes SSE frames to an underlying writer, flushing after
// each frame when the writer supports it.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Write encodes one event as an SSE frame. The data line is the
// event's compact JSON encoding, which never contains raw newlines, so
// a single data line always suffices.
func (e *Encoder) Write(event eventbus.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event %d: %w", event.Seq, err)
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\nid: %d\ndata: %s\n\n", event.Type, event.Seq, payload); err != nil {
		return err
	}
	if flusher, ok := e.w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

// PrepareHeaders sets the response headers an SSE stream requires.
func PrepareHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
}

// ResumeSeq extracts the sequence number a reconnecting client last
// saw. The standard Last-Event-ID header wins over the "since" query
// parameter; absent or malformed values mean a fresh connection.
func ResumeSeq(r *http.Request) uint64 {
	if header := r.Header.Get("Last-Event-ID"); header != "" {
		if seq, err := strconv.ParseUint(header, 10, 64); err == nil {
			return seq
		}
	}
	if param := r.URL.Query().Get("since"); param != "" {
		if seq, err := strconv.ParseUint(param, 10, 64); err == nil {
			return seq
		}
	}
	return 0
}
