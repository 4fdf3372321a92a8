// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package eventbus

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chronik-dev/chronik/lib/clock"
)

// Defaults applied by New when the corresponding option is zero.
const (
	// DefaultReplayBuffer is the number of recent events retained for
	// subscriber catch-up.
	DefaultReplayBuffer = 1000

	// DefaultSubscriberQueue is the per-subscriber channel capacity.
	DefaultSubscriberQueue = 100

	// DefaultHeartbeatInterval is the idle interval after which a
	// heartbeat event is published.
	DefaultHeartbeatInterval = 30 * time.Second
)

// Options configures a Bus. Zero-value fields get defaults.
type Options struct {
	ReplayBuffer      int
	SubscriberQueue   int
	HeartbeatInterval time.Duration
	Clock             clock.Clock
	Logger            *slog.Logger
}

// Bus is the in-process event hub. Safe for concurrent use.
type Bus struct {
	instanceID string
	replaySize int
	queueSize  int
	heartbeat  time.Duration
	clock      clock.Clock
	logger     *slog.Logger

	mutex sync.Mutex
	seq   uint64
	// ring holds the most recent replaySize events. head is the index
	// of the oldest retained event; count is how many are retained.
	ring  []Event
	head  int
	count int
	// latest maps resource key to the most recent keyed completion
	// event for that key.
	latest map[string]Event
	// subscribers and listeners both receive every event. Subscribers
	// get the full connection protocol (ready, replay or snapshot,
	// heartbeats); listeners get a bare live feed.
	subscribers      map[uint64]*subscriber
	nextSubscriberID uint64
	listeners        map[string]chan Event
	dropped          uint64
}

type subscriber struct {
	id    uint64
	queue chan Event
}

// SnapshotEntry is one latest-state record with its age at snapshot
// time.
type SnapshotEntry struct {
	Event Event   `json:"event"`
	AgeS  float64 `json:"age_s"`
}

// Stats describes the bus's current shape, for diagnostics.
type Stats struct {
	InstanceID  string `json:"instance_id"`
	LatestSeq   uint64 `json:"latest_seq"`
	OldestSeq   uint64 `json:"oldest_seq"`
	Retained    int    `json:"retained"`
	Subscribers int    `json:"subscribers"`
	Listeners   int    `json:"listeners"`
	KeysTracked int    `json:"keys_tracked"`
	Dropped     uint64 `json:"dropped"`
}

// New constructs a Bus with a fresh instance id.
func New(opts Options) *Bus {
	if opts.ReplayBuffer <= 0 {
		opts.ReplayBuffer = DefaultReplayBuffer
	}
	if opts.SubscriberQueue <= 0 {
		opts.SubscriberQueue = DefaultSubscriberQueue
	}
	// Connection setup enqueues a ready event plus either a snapshot
	// or a replay backlog before the subscriber drains anything.
	if opts.SubscriberQueue < 4 {
		opts.SubscriberQueue = 4
	}
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Bus{
		instanceID:  uuid.NewString(),
		replaySize:  opts.ReplayBuffer,
		queueSize:   opts.SubscriberQueue,
		heartbeat:   opts.HeartbeatInterval,
		clock:       opts.Clock,
		logger:      opts.Logger,
		ring:        make([]Event, opts.ReplayBuffer),
		latest:      make(map[string]Event),
		subscribers: make(map[uint64]*subscriber),
		listeners:   make(map[string]chan Event),
	}
}

// InstanceID returns the bus's unique identity. A subscriber that
// reconnects and sees a different instance id knows its stored
// sequence numbers are meaningless.
func (b *Bus) InstanceID() string {
	return b.instanceID
}

// Publish stamps the event with the next sequence number and the
// current time, retains it for replay, updates the latest-state map,
// and delivers it to every subscriber and listener. Delivery is
// non-blocking: a full queue disconnects its consumer instead of
// stalling the publisher. The stamped event is returned.
func (b *Bus) Publish(event Event) Event {
	b.mutex.Lock()

	b.seq++
	event.SchemaVersion = SchemaVersion
	event.Seq = b.seq
	event.TS = b.clock.Now()

	b.retain(event)
	b.updateLatest(event)

	var droppedSubscribers []*subscriber
	for _, sub := range b.subscribers {
		select {
		case sub.queue <- event:
		default:
			droppedSubscribers = append(droppedSubscribers, sub)
		}
	}
	var droppedListeners []string
	for name, ch := range b.listeners {
		select {
		case ch <- event:
		default:
			droppedListeners = append(droppedListeners, name)
		}
	}
	for _, sub := range droppedSubscribers {
		delete(b.subscribers, sub.id)
		close(sub.queue)
		b.dropped++
	}
	for _, name := range droppedListeners {
		close(b.listeners[name])
		delete(b.listeners, name)
		b.dropped++
	}
	b.mutex.Unlock()

	// Log outside the lock: slog handlers may do IO. Heartbeats are
	// too chatty to log.
	if event.Type != TypeHeartbeat {
		b.logger.Debug("event published", "seq", event.Seq, "type", event.Type, "key", event.Key)
	}
	for _, sub := range droppedSubscribers {
		b.logger.Warn("subscriber dropped, queue full", "subscriber", sub.id, "seq", event.Seq)
	}
	for _, name := range droppedListeners {
		b.logger.Warn("listener dropped, queue full", "listener", name, "seq", event.Seq)
	}
	return event
}

// retain appends the event to the replay ring, evicting the oldest
// retained event when full.
func (b *Bus) retain(event Event) {
	if b.count < b.replaySize {
		b.ring[(b.head+b.count)%b.replaySize] = event
		b.count++
		return
	}
	b.ring[b.head] = event
	b.head = (b.head + 1) % b.replaySize
}

// updateLatest applies the event's state semantics: keyed completions
// replace the entry for their key, invalidations clear entries in
// their scope.
func (b *Bus) updateLatest(event Event) {
	if isBust(event.Type) {
		keys, all := bustScope(event)
		if all {
			b.latest = make(map[string]Event)
			return
		}
		for _, key := range keys {
			delete(b.latest, key)
		}
		return
	}
	if IsCompletion(event.Type) && event.Key != "" {
		b.latest[event.Key] = event
	}
}

// Subscribe attaches a consumer to the bus. The returned channel first
// carries a TypeReady event, then either the events after `since`
// replayed in order or a single TypeSnapshot event, then the live
// feed. The channel is closed when ctx is canceled or the subscriber
// falls too far behind.
//
// Pass since = 0 for a fresh connection with no catch-up state.
func (b *Bus) Subscribe(ctx context.Context, since uint64) <-chan Event {
	b.mutex.Lock()

	sub := &subscriber{
		id:    b.nextSubscriberID,
		queue: make(chan Event, b.queueSize),
	}
	b.nextSubscriberID++

	now := b.clock.Now()
	keys := make([]string, 0, len(b.latest))
	for key := range b.latest {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	ready := Event{
		SchemaVersion: SchemaVersion,
		TS:            now,
		Seq:           b.seq,
		Type:          TypeReady,
		Meta: map[string]any{
			"instance_id": b.instanceID,
			"latest_seq":  b.seq,
			"keys":        keys,
		},
	}
	sub.queue <- ready

	replayable, replay := b.replayAfter(since)
	if replayable {
		for _, event := range replay {
			sub.queue <- event
		}
	} else {
		sub.queue <- b.snapshotEvent(now)
	}

	b.subscribers[sub.id] = sub
	b.mutex.Unlock()

	out := make(chan Event)
	go b.forward(ctx, sub, out)
	return out
}

// replayAfter decides whether the events after `since` can be replayed
// and returns them if so. Replay requires that every missed event is
// still retained and that the whole backlog fits the subscriber queue
// alongside the ready event. Callers hold the mutex.
func (b *Bus) replayAfter(since uint64) (bool, []Event) {
	if since == 0 || since > b.seq {
		return false, nil
	}
	missed := b.seq - since
	if missed == 0 {
		return true, nil
	}
	if missed > uint64(b.count) {
		// The oldest missed events have been evicted.
		return false, nil
	}
	if missed > uint64(b.queueSize-2) {
		// The backlog would not fit the queue next to the ready and
		// snapshot slots.
		return false, nil
	}
	events := make([]Event, 0, missed)
	start := b.count - int(missed)
	for i := start; i < b.count; i++ {
		events = append(events, b.ring[(b.head+i)%b.replaySize])
	}
	return true, events
}

// snapshotEvent builds the TypeSnapshot event carrying the current
// latest-state map. Callers hold the mutex.
func (b *Bus) snapshotEvent(now time.Time) Event {
	state := make(map[string]SnapshotEntry, len(b.latest))
	for key, event := range b.latest {
		state[key] = SnapshotEntry{
			Event: event,
			AgeS:  now.Sub(event.TS).Seconds(),
		}
	}
	return Event{
		SchemaVersion: SchemaVersion,
		TS:            now,
		Seq:           b.seq,
		Type:          TypeSnapshot,
		Data:          map[string]any{"state": state},
		Meta:          map[string]any{"instance_id": b.instanceID},
	}
}

// forward pumps the subscriber's queue to the caller's channel,
// publishing a heartbeat when the bus stays idle for the heartbeat
// interval. The heartbeat goes through Publish, so every consumer
// (this subscriber included) sees it as a regular sequenced event.
func (b *Bus) forward(ctx context.Context, sub *subscriber, out chan<- Event) {
	defer close(out)
	for {
		var idle <-chan time.Time
		if b.heartbeat > 0 {
			idle = b.clock.After(b.heartbeat)
		}
		select {
		case <-ctx.Done():
			b.remove(sub)
			return
		case event, ok := <-sub.queue:
			if !ok {
				// Dropped by a publisher for falling behind.
				return
			}
			select {
			case out <- event:
			case <-ctx.Done():
				b.remove(sub)
				return
			}
		case <-idle:
			b.Publish(Event{
				Type: TypeHeartbeat,
				Meta: map[string]any{"instance_id": b.instanceID},
			})
		}
	}
}

// remove detaches a subscriber and drains its queue.
func (b *Bus) remove(sub *subscriber) {
	b.mutex.Lock()
	if _, ok := b.subscribers[sub.id]; ok {
		delete(b.subscribers, sub.id)
		close(sub.queue)
	}
	b.mutex.Unlock()
	for range sub.queue {
	}
}

// AddListener attaches a named bare live feed: no ready event, no
// replay, no snapshot. Adding a name that is already attached returns
// the existing channel. Listeners are for in-process consumers like
// the trace recorder that only care about events from now on.
func (b *Bus) AddListener(name string) <-chan Event {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if existing, ok := b.listeners[name]; ok {
		return existing
	}
	ch := make(chan Event, b.queueSize)
	b.listeners[name] = ch
	return ch
}

// RemoveListener detaches a named listener and closes its channel.
// Removing an unknown name is a no-op.
func (b *Bus) RemoveListener(name string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if ch, ok := b.listeners[name]; ok {
		close(ch)
		delete(b.listeners, name)
	}
}

// Snapshot returns the latest-state map with per-entry ages.
func (b *Bus) Snapshot() map[string]SnapshotEntry {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	now := b.clock.Now()
	state := make(map[string]SnapshotEntry, len(b.latest))
	for key, event := range b.latest {
		state[key] = SnapshotEntry{
			Event: event,
			AgeS:  now.Sub(event.TS).Seconds(),
		}
	}
	return state
}

// Stats returns the bus's current shape.
func (b *Bus) Stats() Stats {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	oldest := uint64(0)
	if b.count > 0 {
		oldest = b.ring[b.head].Seq
	}
	return Stats{
		InstanceID:  b.instanceID,
		LatestSeq:   b.seq,
		OldestSeq:   oldest,
		Retained:    b.count,
		Subscribers: len(b.subscribers),
		Listeners:   len(b.listeners),
		KeysTracked: len(b.latest),
		Dropped:     b.dropped,
	}
}
