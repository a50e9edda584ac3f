package events

import (
	"log/slog"
	"sync"
)

// Subscriber is one live stream connection's delivery channel for a
// session's events. Created on connection open, destroyed on disconnect or
// overflow. Owned by exactly one streaming handler invocation.
type Subscriber struct {
	ch     chan StepEvent
	closed bool // guarded by the owning stream's mutex
}

// Events returns the receive side of the subscriber's delivery channel.
// The channel is closed when the subscriber is removed from the registry,
// either by its owner unsubscribing or by the bus dropping it on overflow.
func (s *Subscriber) Events() <-chan StepEvent {
	return s.ch
}

// closeLocked closes the delivery channel exactly once. Callers must hold
// the owning stream's mutex.
func (s *Subscriber) closeLocked() {
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// stream holds the event log and subscriber set for one session. The log and
// registry are mutated as a single mutually-exclusive unit; streams for
// different sessions do not contend with each other.
type stream struct {
	mu   sync.Mutex
	log  []StepEvent
	subs map[*Subscriber]struct{}
	dead bool // set by DropIfIdle; the stream is no longer in the bus map
}

// Bus is the process-wide broadcast fabric: it owns every session's event
// log and subscriber registry and routes new events to currently-connected
// subscribers. Delivery is best-effort, at-most-once per subscriber.
type Bus struct {
	mu      sync.RWMutex
	streams map[string]*stream

	maxLog int // event log capacity per session (oldest evicted first)
	buffer int // per-subscriber pending event capacity
}

// NewBus creates a Bus with the given per-session log capacity and
// per-subscriber channel capacity.
func NewBus(maxLog, buffer int) *Bus {
	return &Bus{
		streams: make(map[string]*stream),
		maxLog:  maxLog,
		buffer:  buffer,
	}
}

// getOrCreate returns the stream for a session, creating it lazily on first
// use (first broadcast or first subscriber).
func (b *Bus) getOrCreate(sessionID string) *stream {
	b.mu.RLock()
	st, ok := b.streams[sessionID]
	b.mu.RUnlock()
	if ok {
		return st
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok = b.streams[sessionID]; ok {
		return st
	}
	st = &stream{}
	b.streams[sessionID] = st
	return st
}

// lockLive returns the session's stream with its mutex held. If a concurrent
// DropIfIdle retired the stream between lookup and lock, the lookup is
// re-run so callers never mutate a stream the bus no longer owns.
func (b *Bus) lockLive(sessionID string) *stream {
	for {
		st := b.getOrCreate(sessionID)
		st.mu.Lock()
		if !st.dead {
			return st
		}
		st.mu.Unlock()
	}
}

// Broadcast appends the event to the session's log, evicting the oldest
// entry once the log exceeds its capacity, and attempts a non-blocking send
// to every registered subscriber. A subscriber whose channel is full is
// removed from the registry in the same pass — broadcast never blocks on a
// slow consumer and never retries a dropped delivery.
//
// Broadcasting to a session with no subscribers still appends to the log.
func (b *Bus) Broadcast(sessionID string, event StepEvent) {
	st := b.lockLive(sessionID)
	defer st.mu.Unlock()

	st.log = append(st.log, event)
	if len(st.log) > b.maxLog {
		st.log = st.log[1:]
	}

	for sub := range st.subs {
		select {
		case sub.ch <- event:
		default:
			// Full channel means the consumer stopped draining — treat it
			// as disconnected rather than stalling the broadcaster.
			slog.Warn("Dropping slow stream subscriber",
				"session_id", sessionID, "event_type", event.EventType)
			delete(st.subs, sub)
			sub.closeLocked()
		}
	}
	if len(st.subs) == 0 {
		st.subs = nil
	}
}

// Subscribe registers a new delivery channel for the session's events.
func (b *Bus) Subscribe(sessionID string) *Subscriber {
	sub := &Subscriber{ch: make(chan StepEvent, b.buffer)}

	st := b.lockLive(sessionID)
	defer st.mu.Unlock()
	if st.subs == nil {
		st.subs = make(map[*Subscriber]struct{})
	}
	st.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes a subscriber from the session's registry and closes
// its channel. Safe to call for a subscriber the bus already dropped. The
// now-empty subscriber set is released so an idle session costs nothing
// beyond its log.
func (b *Bus) Unsubscribe(sessionID string, sub *Subscriber) {
	b.mu.RLock()
	st, ok := b.streams[sessionID]
	b.mu.RUnlock()
	if !ok {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if _, member := st.subs[sub]; member {
		delete(st.subs, sub)
		sub.closeLocked()
	}
	if len(st.subs) == 0 {
		st.subs = nil
	}
}

// Recent returns a copy of up to the last limit stored events for the
// session, in original append order. A non-positive limit returns all
// stored events.
func (b *Bus) Recent(sessionID string, limit int) []StepEvent {
	b.mu.RLock()
	st, ok := b.streams[sessionID]
	b.mu.RUnlock()
	if !ok {
		return nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	start := 0
	if limit > 0 && len(st.log) > limit {
		start = len(st.log) - limit
	}
	out := make([]StepEvent, len(st.log)-start)
	copy(out, st.log[start:])
	return out
}

// SubscriberCount returns the number of live subscribers for a session.
func (b *Bus) SubscriberCount(sessionID string) int {
	b.mu.RLock()
	st, ok := b.streams[sessionID]
	b.mu.RUnlock()
	if !ok {
		return 0
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.subs)
}

// DropIfIdle removes the session's log and registry iff no subscribers
// remain, and reports whether the session's stream state is now gone.
// Clients mid-stream are never severed by a delete racing with them.
func (b *Bus) DropIfIdle(sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.streams[sessionID]
	if !ok {
		return true
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.subs) > 0 {
		return false
	}
	st.dead = true
	delete(b.streams, sessionID)
	return true
}

// TotalSubscribers returns the number of live subscribers across all
// sessions (health reporting).
func (b *Bus) TotalSubscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, st := range b.streams {
		st.mu.Lock()
		total += len(st.subs)
		st.mu.Unlock()
	}
	return total
}
