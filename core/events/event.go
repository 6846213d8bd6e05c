package events

import (
	"strconv"
	"sync"

	"genomarket/core/types"
)

// Event represents a structured state change emitted by the runtime.
type Event interface {
	EventType() string
}

// Payload is implemented by events that can render a wire-friendly
// representation for subscribers and indexers.
type Payload interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// Attributes stamped on positioned events.
const (
	AttrSource     = "source"
	AttrEventIndex = "eventIndex"
)

// Positioned pins a payload to the call that produced it. Source names the
// call (an envelope hash or the genesis marker) and Index orders the events
// the call emitted, so two otherwise identical events stay distinct.
type Positioned struct {
	Payload
	Source string
	Index  int
}

// Event returns a copy of the wrapped event carrying its position.
func (p Positioned) Event() *types.Event {
	inner := p.Payload.Event()
	if inner == nil {
		return nil
	}
	attrs := make(map[string]string, len(inner.Attributes)+2)
	for k, v := range inner.Attributes {
		attrs[k] = v
	}
	attrs[AttrSource] = p.Source
	attrs[AttrEventIndex] = strconv.Itoa(p.Index)
	return &types.Event{Type: inner.Type, Attributes: attrs}
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Multi fans every event out to each non-nil emitter in order.
type Multi []Emitter

// Emit implements the Emitter interface.
func (m Multi) Emit(evt Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Recorder keeps every emitted event in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Events returns a snapshot of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in emission order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, evt := range r.events {
		out[i] = evt.EventType()
	}
	return out
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
