package events

import "sync"

// Event represents a structured state change emitted by an engine.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer holds events until the operation that produced them commits. Events
// raised by an operation that later fails are dropped with its state changes.
type Buffer struct {
	mu      sync.Mutex
	pending []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(e Event) {
	if b == nil || e == nil {
		return
	}
	b.mu.Lock()
	b.pending = append(b.pending, e)
	b.mu.Unlock()
}

// Flush forwards the pending events to the downstream emitter in emission
// order and clears the buffer.
func (b *Buffer) Flush(downstream Emitter) []Event {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	out := b.pending
	b.pending = nil
	b.mu.Unlock()
	if downstream != nil {
		for _, e := range out {
			downstream.Emit(e)
		}
	}
	return out
}

// Discard drops the pending events.
func (b *Buffer) Discard() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.pending = nil
	b.mu.Unlock()
}

// Pending reports the number of buffered events.
func (b *Buffer) Pending() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
