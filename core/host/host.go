// Package host serialises mutating engine operations and applies each one
// atomically: either every state write and event of an operation is kept or
// none is.
package host

import (
	"fmt"
	"log/slog"
	"sync"

	"ibco/core/events"
	"ibco/core/state"
)

// Host owns the state manager shared by the engines and acts as the single
// sequencer for mutating calls.
type Host struct {
	mu     sync.Mutex
	state  *state.Manager
	buffer *events.Buffer
	sink   events.Emitter
	log    *slog.Logger
}

// New constructs a host over the provided state manager. Committed events are
// forwarded to sink; a nil sink discards them.
func New(st *state.Manager, sink events.Emitter) *Host {
	if sink == nil {
		sink = events.NoopEmitter{}
	}
	return &Host{
		state:  st,
		buffer: &events.Buffer{},
		sink:   sink,
		log:    slog.Default(),
	}
}

// SetLogger replaces the logger used for commit failures.
func (h *Host) SetLogger(l *slog.Logger) {
	if h == nil || l == nil {
		return
	}
	h.log = l
}

// State exposes the manager so engines can be wired to it.
func (h *Host) State() *state.Manager { return h.state }

// Emitter returns the emitter engines should publish through. Events reach the
// downstream sink only when the producing operation commits.
func (h *Host) Emitter() events.Emitter { return h.buffer }

// Execute runs fn as one operation. A nil result commits the staged state and
// flushes buffered events; any error discards both. Panics are converted into
// errors after discarding.
func (h *Host) Execute(fn func() error) (err error) {
	if h == nil || h.state == nil {
		return fmt.Errorf("host: state not configured")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			h.rollback()
			err = fmt.Errorf("host: operation panicked: %v", r)
		}
	}()

	if err := fn(); err != nil {
		h.rollback()
		return err
	}
	if err := h.state.Commit(); err != nil {
		h.rollback()
		h.log.Error("state commit failed", slog.Any("error", err))
		return err
	}
	h.buffer.Flush(h.sink)
	return nil
}

// View runs fn against the current state and always discards whatever it
// staged.
func (h *Host) View(fn func() error) error {
	if h == nil || h.state == nil {
		return fmt.Errorf("host: state not configured")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	defer h.rollback()
	return fn()
}

func (h *Host) rollback() {
	h.state.Discard()
	h.buffer.Discard()
}
