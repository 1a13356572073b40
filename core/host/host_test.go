package host

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"ibco/core/events"
	"ibco/core/state"
	"ibco/storage"
)

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(e events.Event) { c.events = append(c.events, e) }

func TestExecuteCommitsOnSuccess(t *testing.T) {
	db := storage.NewMemDB()
	sink := &capturingEmitter{}
	h := New(state.NewManager(db), sink)

	err := h.Execute(func() error {
		h.Emitter().Emit(events.AssetAdded{Symbol: "USDC"})
		return h.State().KVPut([]byte("k"), uint64(7))
	})
	require.NoError(t, err)
	require.Len(t, db.Keys(), 1)
	require.Len(t, sink.events, 1)
}

func TestExecuteRevertsOnFailure(t *testing.T) {
	db := storage.NewMemDB()
	sink := &capturingEmitter{}
	h := New(state.NewManager(db), sink)
	boom := errors.New("boom")

	err := h.Execute(func() error {
		h.Emitter().Emit(events.AssetAdded{Symbol: "USDC"})
		if err := h.State().KVPut([]byte("k"), uint64(7)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Empty(t, db.Keys())
	require.Empty(t, sink.events)

	var value uint64
	ok, err := h.State().KVGet([]byte("k"), &value)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExecuteRecoversPanics(t *testing.T) {
	db := storage.NewMemDB()
	h := New(state.NewManager(db), nil)
	err := h.Execute(func() error {
		_ = h.State().KVPut([]byte("k"), uint64(1))
		panic("unexpected")
	})
	require.Error(t, err)
	require.Empty(t, db.Keys())
}

func TestViewNeverPersists(t *testing.T) {
	db := storage.NewMemDB()
	h := New(state.NewManager(db), nil)
	require.NoError(t, h.View(func() error {
		return h.State().KVPut([]byte("k"), uint64(1))
	}))
	require.Empty(t, db.Keys())
}
