package board

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "opening", Opening.String())
	assert.Equal(t, "awaiting-adapter-detail", AwaitingAdapterDetail.String())
	assert.Equal(t, "enumerating-thing", EnumeratingThing.String())
	assert.Equal(t, "enumerating-property", EnumeratingProperty.String())
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestState_Predicates(t *testing.T) {
	tests := []struct {
		state       State
		connected   bool
		enumerating bool
	}{
		{Disconnected, false, false},
		{Opening, false, false},
		{AwaitingAdapterDetail, true, true},
		{EnumeratingThing, true, true},
		{EnumeratingProperty, true, true},
		{Ready, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			assert.Equal(t, tt.connected, tt.state.IsConnected())
			assert.Equal(t, tt.enumerating, tt.state.IsEnumerating())
		})
	}
}

func TestStateMgr_Handlers(t *testing.T) {
	sm := newStateMgr(nil)

	var transitions [][2]State
	sm.addHandler(func(_ *Board, prev State, next State) {
		transitions = append(transitions, [2]State{prev, next})
	})

	sm.to(Opening)
	sm.to(Opening)
	sm.to(AwaitingAdapterDetail)
	sm.to(Disconnected)

	assert.Equal(t, [][2]State{
		{Disconnected, Opening},
		{Opening, AwaitingAdapterDetail},
		{AwaitingAdapterDetail, Disconnected},
	}, transitions)
}

func TestStateMgr_WaitState(t *testing.T) {
	sm := newStateMgr(nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, sm.waitState(ctx, Disconnected))

	go func() {
		time.Sleep(10 * time.Millisecond)
		sm.to(Opening)
		sm.to(Ready)
	}()

	require.NoError(t, sm.waitState(ctx, Ready))

	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()

	require.ErrorIs(t, sm.waitState(short, Disconnected), context.DeadlineExceeded)
}

func TestStateMgr_WaitAny(t *testing.T) {
	sm := newStateMgr(nil)
	sm.to(Opening)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		time.Sleep(10 * time.Millisecond)
		sm.to(AwaitingAdapterDetail)
		sm.to(Disconnected)
	}()

	state, err := sm.waitAny(ctx, Ready, Disconnected)
	require.NoError(t, err)
	assert.Equal(t, Disconnected, state)

	state, err = sm.waitAny(ctx, Ready, Disconnected)
	require.NoError(t, err)
	assert.Equal(t, Disconnected, state)

	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()

	state, err = sm.waitAny(short, Ready)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Disconnected, state)
}
