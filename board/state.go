package board

import (
	"context"
	"sync"
	"sync/atomic"
)

// State is the connection and enumeration state of a board.
type State uint32

const (
	// Disconnected means no transport is open. It is the initial state and the state after any failure.
	Disconnected State = iota
	// Opening means the transport is being opened or the settle delay is running.
	Opening
	// AwaitingAdapterDetail means defineAdapter was sent and detailAdapter is expected.
	AwaitingAdapterDetail
	// EnumeratingThing means defineThingByIdx was sent for the cursor's thing index.
	EnumeratingThing
	// EnumeratingProperty means definePropertyByIdx or pair was sent for the thing under construction.
	EnumeratingProperty
	// Ready means every thing was enumerated and revealed.
	Ready
)

// String returns string representation of the state.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Opening:
		return "opening"
	case AwaitingAdapterDetail:
		return "awaiting-adapter-detail"
	case EnumeratingThing:
		return "enumerating-thing"
	case EnumeratingProperty:
		return "enumerating-property"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// IsConnected reports whether the transport is open and the settle delay has elapsed.
func (s State) IsConnected() bool {
	return s >= AwaitingAdapterDetail && s <= Ready
}

// IsEnumerating reports whether an enumeration walk is in progress.
func (s State) IsEnumerating() bool {
	return s >= AwaitingAdapterDetail && s <= EnumeratingProperty
}

// StateChangeHandler is invoked on every state transition.
//
// Note: the handler is invoked synchronously from the session goroutine. A long-running handler
// stalls the session.
type StateChangeHandler func(b *Board, prevState State, newState State)

// stateMgr holds the current state and notifies handlers on change.
type stateMgr struct {
	mu       sync.Mutex
	cond     *sync.Cond
	state    atomic.Uint32
	board    *Board
	handlers []StateChangeHandler
}

func newStateMgr(b *Board) *stateMgr {
	sm := &stateMgr{board: b}
	sm.cond = sync.NewCond(&sm.mu)
	sm.state.Store(uint32(Disconnected))

	return sm
}

func (sm *stateMgr) State() State {
	return State(sm.state.Load())
}

func (sm *stateMgr) addHandler(handlers ...StateChangeHandler) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.handlers = append(sm.handlers, handlers...)
}

// to moves to newState and invokes the handlers. Same-state transitions are no-ops.
func (sm *stateMgr) to(newState State) {
	sm.mu.Lock()
	prevState := sm.State()
	if prevState == newState {
		sm.mu.Unlock()
		return
	}

	sm.state.Store(uint32(newState))
	sm.cond.Broadcast()
	handlers := make([]StateChangeHandler, len(sm.handlers))
	copy(handlers, sm.handlers)
	sm.mu.Unlock()

	for _, handler := range handlers {
		if handler != nil {
			handler(sm.board, prevState, newState)
		}
	}
}

// waitState blocks until the state equals state or ctx is done.
func (sm *stateMgr) waitState(ctx context.Context, state State) error {
	_, err := sm.waitAny(ctx, state)
	return err
}

// waitAny blocks until the state equals one of states and returns it.
func (sm *stateMgr) waitAny(ctx context.Context, states ...State) (State, error) {
	match := func() (State, bool) {
		cur := sm.State()
		for _, s := range states {
			if cur == s {
				return cur, true
			}
		}

		return cur, false
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if cur, ok := match(); ok {
		return cur, nil
	}

	stopFunc := context.AfterFunc(ctx, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		sm.cond.Broadcast()
	})
	defer stopFunc()

	for {
		cur, ok := match()
		if ok {
			return cur, nil
		}
		if err := ctx.Err(); err != nil {
			return cur, err
		}
		sm.cond.Wait()
	}
}
