package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-packedserial/cobs"
	"github.com/arloliu/go-packedserial/internal/pool"
	"github.com/arloliu/go-packedserial/internal/task"
	"github.com/arloliu/go-packedserial/logger"
	"github.com/arloliu/go-packedserial/transport"
)

const (
	readBufferSize = 256
	rxQueueSize    = 16
)

// Board is the session with one board attached to one serial port.
//
// All protocol state is owned by a single session goroutine started by Open. A reader goroutine
// feeds it raw bytes; frames are reassembled, decoded and applied in arrival order, and every
// request is written and drained before the next event is processed. Commands from other
// goroutines (SetProperty, GetProperty, Unpair, Enumerate) are executed inside the session
// goroutine and return as soon as the request is on the wire.
type Board struct {
	id     string
	path   string
	cfg    *Config
	logger logger.Logger

	stateMgr *stateMgr
	taskMgr  *task.Manager
	metrics  Metrics
	m        *machine

	runMu    sync.Mutex
	opening  bool
	cmdCh    chan command
	loopDone chan struct{}

	snap    atomic.Pointer[Snapshot]
	lastErr atomic.Pointer[error]
}

type command struct {
	fn    func(m *machine) error
	reply chan error
}

// New creates a board session for the port at path. The board starts Disconnected; call Open
// to connect and enumerate. ctx bounds the lifetime of every session goroutine.
func New(ctx context.Context, path string, dir Directory, opts ...Option) (*Board, error) {
	if dir == nil {
		return nil, errors.New("board: directory is nil")
	}

	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	id := transport.BoardID(path)
	if id == "" {
		return nil, fmt.Errorf("board: invalid port path %q", path)
	}

	b := &Board{
		id:     id,
		path:   path,
		cfg:    cfg,
		logger: cfg.logger.With("board", id),
	}

	b.stateMgr = newStateMgr(b)
	b.stateMgr.addHandler(cfg.handlers...)
	b.taskMgr = task.NewManager(ctx, b.logger)
	b.m = newMachine(id, dir, nil, b.stateMgr, b.logger, &b.metrics)
	b.publish()

	return b, nil
}

// ID returns the board identity, the base name of the port path.
func (b *Board) ID() string { return b.id }

// Path returns the port path.
func (b *Board) Path() string { return b.path }

// State returns the current state.
func (b *Board) State() State { return b.stateMgr.State() }

// Metrics returns the session counters.
func (b *Board) Metrics() *Metrics { return &b.metrics }

// Config returns the session configuration.
func (b *Board) Config() *Config { return b.cfg }

// Snapshot returns the state published after the most recent session event.
func (b *Board) Snapshot() Snapshot {
	return *b.snap.Load()
}

// LastError returns the error that ended the most recent session, or nil.
func (b *Board) LastError() error {
	if p := b.lastErr.Load(); p != nil {
		return *p
	}

	return nil
}

// AddStateChangeHandler registers handlers invoked on every state transition.
// Handlers run on the session goroutine and must not call Close.
func (b *Board) AddStateChangeHandler(handlers ...StateChangeHandler) {
	b.stateMgr.addHandler(handlers...)
}

// WaitState blocks until the board reaches state or ctx is done.
func (b *Board) WaitState(ctx context.Context, state State) error {
	return b.stateMgr.waitState(ctx, state)
}

// WaitAnyState blocks until the board reaches one of states and returns the state reached.
// On ctx expiry it returns the current state with ctx's error.
func (b *Board) WaitAnyState(ctx context.Context, states ...State) (State, error) {
	return b.stateMgr.waitAny(ctx, states...)
}

// Open opens the transport and starts the session. Enumeration begins after the settle delay.
//
// It returns ErrAlreadyOpen when a session is running, and an ErrTransport error when the port
// cannot be opened, in which case the board stays Disconnected.
func (b *Board) Open(ctx context.Context) error {
	b.runMu.Lock()
	if b.opening || b.isRunningLocked() {
		b.runMu.Unlock()
		return ErrAlreadyOpen
	}
	b.opening = true
	b.runMu.Unlock()

	defer func() {
		b.runMu.Lock()
		b.opening = false
		b.runMu.Unlock()
	}()

	b.stateMgr.to(Opening)
	b.publish()

	port, err := b.cfg.opener.Open(ctx, b.path, b.cfg.baudRate)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrTransport, err)
		b.lastErr.Store(&err)
		b.stateMgr.to(Disconnected)
		b.publish()
		b.logger.Warn("open port failed", "path", b.path, "error", err)

		return err
	}

	b.metrics.incConnectCount()
	b.logger.Info("opened serial port", "path", b.path, "baudRate", b.cfg.baudRate)

	cmdCh := make(chan command)
	done := make(chan struct{})

	b.runMu.Lock()
	b.cmdCh = cmdCh
	b.loopDone = done
	b.runMu.Unlock()

	err = b.taskMgr.Start("session", func(ctx context.Context) {
		b.run(ctx, port, cmdCh, done)
	})
	if err != nil {
		close(done)
		_ = port.Close()
		b.stateMgr.to(Disconnected)
		b.publish()

		return err
	}

	return nil
}

// Close ends the session, revokes the board's things and waits for every session goroutine.
// Closing a disconnected board is a no-op.
func (b *Board) Close() error {
	b.taskMgr.Stop()
	b.taskMgr.Wait()

	return nil
}

// Enumerate walks the board's things again. A disconnected board is reopened; a Ready board
// restarts from thing 0 on the open transport. Any other state returns ErrEnumerationInProgress.
func (b *Board) Enumerate(ctx context.Context) error {
	b.runMu.Lock()
	running := b.opening || b.isRunningLocked()
	b.runMu.Unlock()

	if !running {
		return b.Open(ctx)
	}

	return b.do(ctx, func(m *machine) error {
		return m.restart()
	})
}

// SetProperty asks the board to change a property value. It returns once the request is written;
// the new value is applied when the board confirms it with a status update.
func (b *Board) SetProperty(ctx context.Context, thingID string, propertyName string, value any) error {
	return b.do(ctx, func(m *machine) error {
		return m.setProperty(thingID, propertyName, value)
	})
}

// GetProperty asks the board to report a property value.
func (b *Board) GetProperty(ctx context.Context, thingID string, propertyName string) error {
	return b.do(ctx, func(m *machine) error {
		return m.getProperty(thingID, propertyName)
	})
}

// Unpair asks the board to stop reporting the thing at thingIdx.
func (b *Board) Unpair(ctx context.Context, thingIdx uint8) error {
	return b.do(ctx, func(m *machine) error {
		return m.unpair(thingIdx)
	})
}

// Thing returns the revealed thing at index.
func (b *Board) Thing(index uint8) (ThingSnapshot, bool) {
	for _, t := range b.Snapshot().Things {
		if t.Index == index {
			return t, true
		}
	}

	return ThingSnapshot{}, false
}

func (b *Board) isRunningLocked() bool {
	if b.loopDone == nil {
		return false
	}

	select {
	case <-b.loopDone:
		return false
	default:
		return true
	}
}

// do executes fn on the session goroutine.
func (b *Board) do(ctx context.Context, fn func(m *machine) error) error {
	b.runMu.Lock()
	cmdCh, done := b.cmdCh, b.loopDone
	running := b.isRunningLocked()
	b.runMu.Unlock()

	if !running {
		return fmt.Errorf("%w: state %s", ErrNotReady, b.State())
	}

	cmd := command{fn: fn, reply: make(chan error, 1)}

	select {
	case cmdCh <- cmd:
	case <-done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the session goroutine.
func (b *Board) run(ctx context.Context, port transport.Port, cmdCh chan command, done chan struct{}) {
	defer close(done)

	readerCtx, cancelReader := context.WithCancel(ctx)
	rxCh := make(chan []byte, rxQueueSize)
	errCh := make(chan error, 1)

	if err := b.taskMgr.Start("reader", func(context.Context) {
		b.read(readerCtx, port, rxCh, errCh)
	}); err != nil {
		errCh <- err
	}

	var frames [][]byte
	splitter := cobs.NewSplitter(
		func(frame []byte) { frames = append(frames, frame) },
		func(err error) {
			b.metrics.incFrameErrCount()
			b.logger.Warn("drop malformed frame", "error", err)
		},
	)

	var sendErr error
	m := b.m
	m.send = func(payload []byte) error {
		err := b.writeFrame(port, payload)
		if err != nil && sendErr == nil {
			sendErr = err
		}

		return err
	}

	settle := time.NewTimer(b.cfg.settleDelay)
	timeout := time.NewTimer(time.Hour)
	timeout.Stop()
	lastSeq := m.seq

	var fatal error

	for fatal == nil {
		select {
		case <-ctx.Done():
			fatal = ErrSessionClosed

		case <-settle.C:
			fatal = m.start()

		case data := <-rxCh:
			_, _ = splitter.Write(data)
			for i, frame := range frames {
				b.metrics.incFrameRecvCount()
				if err := m.handleFrame(frame); err != nil {
					fatal = err
					if rest := len(frames) - i - 1; rest > 0 {
						b.logger.Debug("discard frames after fatal error", "count", rest)
					}

					break
				}
			}
			frames = frames[:0]

		case err := <-errCh:
			fatal = fmt.Errorf("%w: %w", ErrTransport, err)

		case cmd := <-cmdCh:
			cmd.reply <- cmd.fn(m)

		case <-timeout.C:
			b.metrics.incTimeoutCount()
			fatal = fmt.Errorf("%w: %s after %v", ErrResponseTimeout, b.State(), b.cfg.responseTimeout)
		}

		if fatal == nil && sendErr != nil {
			fatal = sendErr
		}

		if fatal == nil && b.cfg.responseTimeout > 0 {
			switch {
			case !m.awaiting():
				timeout.Stop()
			case m.seq != lastSeq:
				lastSeq = m.seq
				timeout.Reset(b.cfg.responseTimeout)
			}
		}

		b.publish()
	}

	settle.Stop()
	timeout.Stop()
	cancelReader()
	_ = port.Close()

	if errors.Is(fatal, ErrSessionClosed) {
		b.logger.Info("board session closed")
	} else {
		b.lastErr.Store(&fatal)
		b.logger.Error("board session ended", "error", fatal, "state", b.State())
	}

	m.disconnect()
	m.send = nil
	b.publish()
}

func (b *Board) read(ctx context.Context, port transport.Port, rxCh chan<- []byte, errCh chan<- error) {
	buf := make([]byte, readBufferSize)

	for {
		n, err := port.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])

			select {
			case rxCh <- data:
			case <-ctx.Done():
				return
			}
		}

		if err != nil {
			select {
			case errCh <- err:
			case <-ctx.Done():
			}

			return
		}
	}
}

// writeFrame frames payload, writes it and waits for the port to drain, bounded by the send
// timeout.
func (b *Board) writeFrame(port transport.Port, payload []byte) error {
	frame, err := cobs.Encode(payload)
	if err != nil {
		return err
	}

	result := make(chan error, 1)
	go func() {
		_, err := port.Write(frame)
		if err == nil {
			err = port.Drain()
		}
		result <- err
	}()

	timer := pool.GetTimer(b.cfg.sendTimeout)
	defer pool.PutTimer(timer)

	select {
	case err := <-result:
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}

		b.metrics.incFrameSendCount()
		b.logger.Debug("sent frame", "payload", fmt.Sprintf("%x", payload))

		return nil

	case <-timer.C:
		return fmt.Errorf("%w: send not drained within %v", ErrTransport, b.cfg.sendTimeout)
	}
}

func (b *Board) publish() {
	snap := b.m.snapshot(b.path)
	snap.State = b.State().String()
	b.snap.Store(&snap)
}
