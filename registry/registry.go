// Package registry manages the set of boards attached to the host.
//
// The registry lists serial ports, opens a board session on every port matched by a Selector and
// routes property commands to the board owning a thing. A board that becomes Disconnected is
// pruned: it is removed from the registry and its session is released.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-packedserial/board"
	"github.com/arloliu/go-packedserial/internal/task"
	"github.com/arloliu/go-packedserial/logger"
	"github.com/arloliu/go-packedserial/transport"
)

// ErrUnknownThing is returned when no registered board owns a thing.
var ErrUnknownThing = errors.New("registry: unknown thing")

// Registry holds the boards keyed by board id.
type Registry struct {
	dir       board.Directory
	lister    transport.Lister
	selectors []Selector
	boardOpts []board.Option
	rescan    time.Duration
	logger    logger.Logger

	boards  *xsync.MapOf[string, *board.Board]
	taskMgr *task.Manager

	mu            sync.Mutex // serializes pairing
	pairingCancel context.CancelFunc
}

// Option configures a Registry.
type Option func(*Registry)

// WithLister sets the port lister. The default lists local serial ports.
func WithLister(l transport.Lister) Option {
	return func(r *Registry) { r.lister = l }
}

// WithSelectors sets the port selectors.
func WithSelectors(selectors ...Selector) Option {
	return func(r *Registry) { r.selectors = append(r.selectors, selectors...) }
}

// WithBoardOptions sets options applied to every board session.
func WithBoardOptions(opts ...board.Option) Option {
	return func(r *Registry) { r.boardOpts = append(r.boardOpts, opts...) }
}

// WithRescanInterval makes the registry look for new ports periodically. Existing boards are not
// re-enumerated by a rescan.
func WithRescanInterval(d time.Duration) Option {
	return func(r *Registry) { r.rescan = d }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates a registry revealing things to dir. Board sessions live until ctx is done or
// Unload is called.
func New(ctx context.Context, dir board.Directory, opts ...Option) (*Registry, error) {
	if dir == nil {
		return nil, errors.New("registry: directory must not be nil")
	}

	r := &Registry{
		dir:    dir,
		lister: transport.SerialLister{},
		logger: logger.GetLogger(),
		boards: xsync.NewMapOf[string, *board.Board](),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.logger = r.logger.With("component", "registry")
	r.taskMgr = task.NewManager(ctx, r.logger)

	if r.rescan > 0 {
		err := r.taskMgr.StartInterval("rescan", r.rescan, false, func(ctx context.Context) bool {
			if err := r.scan(ctx, false); err != nil {
				r.logger.Warn("rescan failed", "error", err)
			}

			return true
		})
		if err != nil {
			return nil, err
		}
	}

	return r, nil
}

// StartPairing prunes disconnected boards, lists the host ports and opens a board on every port a
// selector matches. Boards already registered are enumerated again. When timeout is positive,
// boards that are still not Ready after it are pruned.
func (r *Registry) StartPairing(ctx context.Context, timeout time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Info("pairing started", "timeout", timeout)

	if r.pairingCancel != nil {
		r.pairingCancel()
		r.pairingCancel = nil
	}

	if err := r.scan(ctx, true); err != nil {
		return err
	}

	if timeout <= 0 {
		return nil
	}

	pairCtx, cancel := context.WithCancel(r.taskMgr.Context())
	r.pairingCancel = cancel

	return r.taskMgr.Start("pairing-timeout", func(ctx context.Context) {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-pairCtx.Done():
		case <-ctx.Done():
		case <-timer.C:
			r.logger.Info("pairing timed out")
			r.pruneNotReady()
		}
	})
}

// CancelPairing stops a running pairing and prunes every board that is not Ready.
func (r *Registry) CancelPairing() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pairingCancel != nil {
		r.pairingCancel()
		r.pairingCancel = nil
	}

	r.logger.Info("pairing canceled")
	r.pruneNotReady()
}

// Unload closes every board and stops the rescan. The registry can pair again afterwards.
func (r *Registry) Unload() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pairingCancel != nil {
		r.pairingCancel()
		r.pairingCancel = nil
	}

	r.taskMgr.Stop()

	r.boards.Range(func(id string, b *board.Board) bool {
		r.remove(id, b)
		_ = b.Close()

		return true
	})

	r.taskMgr.Wait()
	r.logger.Info("registry unloaded")
}

// Board returns the board with the given id.
func (r *Registry) Board(id string) (*board.Board, bool) {
	return r.boards.Load(id)
}

// Len returns the number of registered boards.
func (r *Registry) Len() int {
	return r.boards.Size()
}

// Range calls fn for every registered board until fn returns false.
func (r *Registry) Range(fn func(b *board.Board) bool) {
	r.boards.Range(func(_ string, b *board.Board) bool {
		return fn(b)
	})
}

// Boards returns snapshots of the registered boards sorted by id.
func (r *Registry) Boards() []board.Snapshot {
	snaps := make([]board.Snapshot, 0, r.boards.Size())
	r.boards.Range(func(_ string, b *board.Board) bool {
		snaps = append(snaps, b.Snapshot())
		return true
	})

	slices.SortFunc(snaps, func(a, b board.Snapshot) int {
		return strings.Compare(a.ID, b.ID)
	})

	return snaps
}

// Dump writes the board tree as YAML.
func (r *Registry) Dump(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(map[string]any{"boards": r.Boards()}); err != nil {
		return fmt.Errorf("registry: dump: %w", err)
	}

	return enc.Close()
}

// SetProperty routes a property change to the board owning thingID.
func (r *Registry) SetProperty(ctx context.Context, thingID string, propertyName string, value any) error {
	b, err := r.owner(thingID)
	if err != nil {
		return err
	}

	return b.SetProperty(ctx, thingID, propertyName, value)
}

// GetProperty routes a property read to the board owning thingID.
func (r *Registry) GetProperty(ctx context.Context, thingID string, propertyName string) error {
	b, err := r.owner(thingID)
	if err != nil {
		return err
	}

	return b.GetProperty(ctx, thingID, propertyName)
}

func (r *Registry) owner(thingID string) (*board.Board, error) {
	var found *board.Board
	r.boards.Range(func(_ string, b *board.Board) bool {
		for _, t := range b.Snapshot().Things {
			if t.ID == thingID {
				found = b
				return false
			}
		}

		return true
	})

	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownThing, thingID)
	}

	return found, nil
}

// scan opens boards on matching ports. With reenumerate set, registered boards walk their things
// again.
func (r *Registry) scan(ctx context.Context, reenumerate bool) error {
	r.pruneDisconnected()

	ports, err := r.lister.List(ctx)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}

	for _, port := range ports {
		sel, ok := MatchPort(r.selectors, port)
		if !ok {
			continue
		}

		id := transport.BoardID(port.Path)
		if b, ok := r.boards.Load(id); ok {
			if !reenumerate {
				continue
			}
			if err := b.Enumerate(ctx); err != nil {
				r.logger.Warn("re-enumerate failed", "board", id, "error", err)
			}

			continue
		}

		r.openBoard(ctx, port, sel)
	}

	return nil
}

func (r *Registry) openBoard(ctx context.Context, port transport.PortInfo, sel Selector) {
	opts := slices.Concat(r.boardOpts, []board.Option{
		board.WithBaudRate(sel.Baud()),
		board.WithStateChangeHandler(r.onStateChange),
	})

	b, err := board.New(r.taskMgr.Context(), port.Path, r.dir, opts...)
	if err != nil {
		r.logger.Error("create board failed", "path", port.Path, "error", err)
		return
	}

	if _, loaded := r.boards.LoadOrStore(b.ID(), b); loaded {
		return
	}

	r.logger.Info("board added", "board", b.ID(), "path", port.Path, "baudRate", sel.Baud())

	if err := b.Open(ctx); err != nil {
		r.remove(b.ID(), b)
		r.logger.Warn("open board failed", "board", b.ID(), "error", err)
	}
}

// onStateChange runs on the board's session goroutine, so the board is closed from a task.
func (r *Registry) onStateChange(b *board.Board, prev board.State, state board.State) {
	r.logger.Debug("board state changed", "board", b.ID(), "from", prev, "to", state)

	if state != board.Disconnected || !r.remove(b.ID(), b) {
		return
	}

	r.logger.Info("board pruned", "board", b.ID(), "error", b.LastError())

	if err := r.taskMgr.Start("release-"+b.ID(), func(context.Context) { _ = b.Close() }); err != nil {
		r.logger.Debug("release board skipped", "board", b.ID(), "error", err)
	}
}

// remove deletes id only while it still maps to b.
func (r *Registry) remove(id string, b *board.Board) bool {
	removed := false
	r.boards.Compute(id, func(old *board.Board, loaded bool) (*board.Board, bool) {
		if !loaded {
			return old, true
		}
		if old != b {
			return old, false
		}
		removed = true

		return old, true
	})

	return removed
}

func (r *Registry) pruneDisconnected() {
	r.boards.Range(func(id string, b *board.Board) bool {
		if b.State() == board.Disconnected && r.remove(id, b) {
			r.logger.Info("board pruned", "board", id)
			_ = b.Close()
		}

		return true
	})
}

func (r *Registry) pruneNotReady() {
	r.boards.Range(func(id string, b *board.Board) bool {
		if b.State() != board.Ready && r.remove(id, b) {
			r.logger.Info("board pruned", "board", id, "state", b.State())
			_ = b.Close()
		}

		return true
	})
}
