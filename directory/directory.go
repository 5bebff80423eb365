// Package directory is an in-memory registry of the things revealed by boards.
//
// Directory implements board.Directory. A reveal (one Update) is applied under a single write lock,
// so readers see either none or all of a thing's properties. Every mutation is published as a Change
// to subscribers and, when configured, replicated to a Mirror by a background worker.
package directory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-packedserial/board"
	"github.com/arloliu/go-packedserial/internal/queue"
	"github.com/arloliu/go-packedserial/internal/task"
	"github.com/arloliu/go-packedserial/logger"
)

var (
	ErrUnknownThing    = errors.New("directory: unknown thing")
	ErrUnknownProperty = errors.New("directory: unknown property")
	ErrDuplicateThing  = errors.New("directory: thing already exists")
	ErrDuplicateName   = errors.New("directory: duplicate property name")
)

const defaultMirrorTimeout = 2 * time.Second

// ChangeKind classifies a Change.
type ChangeKind string

const (
	ThingAdded      ChangeKind = "thing-added"
	ThingRemoved    ChangeKind = "thing-removed"
	PropertyChanged ChangeKind = "property-changed"
)

// Change is a notification of one directory mutation.
type Change struct {
	ID       uuid.UUID  `json:"id" yaml:"id"`
	Kind     ChangeKind `json:"kind" yaml:"kind"`
	ThingID  string     `json:"thingId" yaml:"thingId"`
	Property string     `json:"property,omitempty" yaml:"property,omitempty"`
	Value    any        `json:"value,omitempty" yaml:"value,omitempty"`
	Time     time.Time  `json:"time" yaml:"time"`
}

// Mirror replicates the directory to an external store.
type Mirror interface {
	PutThing(ctx context.Context, thing board.ThingSnapshot) error
	DeleteThing(ctx context.Context, thingID string) error
	Publish(ctx context.Context, change Change) error
}

type mirrorOp struct {
	change Change
	thing  board.ThingSnapshot
}

type entry struct {
	desc  board.ThingDescriptor
	props []board.PropertyDescriptor
}

func (e *entry) snapshot() board.ThingSnapshot {
	return board.ThingSnapshot{ThingDescriptor: e.desc, Properties: slices.Clone(e.props)}
}

// Directory is an in-memory thing directory. It is safe for concurrent use.
type Directory struct {
	mu     sync.RWMutex
	things map[string]*entry

	subMu   sync.Mutex
	subs    map[uint64]chan Change
	nextSub uint64
	dropped atomic.Uint64

	mirror        Mirror
	mirrorTimeout time.Duration
	mirrorErrs    atomic.Uint64
	outbox        queue.Queue[mirrorOp]
	wake          chan struct{}
	taskMgr       *task.Manager

	logger logger.Logger
	now    func() time.Time
}

var _ board.Directory = (*Directory)(nil)

// Option configures a Directory.
type Option func(d *Directory)

// WithMirror replicates every change to m.
func WithMirror(m Mirror) Option {
	return func(d *Directory) { d.mirror = m }
}

// WithMirrorTimeout bounds each mirror call. The default is 2s.
func WithMirrorTimeout(timeout time.Duration) Option {
	return func(d *Directory) {
		if timeout > 0 {
			d.mirrorTimeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Directory) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock sets the time source of change timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Directory) {
		if now != nil {
			d.now = now
		}
	}
}

// New creates an empty directory. The mirror worker, if any, runs until ctx is done or Close.
func New(ctx context.Context, opts ...Option) *Directory {
	d := &Directory{
		things:        make(map[string]*entry),
		subs:          make(map[uint64]chan Change),
		mirrorTimeout: defaultMirrorTimeout,
		logger:        logger.GetLogger(),
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	d.logger = d.logger.With("component", "directory")

	if d.mirror != nil {
		d.outbox = queue.NewLockFree[mirrorOp]()
		d.wake = make(chan struct{}, 1)
		d.taskMgr = task.NewManager(ctx, d.logger)
		_ = d.taskMgr.Start("mirror", d.runMirror)
	}

	return d
}

// Close stops the mirror worker after it has replicated every queued change.
func (d *Directory) Close() error {
	if d.taskMgr != nil {
		d.taskMgr.Stop()
		d.taskMgr.Wait()
	}

	d.subMu.Lock()
	defer d.subMu.Unlock()

	for id, ch := range d.subs {
		close(ch)
		delete(d.subs, id)
	}

	return nil
}

type tx struct {
	d      *Directory
	staged []*entry
}

func (t *tx) HasThing(thingID string) bool {
	_, ok := t.d.things[thingID]
	return ok || t.find(thingID) != nil
}

func (t *tx) find(thingID string) *entry {
	for _, e := range t.staged {
		if e.desc.ID == thingID {
			return e
		}
	}

	return nil
}

func (t *tx) AddThing(desc board.ThingDescriptor) error {
	if t.HasThing(desc.ID) {
		return fmt.Errorf("%w: %s", ErrDuplicateThing, desc.ID)
	}

	t.staged = append(t.staged, &entry{desc: desc})

	return nil
}

func (t *tx) AddProperty(thingID string, desc board.PropertyDescriptor) error {
	e := t.find(thingID)
	if e == nil {
		return fmt.Errorf("%w: %s is not added in this update", ErrUnknownThing, thingID)
	}

	if slices.ContainsFunc(e.props, func(p board.PropertyDescriptor) bool { return p.Name == desc.Name }) {
		return fmt.Errorf("%w: %s on %s", ErrDuplicateName, desc.Name, thingID)
	}

	e.props = append(e.props, desc)

	return nil
}

// Update applies fn atomically. If fn returns an error nothing is applied.
func (d *Directory) Update(fn func(tx board.DirectoryTx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t := &tx{d: d}
	if err := fn(t); err != nil {
		return err
	}

	for _, e := range t.staged {
		d.things[e.desc.ID] = e
		d.emit(Change{Kind: ThingAdded, ThingID: e.desc.ID}, e.snapshot())
	}

	return nil
}

// RemoveThing removes a thing and its properties.
func (d *Directory) RemoveThing(thingID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.things[thingID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownThing, thingID)
	}

	delete(d.things, thingID)
	d.emit(Change{Kind: ThingRemoved, ThingID: thingID}, board.ThingSnapshot{})

	return nil
}

// SetPropertyValue stores a new cached value and emits a PropertyChanged notification.
func (d *Directory) SetPropertyValue(thingID string, propertyName string, value any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.things[thingID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownThing, thingID)
	}

	idx := slices.IndexFunc(e.props, func(p board.PropertyDescriptor) bool { return p.Name == propertyName })
	if idx < 0 {
		return fmt.Errorf("%w: %s on %s", ErrUnknownProperty, propertyName, thingID)
	}

	e.props[idx].Value = value
	d.emit(Change{Kind: PropertyChanged, ThingID: thingID, Property: propertyName, Value: value}, e.snapshot())

	return nil
}

// Things returns copies of every thing ordered by id.
func (d *Directory) Things() []board.ThingSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]board.ThingSnapshot, 0, len(d.things))
	for _, e := range d.things {
		out = append(out, e.snapshot())
	}

	slices.SortFunc(out, func(a, b board.ThingSnapshot) int {
		return cmp.Compare(a.ID, b.ID)
	})

	return out
}

// Thing returns a copy of one thing.
func (d *Directory) Thing(thingID string) (board.ThingSnapshot, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.things[thingID]
	if !ok {
		return board.ThingSnapshot{}, false
	}

	return e.snapshot(), true
}

// Property returns one property of a thing.
func (d *Directory) Property(thingID string, propertyName string) (board.PropertyDescriptor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.things[thingID]
	if !ok {
		return board.PropertyDescriptor{}, fmt.Errorf("%w: %s", ErrUnknownThing, thingID)
	}

	for _, p := range e.props {
		if p.Name == propertyName {
			return p, nil
		}
	}

	return board.PropertyDescriptor{}, fmt.Errorf("%w: %s on %s", ErrUnknownProperty, propertyName, thingID)
}

// Len returns the number of things.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.things)
}

// Subscribe returns a channel receiving every subsequent change, and a function that cancels the
// subscription and closes the channel. A subscriber whose buffer is full misses changes.
func (d *Directory) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer < 1 {
		buffer = 1
	}

	ch := make(chan Change, buffer)

	d.subMu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = ch
	d.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			d.subMu.Lock()
			defer d.subMu.Unlock()

			if _, ok := d.subs[id]; ok {
				delete(d.subs, id)
				close(ch)
			}
		})
	}

	return ch, cancel
}

// Dropped returns the number of changes missed by slow subscribers.
func (d *Directory) Dropped() uint64 {
	return d.dropped.Load()
}

// MirrorErrors returns the number of failed mirror calls.
func (d *Directory) MirrorErrors() uint64 {
	return d.mirrorErrs.Load()
}

// Dump writes every thing as YAML.
func (d *Directory) Dump(w io.Writer) error {
	doc := struct {
		Things []board.ThingSnapshot `yaml:"things"`
	}{Things: d.Things()}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("directory: dump: %w", err)
	}

	return enc.Close()
}

// emit must be called with d.mu held, which keeps notifications in mutation order.
func (d *Directory) emit(change Change, thing board.ThingSnapshot) {
	change.ID = uuid.New()
	change.Time = d.now()

	d.subMu.Lock()
	for _, ch := range d.subs {
		select {
		case ch <- change:
		default:
			d.dropped.Add(1)
		}
	}
	d.subMu.Unlock()

	if d.outbox != nil {
		d.outbox.Enqueue(mirrorOp{change: change, thing: thing})

		select {
		case d.wake <- struct{}{}:
		default:
		}
	}
}

// runMirror replicates queued changes. Queued changes are still flushed after ctx is done; each
// call is bounded by the mirror timeout.
func (d *Directory) runMirror(ctx context.Context) {
	flushCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			d.flushMirror(flushCtx)
			return
		case <-d.wake:
			d.flushMirror(flushCtx)
		}
	}
}

func (d *Directory) flushMirror(ctx context.Context) {
	for {
		op, ok := d.outbox.Dequeue()
		if !ok {
			return
		}

		opCtx, cancel := context.WithTimeout(ctx, d.mirrorTimeout)
		err := d.applyMirror(opCtx, op)
		cancel()

		if err != nil {
			d.mirrorErrs.Add(1)
			d.logger.Warn("mirror update failed", "kind", op.change.Kind, "thing", op.change.ThingID, "error", err)
		}
	}
}

func (d *Directory) applyMirror(ctx context.Context, op mirrorOp) error {
	var err error

	switch op.change.Kind {
	case ThingRemoved:
		err = d.mirror.DeleteThing(ctx, op.change.ThingID)
	default:
		err = d.mirror.PutThing(ctx, op.thing)
	}

	return errors.Join(err, d.mirror.Publish(ctx, op.change))
}
