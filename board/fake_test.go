package board

import (
	"errors"
	"slices"
	"sync"
)

type setCall struct {
	thingID  string
	property string
	value    any
}

// fakeDir is an in-memory Directory recording every mutation.
type fakeDir struct {
	mu        sync.Mutex
	things    map[string]ThingDescriptor
	props     map[string][]PropertyDescriptor
	order     []string
	removed   []string
	sets      []setCall
	updates   int
	failNext  error
	addCalled int
}

func newFakeDir() *fakeDir {
	return &fakeDir{
		things: make(map[string]ThingDescriptor),
		props:  make(map[string][]PropertyDescriptor),
	}
}

type fakeTx struct {
	d      *fakeDir
	things []ThingDescriptor
	props  map[string][]PropertyDescriptor
}

func (tx *fakeTx) HasThing(thingID string) bool {
	_, ok := tx.d.things[thingID]
	return ok
}

func (tx *fakeTx) AddThing(desc ThingDescriptor) error {
	tx.d.addCalled++
	tx.things = append(tx.things, desc)

	return nil
}

func (tx *fakeTx) AddProperty(thingID string, desc PropertyDescriptor) error {
	if !slices.ContainsFunc(tx.things, func(t ThingDescriptor) bool { return t.ID == thingID }) {
		return errors.New("property added before its thing")
	}
	tx.props[thingID] = append(tx.props[thingID], desc)

	return nil
}

func (d *fakeDir) Update(fn func(tx DirectoryTx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.updates++

	if err := d.failNext; err != nil {
		d.failNext = nil
		return err
	}

	tx := &fakeTx{d: d, props: make(map[string][]PropertyDescriptor)}
	if err := fn(tx); err != nil {
		return err
	}

	for _, t := range tx.things {
		d.things[t.ID] = t
		d.props[t.ID] = tx.props[t.ID]
		d.order = append(d.order, t.ID)
	}

	return nil
}

func (d *fakeDir) RemoveThing(thingID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.things, thingID)
	delete(d.props, thingID)
	d.removed = append(d.removed, thingID)

	return nil
}

func (d *fakeDir) SetPropertyValue(thingID string, propertyName string, value any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	props, ok := d.props[thingID]
	if !ok {
		return ErrUnknownThing
	}

	for i := range props {
		if props[i].Name == propertyName {
			props[i].Value = value
			d.sets = append(d.sets, setCall{thingID: thingID, property: propertyName, value: value})

			return nil
		}
	}

	return ErrUnknownProperty
}

func (d *fakeDir) thing(id string) (ThingDescriptor, []PropertyDescriptor, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.things[id]

	return t, slices.Clone(d.props[id]), ok
}

func (d *fakeDir) thingIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]string, 0, len(d.things))
	for id := range d.things {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return ids
}

func (d *fakeDir) revealOrder() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return slices.Clone(d.order)
}

func (d *fakeDir) removedIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return slices.Clone(d.removed)
}

func (d *fakeDir) setCalls() []setCall {
	d.mu.Lock()
	defer d.mu.Unlock()

	return slices.Clone(d.sets)
}

// recorder captures the payloads a machine sends.
type recorder struct {
	sent [][]byte
	err  error
}

func (r *recorder) send(payload []byte) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, slices.Clone(payload))

	return nil
}

func (r *recorder) last() []byte {
	if len(r.sent) == 0 {
		return nil
	}

	return r.sent[len(r.sent)-1]
}
