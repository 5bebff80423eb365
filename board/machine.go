package board

import (
	"fmt"
	"slices"

	"github.com/arloliu/go-packedserial/logger"
	"github.com/arloliu/go-packedserial/opcode"
)

// machine is the enumeration and pairing state machine of one board.
//
// It is not safe for concurrent use: the session drives it from a single goroutine. It never
// blocks except inside send, which must write one unframed payload to the board.
type machine struct {
	boardID     string
	name        string
	description string

	dir     Directory
	send    func(payload []byte) error
	state   *stateMgr
	logger  logger.Logger
	metrics *Metrics

	thingCount uint8
	cursor     *Cursor
	building   *Thing
	things     map[uint8]*Thing

	// seq counts enumeration requests; the session re-arms the response timeout when it changes
	seq uint64
}

func newMachine(boardID string, dir Directory, send func([]byte) error, sm *stateMgr, l logger.Logger, metrics *Metrics) *machine {
	return &machine{
		boardID: boardID,
		name:    "unknown-" + boardID,
		dir:     dir,
		send:    send,
		state:   sm,
		logger:  l,
		metrics: metrics,
		things:  make(map[uint8]*Thing),
	}
}

// awaiting reports whether an enumeration response is outstanding.
func (m *machine) awaiting() bool {
	return m.state.State().IsEnumerating()
}

// start sends defineAdapter once the settle delay has elapsed.
func (m *machine) start() error {
	payload, err := encodeDefineAdapter()
	if err != nil {
		return err
	}

	if err := m.request(payload); err != nil {
		return err
	}

	m.state.to(AwaitingAdapterDetail)

	return nil
}

// restart walks the things again from index 0 without reopening the transport. Already revealed
// things stay revealed; reveal is idempotent by id.
func (m *machine) restart() error {
	if m.state.State() != Ready {
		return fmt.Errorf("%w: state %s", ErrEnumerationInProgress, m.state.State())
	}

	if m.thingCount == 0 {
		m.logger.Debug("re-enumeration skipped, board has no things")
		return nil
	}

	m.cursor = &Cursor{ThingCount: m.thingCount}
	m.building = nil

	return m.requestThing(0)
}

// handleFrame processes one unframed response. Decode problems are logged and the frame is
// dropped; the returned error is non-nil only when the session must end.
func (m *machine) handleFrame(frame []byte) error {
	msg, err := DecodeMessage(frame)
	if err != nil {
		m.metrics.incFrameErrCount()
		m.logger.Warn("drop undecodable frame", "error", err, "frame", fmt.Sprintf("%x", frame))

		return nil
	}

	state := m.state.State()
	if !state.IsConnected() {
		m.logger.Debug("drop frame received before the board was queried", "opcode", msg.Opcode(), "state", state)
		return nil
	}

	switch msg := msg.(type) {
	case *AdapterDetail:
		if state != AwaitingAdapterDetail {
			return m.outOfOrder(msg, state)
		}

		return m.onAdapterDetail(msg)

	case *ThingDetail:
		if state != EnumeratingThing || msg.ThingIdx != m.cursor.ThingIndex {
			return m.outOfOrder(msg, state)
		}

		return m.onThingDetail(msg)

	case *PropertyDetail:
		if state != EnumeratingProperty || m.cursor.Pairing ||
			msg.ThingIdx != m.cursor.ThingIndex || msg.PropertyIdx != m.cursor.PropertyIndex {
			return m.outOfOrder(msg, state)
		}

		return m.onPropertyDetail(msg)

	case *Paired:
		if state != EnumeratingProperty || !m.cursor.Pairing || msg.ThingIdx != m.cursor.ThingIndex {
			return m.outOfOrder(msg, state)
		}

		return m.onPaired()

	case *PropertyStatus:
		m.onPropertyStatus(msg)

	case *Unpaired:
		m.logger.Info("thing unpaired", "thingIdx", msg.ThingIdx)

	case *ErrorResponse:
		m.logger.Error("board reported an error", "code", msg.Code, "state", state)

	case *Unsolicited:
		m.logger.Debug("ignore unrequested response", "opcode", msg.Op)
	}

	return nil
}

func (m *machine) outOfOrder(msg Message, state State) error {
	m.metrics.incOutOfOrderCount()

	if m.cursor != nil {
		return fmt.Errorf("%w: %s in state %s (thing %d, property %d)",
			ErrOutOfOrderResponse, msg.Opcode(), state, m.cursor.ThingIndex, m.cursor.PropertyIndex)
	}

	return fmt.Errorf("%w: %s in state %s", ErrOutOfOrderResponse, msg.Opcode(), state)
}

func (m *machine) onAdapterDetail(d *AdapterDetail) error {
	m.name = d.Name + "-" + m.boardID
	m.description = d.Description
	m.thingCount = d.ThingCount
	m.logger.Info("adapter detail", "name", m.name, "description", d.Description, "thingCount", d.ThingCount)

	if d.ThingCount == 0 {
		m.toReady()
		return nil
	}

	m.cursor = &Cursor{ThingCount: d.ThingCount}

	return m.requestThing(0)
}

func (m *machine) onThingDetail(d *ThingDetail) error {
	m.building = newThing(m.name, d)
	m.cursor.PropertyIndex = 0
	m.cursor.PropertyCount = d.PropertyCount
	m.cursor.Pairing = false

	m.logger.Debug("thing detail",
		"id", m.building.ID, "type", d.ThingType, "name", d.Name, "propertyCount", d.PropertyCount)

	if !d.ThingType.IsKnown() {
		m.logger.Warn("unknown thing type", "id", m.building.ID, "type", uint8(d.ThingType))
	}

	if d.PropertyCount == 0 {
		return m.requestPair()
	}

	return m.requestProperty()
}

func (m *machine) onPropertyDetail(d *PropertyDetail) error {
	m.building.addProperty(&Property{
		Index:       d.PropertyIdx,
		Type:        d.PropertyType,
		Name:        d.Name,
		Description: d.Description,
		Value:       d.Value,
	})

	m.logger.Debug("property detail",
		"thing", m.building.ID, "name", d.Name, "type", d.PropertyType, "value", d.Value)

	m.cursor.PropertyIndex++
	if m.cursor.PropertyIndex >= m.cursor.PropertyCount {
		return m.requestPair()
	}

	return m.requestProperty()
}

func (m *machine) onPaired() error {
	m.reveal(m.building)
	m.building = nil

	m.cursor.ThingIndex++
	m.cursor.Pairing = false

	if m.cursor.ThingIndex < m.cursor.ThingCount {
		return m.requestThing(m.cursor.ThingIndex)
	}

	m.logger.Info("thing enumeration complete", "name", m.name, "things", m.cursor.ThingCount)
	m.toReady()

	return nil
}

// reveal publishes t to the directory in one transaction, unless a thing with the same id is
// already there.
func (m *machine) reveal(t *Thing) {
	skipped := false

	err := m.dir.Update(func(tx DirectoryTx) error {
		if tx.HasThing(t.ID) {
			skipped = true
			return nil
		}

		if err := tx.AddThing(t.descriptor(m.boardID)); err != nil {
			return err
		}

		for _, p := range t.properties {
			if err := tx.AddProperty(t.ID, p.descriptor()); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		m.logger.Error("reveal thing failed", "id", t.ID, "error", err)
		return
	}

	if skipped {
		m.logger.Debug("thing already revealed", "id", t.ID)
		if _, owned := m.things[t.Index]; owned {
			return
		}
	} else {
		m.metrics.incThingRevealCount()
		m.logger.Info("thing revealed", "id", t.ID, "properties", len(t.properties))
	}

	m.things[t.Index] = t
}

func (m *machine) onPropertyStatus(s *PropertyStatus) {
	thing, ok := m.things[s.ThingIdx]
	if !ok {
		m.logger.Warn("property status for unknown thing, ignoring", "thingIdx", s.ThingIdx)
		return
	}

	prop, ok := thing.propertyByIndex(s.PropertyIdx)
	if !ok {
		m.logger.Warn("property status for unknown property, ignoring",
			"thing", thing.ID, "propertyIdx", s.PropertyIdx)

		return
	}

	value, err := s.DecodeValue(prop.Type)
	if err != nil {
		m.metrics.incFrameErrCount()
		m.logger.Warn("drop undecodable property status", "thing", thing.ID, "property", prop.Name, "error", err)

		return
	}

	prop.Value = value
	m.metrics.incStatusUpdateCount()

	if err := m.dir.SetPropertyValue(thing.ID, prop.Name, value); err != nil {
		m.logger.Warn("directory rejected property value", "thing", thing.ID, "property", prop.Name, "error", err)
	}
}

// disconnect revokes every owned thing and drops enumeration progress.
func (m *machine) disconnect() {
	indices := make([]uint8, 0, len(m.things))
	for idx := range m.things {
		indices = append(indices, idx)
	}
	slices.Sort(indices)

	for _, idx := range indices {
		id := m.things[idx].ID
		if err := m.dir.RemoveThing(id); err != nil {
			m.logger.Warn("revoke thing failed", "id", id, "error", err)
		}
	}

	clear(m.things)
	m.cursor = nil
	m.building = nil
	m.state.to(Disconnected)
}

func (m *machine) toReady() {
	m.cursor = nil
	m.building = nil
	m.state.to(Ready)
}

func (m *machine) lookup(thingID string, propertyName string) (*Thing, *Property, error) {
	if !m.state.State().IsConnected() {
		return nil, nil, fmt.Errorf("%w: state %s", ErrNotReady, m.state.State())
	}

	for _, t := range m.things {
		if t.ID != thingID {
			continue
		}

		p, ok := t.Property(propertyName)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s on %s", ErrUnknownProperty, propertyName, thingID)
		}

		return t, p, nil
	}

	return nil, nil, fmt.Errorf("%w: %s", ErrUnknownThing, thingID)
}

// setProperty asks the board to change a value. The cached value changes only when the board
// confirms with propertyStatus.
func (m *machine) setProperty(thingID string, propertyName string, value any) error {
	t, p, err := m.lookup(thingID, propertyName)
	if err != nil {
		return err
	}

	payload, err := encodeSetProperty(t.Index, p.Index, p.Type, value)
	if err != nil {
		return err
	}

	return m.send(payload)
}

// getProperty asks the board to report a value with propertyStatus.
func (m *machine) getProperty(thingID string, propertyName string) error {
	t, p, err := m.lookup(thingID, propertyName)
	if err != nil {
		return err
	}

	payload, err := encodeGetProperty(t.Index, p.Index)
	if err != nil {
		return err
	}

	return m.send(payload)
}

// unpair asks the board to stop reporting a thing.
func (m *machine) unpair(thingIdx uint8) error {
	if !m.state.State().IsConnected() {
		return fmt.Errorf("%w: state %s", ErrNotReady, m.state.State())
	}

	if _, ok := m.things[thingIdx]; !ok {
		return fmt.Errorf("%w: index %d", ErrUnknownThing, thingIdx)
	}

	payload, err := encodePair(opcode.Unpair, thingIdx)
	if err != nil {
		return err
	}

	return m.send(payload)
}

func (m *machine) requestThing(thingIdx uint8) error {
	m.cursor.ThingIndex = thingIdx
	m.cursor.PropertyIndex = 0
	m.cursor.PropertyCount = 0
	m.cursor.Pairing = false

	payload, err := encodeDefineThing(thingIdx)
	if err != nil {
		return err
	}

	if err := m.request(payload); err != nil {
		return err
	}

	m.state.to(EnumeratingThing)

	return nil
}

func (m *machine) requestProperty() error {
	payload, err := encodeDefineProperty(m.cursor.ThingIndex, m.cursor.PropertyIndex)
	if err != nil {
		return err
	}

	if err := m.request(payload); err != nil {
		return err
	}

	m.state.to(EnumeratingProperty)

	return nil
}

func (m *machine) requestPair() error {
	m.cursor.Pairing = true

	payload, err := encodePair(opcode.Pair, m.cursor.ThingIndex)
	if err != nil {
		return err
	}

	m.logger.Debug("pairing thing", "id", m.building.ID)

	if err := m.request(payload); err != nil {
		return err
	}

	m.state.to(EnumeratingProperty)

	return nil
}

// request sends an enumeration request, for which a response is awaited.
func (m *machine) request(payload []byte) error {
	m.seq++

	return m.send(payload)
}

func (m *machine) snapshot(path string) Snapshot {
	snap := Snapshot{
		ID:          m.boardID,
		Path:        path,
		Name:        m.name,
		Description: m.description,
		State:       m.state.State().String(),
		Things:      make([]ThingSnapshot, 0, len(m.things)),
	}

	if m.cursor != nil {
		c := *m.cursor
		snap.Cursor = &c
	}

	for _, t := range m.things {
		ts := ThingSnapshot{
			ThingDescriptor: t.descriptor(m.boardID),
			Properties:      make([]PropertyDescriptor, 0, len(t.properties)),
		}
		for _, p := range t.properties {
			ts.Properties = append(ts.Properties, p.descriptor())
		}

		snap.Things = append(snap.Things, ts)
	}

	slices.SortFunc(snap.Things, func(a, b ThingSnapshot) int {
		return int(a.Index) - int(b.Index)
	})

	return snap
}
