package board

import (
	"fmt"

	"github.com/arloliu/go-packedserial/opcode"
)

// Thing is a sensor or actuator exposed by a board.
type Thing struct {
	Index         uint8
	ID            string
	Type          opcode.ThingType
	Name          string
	Description   string
	PropertyCount uint8
	EventCount    uint8
	ActionCount   uint8

	properties []*Property
	byName     map[string]*Property
}

// Property is a typed value of a thing.
type Property struct {
	Index       uint8
	Type        opcode.PropertyType
	Name        string
	Description string
	Value       any
}

func thingID(displayName string, index uint8) string {
	return fmt.Sprintf("%s-%d", displayName, index)
}

func newThing(displayName string, d *ThingDetail) *Thing {
	return &Thing{
		Index:         d.ThingIdx,
		ID:            thingID(displayName, d.ThingIdx),
		Type:          d.ThingType,
		Name:          d.Name,
		Description:   d.Description,
		PropertyCount: d.PropertyCount,
		EventCount:    d.EventCount,
		ActionCount:   d.ActionCount,
		properties:    make([]*Property, 0, d.PropertyCount),
		byName:        make(map[string]*Property, d.PropertyCount),
	}
}

func (t *Thing) addProperty(p *Property) {
	t.properties = append(t.properties, p)
	t.byName[p.Name] = p
}

// Property returns the property with the given name.
func (t *Thing) Property(name string) (*Property, bool) {
	p, ok := t.byName[name]
	return p, ok
}

func (t *Thing) propertyByIndex(index uint8) (*Property, bool) {
	if int(index) >= len(t.properties) {
		return nil, false
	}

	p := t.properties[index]

	return p, p.Index == index
}

// Properties returns the properties in index order.
func (t *Thing) Properties() []*Property {
	out := make([]*Property, len(t.properties))
	copy(out, t.properties)

	return out
}

func (t *Thing) descriptor(boardID string) ThingDescriptor {
	return ThingDescriptor{
		ID:          t.ID,
		BoardID:     boardID,
		Index:       t.Index,
		Type:        t.Type,
		TypeName:    t.Type.String(),
		Name:        t.Name,
		Description: t.Description,
		EventCount:  t.EventCount,
		ActionCount: t.ActionCount,
	}
}

func (p *Property) descriptor() PropertyDescriptor {
	return PropertyDescriptor{
		Index:       p.Index,
		Type:        p.Type,
		TypeName:    p.Type.String(),
		Name:        p.Name,
		Description: p.Description,
		Value:       p.Value,
	}
}

// Cursor is the progress of an enumeration walk.
type Cursor struct {
	ThingIndex    uint8 `yaml:"thingIndex" json:"thingIndex"`
	ThingCount    uint8 `yaml:"thingCount" json:"thingCount"`
	PropertyIndex uint8 `yaml:"propertyIndex" json:"propertyIndex"`
	PropertyCount uint8 `yaml:"propertyCount" json:"propertyCount"`
	// Pairing is set once pair was sent for the thing under construction.
	Pairing bool `yaml:"pairing" json:"pairing"`
}

// Snapshot is a point-in-time copy of a board's state.
type Snapshot struct {
	ID          string          `yaml:"id" json:"id"`
	Path        string          `yaml:"path" json:"path"`
	Name        string          `yaml:"name" json:"name"`
	Description string          `yaml:"description,omitempty" json:"description,omitempty"`
	State       string          `yaml:"state" json:"state"`
	Cursor      *Cursor         `yaml:"cursor,omitempty" json:"cursor,omitempty"`
	Things      []ThingSnapshot `yaml:"things" json:"things"`
}

// ThingSnapshot is a revealed thing with its properties and cached values.
type ThingSnapshot struct {
	ThingDescriptor `yaml:",inline"`
	Properties      []PropertyDescriptor `yaml:"properties" json:"properties"`
}
