package board

import "github.com/arloliu/go-packedserial/opcode"

// Directory is the host-side registry that boards reveal their things to.
//
// Update runs fn as one atomic transaction: a reader of the directory observes either none or all
// of the things and properties added inside it. A board only reveals a thing once every declared
// property has been enumerated, and it does so in a single Update.
type Directory interface {
	Update(fn func(tx DirectoryTx) error) error
	RemoveThing(thingID string) error
	// SetPropertyValue stores a new cached value and emits a change notification.
	SetPropertyValue(thingID string, propertyName string, value any) error
}

// DirectoryTx is the mutation view passed to Directory.Update.
type DirectoryTx interface {
	HasThing(thingID string) bool
	AddThing(desc ThingDescriptor) error
	AddProperty(thingID string, desc PropertyDescriptor) error
}

// ThingDescriptor describes a revealed thing.
type ThingDescriptor struct {
	ID          string           `yaml:"id" json:"id"`
	BoardID     string           `yaml:"board" json:"board"`
	Index       uint8            `yaml:"index" json:"index"`
	Type        opcode.ThingType `yaml:"-" json:"-"`
	TypeName    string           `yaml:"type" json:"type"`
	Name        string           `yaml:"name" json:"name"`
	Description string           `yaml:"description,omitempty" json:"description,omitempty"`
	EventCount  uint8            `yaml:"events,omitempty" json:"events,omitempty"`
	ActionCount uint8            `yaml:"actions,omitempty" json:"actions,omitempty"`
}

// PropertyDescriptor describes a property of a revealed thing.
type PropertyDescriptor struct {
	Index       uint8               `yaml:"index" json:"index"`
	Type        opcode.PropertyType `yaml:"-" json:"-"`
	TypeName    string              `yaml:"type" json:"type"`
	Name        string              `yaml:"name" json:"name"`
	Description string              `yaml:"description,omitempty" json:"description,omitempty"`
	Value       any                 `yaml:"value" json:"value"`
}
