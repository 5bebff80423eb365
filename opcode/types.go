package opcode

import (
	"fmt"

	"github.com/arloliu/go-packedserial/simplepack"
)

// ThingType classifies a thing reported by detailThingByIdx.
type ThingType uint8

const (
	Thing              ThingType = 0x00
	OnOffSwitch        ThingType = 0x01
	MultilevelSwitch   ThingType = 0x02
	BinarySensor       ThingType = 0x03
	MultilevelSensor   ThingType = 0x04
	SmartPlug          ThingType = 0x05
	OnOffLight         ThingType = 0x06
	DimmableLight      ThingType = 0x07
	OnOffColorLight    ThingType = 0x08
	DimmableColorLight ThingType = 0x09

	UnknownThingType ThingType = 0xFF
)

var thingTypeNames = map[ThingType]string{
	Thing:              "thing",
	OnOffSwitch:        "onOffSwitch",
	MultilevelSwitch:   "multilevelSwitch",
	BinarySensor:       "binarySensor",
	MultilevelSensor:   "multilevelSensor",
	SmartPlug:          "smartPlug",
	OnOffLight:         "onOffLight",
	DimmableLight:      "dimmableLight",
	OnOffColorLight:    "onOffColorLight",
	DimmableColorLight: "dimmableColorLight",
}

var thingTypeByName = invert(thingTypeNames)

// String returns the thing type tag, or "unknown".
func (t ThingType) String() string {
	if name, ok := thingTypeNames[t]; ok {
		return name
	}

	return unknownName
}

// IsKnown reports whether t is a defined thing type.
func (t ThingType) IsKnown() bool {
	_, ok := thingTypeNames[t]
	return ok
}

// ParseThingType returns the thing type for a tag.
func ParseThingType(name string) (ThingType, error) {
	if t, ok := thingTypeByName[name]; ok {
		return t, nil
	}

	return UnknownThingType, fmt.Errorf("%w: thing type %q", ErrUnknownName, name)
}

// PropertyType is the value type of a property, reported by detailPropertyByIdx.
type PropertyType uint8

const (
	Boolean PropertyType = 0x00
	Number  PropertyType = 0x01
	Text    PropertyType = 0x02

	UnknownPropertyType PropertyType = 0xFF
)

var propertyTypeNames = map[PropertyType]string{
	Boolean: "boolean",
	Number:  "number",
	Text:    "string",
}

var propertyTypeByName = invert(propertyTypeNames)

// boolean travels as uint8, number as a signed 32-bit integer.
var propertyFieldTypes = map[PropertyType]simplepack.FieldType{
	Boolean: simplepack.UInt8,
	Number:  simplepack.Int32,
	Text:    simplepack.String,
}

// String returns the property type tag, or "unknown".
func (p PropertyType) String() string {
	if name, ok := propertyTypeNames[p]; ok {
		return name
	}

	return unknownName
}

// IsKnown reports whether p is a defined property type.
func (p PropertyType) IsKnown() bool {
	_, ok := propertyTypeNames[p]
	return ok
}

// FieldType returns the wire field type carrying a value of this property type.
// The boolean result is false for an unknown property type.
func (p PropertyType) FieldType() (simplepack.FieldType, bool) {
	ft, ok := propertyFieldTypes[p]
	return ft, ok
}

// ParsePropertyType returns the property type for a tag.
func ParsePropertyType(name string) (PropertyType, error) {
	if p, ok := propertyTypeByName[name]; ok {
		return p, nil
	}

	return UnknownPropertyType, fmt.Errorf("%w: property type %q", ErrUnknownName, name)
}
