package board

import (
	"fmt"
	"math"

	"github.com/arloliu/go-packedserial/opcode"
	"github.com/arloliu/go-packedserial/simplepack"
)

// Response payload layouts. Every layout starts with the opcode byte.
var (
	opcodeSchema         = simplepack.New(simplepack.UInt8)
	adapterDetailSchema  = simplepack.New(simplepack.UInt8, simplepack.String, simplepack.String, simplepack.UInt8)
	thingDetailSchema    = simplepack.New(simplepack.UInt8, simplepack.UInt8, simplepack.UInt8, simplepack.String, simplepack.String, simplepack.UInt8, simplepack.UInt8, simplepack.UInt8)
	propertyDetailHeader = simplepack.New(simplepack.UInt8, simplepack.UInt8, simplepack.UInt8, simplepack.UInt8, simplepack.String, simplepack.String)
	propertyStatusHeader = simplepack.New(simplepack.UInt8, simplepack.UInt8, simplepack.UInt8)
	thingIndexSchema     = simplepack.New(simplepack.UInt8, simplepack.UInt8)
)

// Request payload layouts. pair and unpair share the defineThingByIdx layout; getProperty and
// the setProperty header share the definePropertyByIdx layout.
var (
	defineAdapterSchema  = simplepack.New(simplepack.UInt8)
	defineThingSchema    = simplepack.New(simplepack.UInt8, simplepack.UInt8)
	definePropertySchema = simplepack.New(simplepack.UInt8, simplepack.UInt8, simplepack.UInt8)
)

// Message is a decoded board response.
type Message interface {
	Opcode() opcode.Response
}

// AdapterDetail answers defineAdapter.
type AdapterDetail struct {
	Name        string
	Description string
	ThingCount  uint8
}

// ThingDetail answers defineThingByIdx.
type ThingDetail struct {
	ThingIdx      uint8
	ThingType     opcode.ThingType
	Name          string
	Description   string
	PropertyCount uint8
	EventCount    uint8
	ActionCount   uint8
}

// PropertyDetail answers definePropertyByIdx. Value holds the current value as bool, int32 or string.
type PropertyDetail struct {
	ThingIdx     uint8
	PropertyIdx  uint8
	PropertyType opcode.PropertyType
	Name         string
	Description  string
	Value        any
}

// PropertyStatus is an unsolicited or requested value update. The value's type is not carried in
// the frame; it is decoded with DecodeValue once the property is resolved.
type PropertyStatus struct {
	ThingIdx    uint8
	PropertyIdx uint8

	frame []byte
}

// Paired confirms pair(thingIdx).
type Paired struct {
	ThingIdx uint8
}

// Unpaired confirms unpair(thingIdx).
type Unpaired struct {
	ThingIdx uint8
}

// ErrorResponse reports a board-side error code.
type ErrorResponse struct {
	Code uint8
}

// Unsolicited is a known response the host never requests (event or action detail).
type Unsolicited struct {
	Op opcode.Response
}

func (*AdapterDetail) Opcode() opcode.Response  { return opcode.DetailAdapter }
func (*ThingDetail) Opcode() opcode.Response    { return opcode.DetailThingByIdx }
func (*PropertyDetail) Opcode() opcode.Response { return opcode.DetailPropertyByIdx }
func (*PropertyStatus) Opcode() opcode.Response { return opcode.PropertyStatus }
func (*Paired) Opcode() opcode.Response         { return opcode.Paired }
func (*Unpaired) Opcode() opcode.Response       { return opcode.Unpaired }
func (*ErrorResponse) Opcode() opcode.Response  { return opcode.Error }
func (u *Unsolicited) Opcode() opcode.Response  { return u.Op }

// DecodeMessage decodes one unframed response.
//
// The opcode byte is decoded first and selects the payload layout. detailPropertyByIdx is decoded
// in two passes: the header yields the property type, which selects the type of the trailing value.
func DecodeMessage(frame []byte) (Message, error) {
	head, _, err := opcodeSchema.UnpackPrefix(frame)
	if err != nil {
		return nil, err
	}

	op := opcode.Response(head[0].(uint8))

	switch op {
	case opcode.DetailAdapter:
		v, err := adapterDetailSchema.Unpack(frame)
		if err != nil {
			return nil, err
		}

		return &AdapterDetail{Name: v[1].(string), Description: v[2].(string), ThingCount: v[3].(uint8)}, nil

	case opcode.DetailThingByIdx:
		v, err := thingDetailSchema.Unpack(frame)
		if err != nil {
			return nil, err
		}

		return &ThingDetail{
			ThingIdx:      v[1].(uint8),
			ThingType:     opcode.ThingType(v[2].(uint8)),
			Name:          v[3].(string),
			Description:   v[4].(string),
			PropertyCount: v[5].(uint8),
			EventCount:    v[6].(uint8),
			ActionCount:   v[7].(uint8),
		}, nil

	case opcode.DetailPropertyByIdx:
		return decodePropertyDetail(frame)

	case opcode.PropertyStatus:
		v, _, err := propertyStatusHeader.UnpackPrefix(frame)
		if err != nil {
			return nil, err
		}

		return &PropertyStatus{ThingIdx: v[1].(uint8), PropertyIdx: v[2].(uint8), frame: frame}, nil

	case opcode.Paired, opcode.Unpaired, opcode.Error:
		v, err := thingIndexSchema.Unpack(frame)
		if err != nil {
			return nil, err
		}

		switch op {
		case opcode.Paired:
			return &Paired{ThingIdx: v[1].(uint8)}, nil
		case opcode.Unpaired:
			return &Unpaired{ThingIdx: v[1].(uint8)}, nil
		default:
			return &ErrorResponse{Code: v[1].(uint8)}, nil
		}

	case opcode.DetailEventByIdx, opcode.DetailActionByIdx:
		return &Unsolicited{Op: op}, nil

	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownOpcode, uint8(op))
	}
}

func decodePropertyDetail(frame []byte) (*PropertyDetail, error) {
	head, _, err := propertyDetailHeader.UnpackPrefix(frame)
	if err != nil {
		return nil, err
	}

	pt := opcode.PropertyType(head[3].(uint8))

	ft, ok := pt.FieldType()
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02x for property %q", ErrUnknownPropertyType, uint8(pt), head[4])
	}

	v, err := propertyDetailHeader.Extend(ft).Unpack(frame)
	if err != nil {
		return nil, err
	}

	return &PropertyDetail{
		ThingIdx:     v[1].(uint8),
		PropertyIdx:  v[2].(uint8),
		PropertyType: pt,
		Name:         v[4].(string),
		Description:  v[5].(string),
		Value:        fromWire(pt, v[6]),
	}, nil
}

// DecodeValue decodes the trailing value of the status frame as property type pt.
func (s *PropertyStatus) DecodeValue(pt opcode.PropertyType) (any, error) {
	ft, ok := pt.FieldType()
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownPropertyType, uint8(pt))
	}

	v, err := propertyStatusHeader.Extend(ft).Unpack(s.frame)
	if err != nil {
		return nil, err
	}

	return fromWire(pt, v[3]), nil
}

// fromWire converts a decoded wire value to its property representation.
func fromWire(pt opcode.PropertyType, v any) any {
	if pt == opcode.Boolean {
		b, _ := v.(uint8)
		return b != 0
	}

	return v
}

// toWire converts a property value supplied by a caller to the value packed on the wire.
//
// Booleans accept bool or any number (non-zero is true). Numbers accept any Go integer that fits
// int32 and integral float64 values, since JSON decoding yields float64. Strings accept string.
func toWire(pt opcode.PropertyType, v any) (any, error) {
	switch pt {
	case opcode.Boolean:
		switch val := v.(type) {
		case bool:
			if val {
				return uint8(1), nil
			}
			return uint8(0), nil
		case float64:
			if val != 0 {
				return uint8(1), nil
			}
			return uint8(0), nil
		default:
			nonZero, ok := intNonZero(v)
			if !ok {
				return nil, fmt.Errorf("%w: %T for boolean property", ErrInvalidValue, v)
			}
			if nonZero {
				return uint8(1), nil
			}
			return uint8(0), nil
		}

	case opcode.Number:
		if f, ok := v.(float64); ok {
			if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
				return nil, fmt.Errorf("%w: %v is not an int32", ErrInvalidValue, f)
			}

			return int32(f), nil
		}

		if _, err := simplepack.New(simplepack.Int32).Pack(v); err != nil {
			return nil, fmt.Errorf("%w: %v is not an int32", ErrInvalidValue, v)
		}

		return v, nil

	case opcode.Text:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %T for string property", ErrInvalidValue, v)
		}
		if len(s) > simplepack.MaxStringLen {
			return nil, fmt.Errorf("%w: string of %d bytes", ErrInvalidValue, len(s))
		}

		return s, nil

	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownPropertyType, uint8(pt))
	}
}

// intNonZero reports whether v, an integer of any kind, is non-zero.
func intNonZero(v any) (nonZero bool, ok bool) {
	switch val := v.(type) {
	case int:
		return val != 0, true
	case int8:
		return val != 0, true
	case int16:
		return val != 0, true
	case int32:
		return val != 0, true
	case int64:
		return val != 0, true
	case uint:
		return val != 0, true
	case uint8:
		return val != 0, true
	case uint16:
		return val != 0, true
	case uint32:
		return val != 0, true
	case uint64:
		return val != 0, true
	default:
		return false, false
	}
}

func encodeDefineAdapter() ([]byte, error) {
	return defineAdapterSchema.Pack(uint8(opcode.DefineAdapter))
}

func encodeDefineThing(thingIdx uint8) ([]byte, error) {
	return defineThingSchema.Pack(uint8(opcode.DefineThingByIdx), thingIdx)
}

func encodeDefineProperty(thingIdx uint8, propertyIdx uint8) ([]byte, error) {
	return definePropertySchema.Pack(uint8(opcode.DefinePropertyByIdx), thingIdx, propertyIdx)
}

func encodePair(req opcode.Request, thingIdx uint8) ([]byte, error) {
	return defineThingSchema.Pack(uint8(req), thingIdx)
}

func encodeGetProperty(thingIdx uint8, propertyIdx uint8) ([]byte, error) {
	return definePropertySchema.Pack(uint8(opcode.GetProperty), thingIdx, propertyIdx)
}

func encodeSetProperty(thingIdx uint8, propertyIdx uint8, pt opcode.PropertyType, value any) ([]byte, error) {
	ft, ok := pt.FieldType()
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownPropertyType, uint8(pt))
	}

	wire, err := toWire(pt, value)
	if err != nil {
		return nil, err
	}

	return definePropertySchema.Extend(ft).Pack(uint8(opcode.SetProperty), thingIdx, propertyIdx, wire)
}
