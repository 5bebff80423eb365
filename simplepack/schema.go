package simplepack

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrSchemaMismatch indicates that the number of values passed to Pack differs from the schema length.
	ErrSchemaMismatch = errors.New("simplepack: value count does not match schema")

	// ErrTruncatedFrame indicates that the buffer ended before every schema field could be read.
	ErrTruncatedFrame = errors.New("simplepack: truncated frame")

	// ErrTrailingBytes indicates that bytes remained after every schema field was read.
	ErrTrailingBytes = errors.New("simplepack: trailing bytes after last field")

	// ErrInvalidValue indicates that a value has the wrong Go type or is out of range for its field.
	ErrInvalidValue = errors.New("simplepack: invalid value for field type")

	// ErrStringTooLong indicates that a string value exceeds MaxStringLen bytes.
	ErrStringTooLong = errors.New("simplepack: string exceeds 255 bytes")

	// ErrUnknownFieldType indicates that a schema contains an undefined FieldType.
	ErrUnknownFieldType = errors.New("simplepack: unknown field type")
)

// Schema is an ordered list of field types describing one message payload.
//
// A Schema is treated as immutable once built: Extend returns a new schema instead of appending
// to the receiver, so a schema shared between goroutines or messages is never modified in place.
type Schema []FieldType

// New creates a schema from the given field types.
func New(types ...FieldType) Schema {
	s := make(Schema, len(types))
	copy(s, types)

	return s
}

// Extend returns a new schema consisting of s followed by types. s is not modified.
func (s Schema) Extend(types ...FieldType) Schema {
	out := make(Schema, 0, len(s)+len(types))
	out = append(out, s...)

	return append(out, types...)
}

// Len returns the number of fields in the schema.
func (s Schema) Len() int {
	return len(s)
}

// String returns the schema as a bracketed list of field type names.
func (s Schema) String() string {
	names := make([]string, len(s))
	for i, ft := range s {
		names[i] = ft.String()
	}

	return "[" + strings.Join(names, " ") + "]"
}

// Pack encodes values according to the schema.
//
// Each value must match its field type. The exact Go type (int8, uint8, int16, uint16, int32,
// uint32, float32, string) is always accepted; any other Go integer type (and bool, encoded as
// 0 or 1) is accepted when it fits the field's range, float64 is accepted for Float32 fields,
// and []byte is accepted for String fields.
//
// It returns ErrSchemaMismatch when len(values) != len(s).
func (s Schema) Pack(values ...any) ([]byte, error) {
	if len(values) != len(s) {
		return nil, fmt.Errorf("%w: schema has %d fields, got %d values", ErrSchemaMismatch, len(s), len(values))
	}

	buf := make([]byte, 0, s.sizeHint(values))

	for i, ft := range s {
		var err error

		buf, err = appendField(buf, ft, values[i])
		if err != nil {
			return nil, fmt.Errorf("field %d (%s): %w", i, ft, err)
		}
	}

	return buf, nil
}

// Unpack decodes buf according to the schema.
//
// The buffer must hold exactly the bytes the schema declares: a short buffer returns
// ErrTruncatedFrame and leftover bytes return ErrTrailingBytes.
//
// Decoded values use the field's natural Go type: int8, uint8, int16, uint16, int32, uint32,
// float32 or string.
func (s Schema) Unpack(buf []byte) ([]any, error) {
	values, n, err := s.UnpackPrefix(buf)
	if err != nil {
		return nil, err
	}

	if n != len(buf) {
		return nil, fmt.Errorf("%w: %d of %d bytes unread", ErrTrailingBytes, len(buf)-n, len(buf))
	}

	return values, nil
}

// UnpackPrefix decodes the leading fields of buf according to the schema and returns the decoded
// values together with the number of bytes consumed. Bytes after the last field are ignored.
//
// It is the first pass of a two-pass decode, where a decoded header determines the type of a
// trailing field.
func (s Schema) UnpackPrefix(buf []byte) ([]any, int, error) {
	d := decoder{input: buf}
	values := make([]any, 0, len(s))

	for i, ft := range s {
		v, err := d.decodeField(ft)
		if err != nil {
			return nil, d.pos, fmt.Errorf("field %d (%s): %w", i, ft, err)
		}

		values = append(values, v)
	}

	return values, d.pos, nil
}

func (s Schema) sizeHint(values []any) int {
	size := 0
	for i, ft := range s {
		if ft == String {
			if str, ok := values[i].(string); ok {
				size += 1 + len(str)
			}

			continue
		}
		size += ft.Size()
	}

	return size
}

func appendField(buf []byte, ft FieldType, value any) ([]byte, error) {
	switch ft {
	case Int8:
		v, err := intInRange(value, math.MinInt8, math.MaxInt8)
		if err != nil {
			return nil, err
		}

		return append(buf, byte(int8(v))), nil

	case UInt8:
		v, err := intInRange(value, 0, math.MaxUint8)
		if err != nil {
			return nil, err
		}

		return append(buf, byte(v)), nil

	case Int16:
		v, err := intInRange(value, math.MinInt16, math.MaxInt16)
		if err != nil {
			return nil, err
		}

		return binary.BigEndian.AppendUint16(buf, uint16(int16(v))), nil

	case UInt16:
		v, err := intInRange(value, 0, math.MaxUint16)
		if err != nil {
			return nil, err
		}

		return binary.BigEndian.AppendUint16(buf, uint16(v)), nil

	case Int32:
		v, err := intInRange(value, math.MinInt32, math.MaxInt32)
		if err != nil {
			return nil, err
		}

		return binary.BigEndian.AppendUint32(buf, uint32(int32(v))), nil

	case UInt32:
		v, err := intInRange(value, 0, math.MaxUint32)
		if err != nil {
			return nil, err
		}

		return binary.BigEndian.AppendUint32(buf, uint32(v)), nil

	case Float32:
		var f float32
		switch v := value.(type) {
		case float32:
			f = v
		case float64:
			f = float32(v)
		default:
			return nil, fmt.Errorf("%w: %T", ErrInvalidValue, value)
		}

		return binary.BigEndian.AppendUint32(buf, math.Float32bits(f)), nil

	case String:
		var raw []byte
		switch v := value.(type) {
		case string:
			raw = []byte(v)
		case []byte:
			raw = v
		default:
			return nil, fmt.Errorf("%w: %T", ErrInvalidValue, value)
		}

		if len(raw) > MaxStringLen {
			return nil, fmt.Errorf("%w: %d bytes", ErrStringTooLong, len(raw))
		}

		buf = append(buf, byte(len(raw)))

		return append(buf, raw...), nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownFieldType, uint8(ft))
	}
}

// intInRange converts any Go integer (or bool) value to int64 and checks it against [lower, upper].
func intInRange(value any, lower int64, upper int64) (int64, error) {
	var v int64

	switch val := value.(type) {
	case int:
		v = int64(val)
	case int8:
		v = int64(val)
	case int16:
		v = int64(val)
	case int32:
		v = int64(val)
	case int64:
		v = val
	case uint:
		if uint64(val) > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d out of range", ErrInvalidValue, val)
		}
		v = int64(val)
	case uint8:
		v = int64(val)
	case uint16:
		v = int64(val)
	case uint32:
		v = int64(val)
	case uint64:
		if val > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d out of range", ErrInvalidValue, val)
		}
		v = int64(val)
	case bool:
		if val {
			v = 1
		}
	default:
		return 0, fmt.Errorf("%w: %T", ErrInvalidValue, value)
	}

	if v < lower || v > upper {
		return 0, fmt.Errorf("%w: %d out of range [%d, %d]", ErrInvalidValue, v, lower, upper)
	}

	return v, nil
}

// decoder walks an input buffer field by field, checking bounds before every read.
type decoder struct {
	input []byte
	pos   int
}

func (d *decoder) remaining() int {
	return len(d.input) - d.pos
}

func (d *decoder) read(length int) ([]byte, error) {
	if length > d.remaining() {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncatedFrame, length, d.remaining())
	}

	result := d.input[d.pos : d.pos+length]
	d.pos += length

	return result, nil
}

func (d *decoder) decodeField(ft FieldType) (any, error) {
	if ft == String {
		n, err := d.read(1)
		if err != nil {
			return nil, err
		}

		raw, err := d.read(int(n[0]))
		if err != nil {
			return nil, err
		}

		return string(raw), nil
	}

	size := ft.Size()
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFieldType, uint8(ft))
	}

	raw, err := d.read(size)
	if err != nil {
		return nil, err
	}

	switch ft {
	case Int8:
		return int8(raw[0]), nil
	case UInt8:
		return raw[0], nil
	case Int16:
		return int16(binary.BigEndian.Uint16(raw)), nil
	case UInt16:
		return binary.BigEndian.Uint16(raw), nil
	case Int32:
		return int32(binary.BigEndian.Uint32(raw)), nil
	case UInt32:
		return binary.BigEndian.Uint32(raw), nil
	default: // Float32
		return math.Float32frombits(binary.BigEndian.Uint32(raw)), nil
	}
}
