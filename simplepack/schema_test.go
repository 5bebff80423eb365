package simplepack

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		schema Schema
		values []any
		wire   []byte
	}{
		{
			name:   "int8",
			schema: New(Int8),
			values: []any{int8(-2)},
			wire:   []byte{0xFE},
		},
		{
			name:   "uint8",
			schema: New(UInt8),
			values: []any{uint8(200)},
			wire:   []byte{0xC8},
		},
		{
			name:   "int16 big-endian",
			schema: New(Int16),
			values: []any{int16(-300)},
			wire:   []byte{0xFE, 0xD4},
		},
		{
			name:   "uint16 big-endian",
			schema: New(UInt16),
			values: []any{uint16(0x1234)},
			wire:   []byte{0x12, 0x34},
		},
		{
			name:   "int32 big-endian",
			schema: New(Int32),
			values: []any{int32(-1)},
			wire:   []byte{0xFF, 0xFF, 0xFF, 0xFF},
		},
		{
			name:   "uint32 big-endian",
			schema: New(UInt32),
			values: []any{uint32(0xDEADBEEF)},
			wire:   []byte{0xDE, 0xAD, 0xBE, 0xEF},
		},
		{
			name:   "float32",
			schema: New(Float32),
			values: []any{float32(1.5)},
			wire:   []byte{0x3F, 0xC0, 0x00, 0x00},
		},
		{
			name:   "length-prefixed string",
			schema: New(String),
			values: []any{"bleh"},
			wire:   []byte{0x04, 'b', 'l', 'e', 'h'},
		},
		{
			name:   "empty string",
			schema: New(String),
			values: []any{""},
			wire:   []byte{0x00},
		},
		{
			name:   "mixed",
			schema: New(UInt8, String, UInt16),
			values: []any{uint8(1), "bleh", uint16(0x1234)},
			wire:   []byte{0x01, 0x04, 'b', 'l', 'e', 'h', 0x12, 0x34},
		},
		{
			name:   "empty schema",
			schema: New(),
			values: []any{},
			wire:   []byte{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packed, err := tt.schema.Pack(tt.values...)
			require.NoError(t, err)
			assert.Equal(t, tt.wire, packed)

			unpacked, err := tt.schema.Unpack(packed)
			require.NoError(t, err)
			assert.Equal(t, tt.values, unpacked)
		})
	}
}

func TestSchema_RoundTripLimits(t *testing.T) {
	schema := New(Int8, UInt8, Int16, UInt16, Int32, UInt32, Float32, String)
	long := strings.Repeat("x", MaxStringLen)

	values := []any{
		int8(math.MinInt8), uint8(math.MaxUint8),
		int16(math.MinInt16), uint16(math.MaxUint16),
		int32(math.MinInt32), uint32(math.MaxUint32),
		float32(-3.25), long,
	}

	packed, err := schema.Pack(values...)
	require.NoError(t, err)
	assert.Len(t, packed, 1+1+2+2+4+4+4+1+MaxStringLen)

	unpacked, err := schema.Unpack(packed)
	require.NoError(t, err)
	assert.Equal(t, values, unpacked)
}

func TestSchema_PackConversions(t *testing.T) {
	require := require.New(t)

	packed, err := New(UInt8, Int32, Float32, String).Pack(true, 7, 2.5, []byte("ab"))
	require.NoError(err)
	require.Equal([]byte{0x01, 0x00, 0x00, 0x00, 0x07, 0x40, 0x20, 0x00, 0x00, 0x02, 'a', 'b'}, packed)

	packed, err = New(UInt8).Pack(false)
	require.NoError(err)
	require.Equal([]byte{0x00}, packed)
}

func TestSchema_PackErrors(t *testing.T) {
	t.Run("schema mismatch", func(t *testing.T) {
		_, err := New(UInt8, UInt8).Pack(uint8(1))
		require.ErrorIs(t, err, ErrSchemaMismatch)

		_, err = New(UInt8).Pack(uint8(1), uint8(2))
		require.ErrorIs(t, err, ErrSchemaMismatch)
	})

	t.Run("out of range", func(t *testing.T) {
		_, err := New(UInt8).Pack(256)
		require.ErrorIs(t, err, ErrInvalidValue)

		_, err = New(Int8).Pack(-129)
		require.ErrorIs(t, err, ErrInvalidValue)

		_, err = New(UInt32).Pack(-1)
		require.ErrorIs(t, err, ErrInvalidValue)

		_, err = New(Int32).Pack(int64(math.MaxInt32) + 1)
		require.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := New(String).Pack(12)
		require.ErrorIs(t, err, ErrInvalidValue)

		_, err = New(Int16).Pack("12")
		require.ErrorIs(t, err, ErrInvalidValue)

		_, err = New(Float32).Pack(uint8(1))
		require.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("string too long", func(t *testing.T) {
		_, err := New(String).Pack(strings.Repeat("x", MaxStringLen+1))
		require.ErrorIs(t, err, ErrStringTooLong)
	})

	t.Run("unknown field type", func(t *testing.T) {
		_, err := New(FieldType(42)).Pack(uint8(1))
		require.ErrorIs(t, err, ErrUnknownFieldType)
	})
}

func TestSchema_UnpackErrors(t *testing.T) {
	t.Run("truncated fixed field", func(t *testing.T) {
		_, err := New(UInt8, UInt32).Unpack([]byte{0x01, 0x00, 0x00})
		require.ErrorIs(t, err, ErrTruncatedFrame)
	})

	t.Run("missing string length", func(t *testing.T) {
		_, err := New(UInt8, String).Unpack([]byte{0x01})
		require.ErrorIs(t, err, ErrTruncatedFrame)
	})

	t.Run("string length overruns buffer", func(t *testing.T) {
		_, err := New(String).Unpack([]byte{0x05, 'a', 'b'})
		require.ErrorIs(t, err, ErrTruncatedFrame)
	})

	t.Run("empty buffer", func(t *testing.T) {
		_, err := New(UInt8).Unpack(nil)
		require.ErrorIs(t, err, ErrTruncatedFrame)
	})

	t.Run("trailing bytes", func(t *testing.T) {
		_, err := New(UInt8).Unpack([]byte{0x01, 0x02})
		require.ErrorIs(t, err, ErrTrailingBytes)
	})

	t.Run("unknown field type", func(t *testing.T) {
		_, err := New(FieldType(99)).Unpack([]byte{0x01})
		require.ErrorIs(t, err, ErrUnknownFieldType)
	})
}

func TestSchema_TwoPassDecode(t *testing.T) {
	require := require.New(t)

	// opcode, thingIdx, propertyIdx, propertyType, name, description, value(int32)
	frame := []byte{0x02, 0x00, 0x01, 0x01, 0x03, 'l', 'v', 'l', 0x00, 0x00, 0x00, 0x01, 0x2C}

	header := New(UInt8, UInt8, UInt8, UInt8, String, String)
	values, n, err := header.UnpackPrefix(frame)
	require.NoError(err)
	require.Equal(9, n)
	require.Equal("lvl", values[4])

	// a strict decode of the header alone must reject the trailing value
	_, err = header.Unpack(frame)
	require.ErrorIs(err, ErrTrailingBytes)

	full := header.Extend(Int32)
	values, err = full.Unpack(frame)
	require.NoError(err)
	require.Equal(int32(300), values[6])

	// the shared header schema is never mutated by Extend
	require.Equal(6, header.Len())
	require.Equal(7, full.Len())
}

func TestSchema_ExtendDoesNotAlias(t *testing.T) {
	base := make(Schema, 2, 8)
	base[0], base[1] = UInt8, UInt8

	a := base.Extend(Int32)
	b := base.Extend(String)

	assert.Equal(t, Int32, a[2])
	assert.Equal(t, String, b[2])
	assert.Len(t, base, 2)
}

func TestFieldType_Names(t *testing.T) {
	for _, ft := range []FieldType{Int8, UInt8, Int16, UInt16, Int32, UInt32, Float32, String} {
		parsed, err := ParseFieldType(ft.String())
		require.NoError(t, err)
		assert.Equal(t, ft, parsed)
		assert.True(t, ft.IsValid())
	}

	ft, err := ParseFieldType("Float32")
	require.NoError(t, err)
	assert.Equal(t, Float32, ft)

	_, err = ParseFieldType("int64")
	require.ErrorIs(t, err, ErrUnknownFieldType)

	assert.False(t, FieldType(200).IsValid())
	assert.Equal(t, "FieldType(200)", FieldType(200).String())
	assert.Equal(t, -1, String.Size())
	assert.Equal(t, 4, Float32.Size())
	assert.Equal(t, "[uint8 string uint16]", New(UInt8, String, UInt16).String())
}
