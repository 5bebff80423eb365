package board

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-packedserial/internal/boardsim"
	"github.com/arloliu/go-packedserial/opcode"
	"github.com/arloliu/go-packedserial/simplepack"
)

func TestDecodeMessage(t *testing.T) {
	frame := mustFrame(t)

	tests := []struct {
		name  string
		frame []byte
		want  Message
	}{
		{
			name:  "adapter detail",
			frame: frame(boardsim.AdapterDetailFrame("BoardA", "demo", 2)),
			want:  &AdapterDetail{Name: "BoardA", Description: "demo", ThingCount: 2},
		},
		{
			name:  "thing detail",
			frame: frame(boardsim.ThingDetailFrame(1, opcode.DimmableLight, "Lamp", "", 3)),
			want: &ThingDetail{
				ThingIdx: 1, ThingType: opcode.DimmableLight, Name: "Lamp", PropertyCount: 3,
			},
		},
		{
			name:  "boolean property detail",
			frame: frame(boardsim.PropertyDetailFrame(0, 1, opcode.Boolean, "on", "power", true)),
			want: &PropertyDetail{
				ThingIdx: 0, PropertyIdx: 1, PropertyType: opcode.Boolean, Name: "on", Description: "power", Value: true,
			},
		},
		{
			name:  "number property detail",
			frame: frame(boardsim.PropertyDetailFrame(2, 0, opcode.Number, "level", "", int32(300))),
			want: &PropertyDetail{
				ThingIdx: 2, PropertyIdx: 0, PropertyType: opcode.Number, Name: "level", Value: int32(300),
			},
		},
		{
			name:  "string property detail",
			frame: frame(boardsim.PropertyDetailFrame(0, 0, opcode.Text, "label", "", "kitchen")),
			want: &PropertyDetail{
				ThingIdx: 0, PropertyIdx: 0, PropertyType: opcode.Text, Name: "label", Value: "kitchen",
			},
		},
		{name: "paired", frame: []byte{0xFD, 0x03}, want: &Paired{ThingIdx: 3}},
		{name: "unpaired", frame: []byte{0xFE, 0x01}, want: &Unpaired{ThingIdx: 1}},
		{name: "error", frame: []byte{0xFF, 0x02}, want: &ErrorResponse{Code: 2}},
		{name: "event detail", frame: []byte{0x03, 0x00, 0x01}, want: &Unsolicited{Op: opcode.DetailEventByIdx}},
		{name: "action detail", frame: []byte{0x04}, want: &Unsolicited{Op: opcode.DetailActionByIdx}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeMessage(tt.frame)
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg)
			assert.Equal(t, tt.want.Opcode(), msg.Opcode())
		})
	}
}

func TestDecodeMessage_PropertyStatus(t *testing.T) {
	msg, err := DecodeMessage([]byte{0x05, 0x01, 0x02, 0x00, 0x00, 0x01, 0x2C})
	require.NoError(t, err)

	status, ok := msg.(*PropertyStatus)
	require.True(t, ok)
	assert.Equal(t, uint8(1), status.ThingIdx)
	assert.Equal(t, uint8(2), status.PropertyIdx)

	v, err := status.DecodeValue(opcode.Number)
	require.NoError(t, err)
	assert.Equal(t, int32(300), v)

	// a four byte value is not a boolean
	_, err = status.DecodeValue(opcode.Boolean)
	require.ErrorIs(t, err, simplepack.ErrTrailingBytes)

	_, err = status.DecodeValue(opcode.UnknownPropertyType)
	require.ErrorIs(t, err, ErrUnknownPropertyType)
}

func TestDecodeMessage_Errors(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		want  error
	}{
		{"empty", []byte{}, simplepack.ErrTruncatedFrame},
		{"unknown opcode", []byte{0x42, 0x00}, ErrUnknownOpcode},
		{"truncated adapter", []byte{0x00, 0x04, 'a'}, simplepack.ErrTruncatedFrame},
		{"trailing paired", []byte{0xFD, 0x00, 0x00}, simplepack.ErrTrailingBytes},
		{"truncated status", []byte{0x05, 0x00}, simplepack.ErrTruncatedFrame},
		{"unknown property type", []byte{0x02, 0x00, 0x00, 0x09, 0x00, 0x00, 0x01}, ErrUnknownPropertyType},
		{"truncated property value", []byte{0x02, 0x00, 0x00, 0x01, 0x00, 0x00, 0x01}, simplepack.ErrTruncatedFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMessage(tt.frame)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEncodeRequests(t *testing.T) {
	p, err := encodeDefineAdapter()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00}, p)

	p, err = encodeDefineThing(7)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x07}, p)

	p, err = encodeDefineProperty(1, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x01, 0x02}, p)

	p, err = encodePair(opcode.Pair, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFD, 0x04}, p)

	p, err = encodePair(opcode.Unpair, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFE, 0x04}, p)

	p, err = encodeGetProperty(0, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x06, 0x00, 0x01}, p)
}

func TestEncodeSetProperty(t *testing.T) {
	tests := []struct {
		name  string
		pt    opcode.PropertyType
		value any
		want  []byte
	}{
		{"bool true", opcode.Boolean, true, []byte{0x05, 0x00, 0x01, 0x01}},
		{"bool false", opcode.Boolean, false, []byte{0x05, 0x00, 0x01, 0x00}},
		{"bool from int", opcode.Boolean, 5, []byte{0x05, 0x00, 0x01, 0x01}},
		{"bool from json number", opcode.Boolean, float64(0), []byte{0x05, 0x00, 0x01, 0x00}},
		{"number", opcode.Number, int32(-1), []byte{0x05, 0x00, 0x01, 0xFF, 0xFF, 0xFF, 0xFF}},
		{"number from int", opcode.Number, 300, []byte{0x05, 0x00, 0x01, 0x00, 0x00, 0x01, 0x2C}},
		{"number from json number", opcode.Number, float64(256), []byte{0x05, 0x00, 0x01, 0x00, 0x00, 0x01, 0x00}},
		{"string", opcode.Text, "hi", []byte{0x05, 0x00, 0x01, 0x02, 'h', 'i'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := encodeSetProperty(0, 1, tt.pt, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p)
		})
	}
}

func TestEncodeSetProperty_InvalidValues(t *testing.T) {
	long := make([]byte, simplepack.MaxStringLen+1)
	for i := range long {
		long[i] = 'x'
	}

	tests := []struct {
		name  string
		pt    opcode.PropertyType
		value any
		want  error
	}{
		{"bool from string", opcode.Boolean, "true", ErrInvalidValue},
		{"number fraction", opcode.Number, 1.5, ErrInvalidValue},
		{"number overflow", opcode.Number, float64(math.MaxInt32) + 1, ErrInvalidValue},
		{"number int overflow", opcode.Number, int64(math.MaxInt32) + 1, ErrInvalidValue},
		{"number from string", opcode.Number, "1", ErrInvalidValue},
		{"string from number", opcode.Text, 1, ErrInvalidValue},
		{"string too long", opcode.Text, string(long), ErrInvalidValue},
		{"unknown type", opcode.UnknownPropertyType, 1, ErrUnknownPropertyType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := encodeSetProperty(0, 0, tt.pt, tt.value)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func FuzzDecodeMessage(f *testing.F) {
	f.Add([]byte{0x00, 0x01, 'A', 0x00, 0x01})
	f.Add([]byte{0x01, 0x00, 0x06, 0x01, 'L', 0x00, 0x01, 0x00, 0x00})
	f.Add([]byte{0x02, 0x00, 0x00, 0x00, 0x02, 'o', 'n', 0x00, 0x01})
	f.Add([]byte{0x02, 0x00, 0x00, 0x02, 0x00, 0x00, 0x03, 'a', 'b', 'c'})
	f.Add([]byte{0x05, 0x00, 0x00, 0x01})
	f.Add([]byte{0xFD, 0x00})
	f.Add([]byte{0xFF})

	f.Fuzz(func(t *testing.T, frame []byte) {
		// must never panic
		msg, err := DecodeMessage(frame)
		if err != nil {
			return
		}

		if status, ok := msg.(*PropertyStatus); ok {
			for _, pt := range []opcode.PropertyType{opcode.Boolean, opcode.Number, opcode.Text} {
				_, _ = status.DecodeValue(pt)
			}
		}
	})
}
