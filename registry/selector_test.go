package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arloliu/go-packedserial/transport"
)

func TestSelector_Match(t *testing.T) {
	uno := transport.PortInfo{
		Path:         "/dev/tty.usbmodem14201",
		IsUSB:        true,
		VendorID:     "2341",
		ProductID:    "0043",
		SerialNumber: "95635333",
		Product:      "Arduino Uno",
	}

	tests := []struct {
		name string
		sel  Selector
		want bool
	}{
		{"unused", Selector{Use: false, VendorID: "2341"}, false},
		{"no keys", Selector{Use: true}, false},
		{"vendor", Selector{Use: true, VendorID: "2341"}, true},
		{"vendor prefix", Selector{Use: true, VendorID: "23"}, true},
		{"vendor mismatch", Selector{Use: true, VendorID: "1a86"}, false},
		{"all keys", Selector{Use: true, VendorID: "2341", ProductID: "0043", SerialNumber: "9563", Product: "Arduino"}, true},
		{"one key mismatch", Selector{Use: true, VendorID: "2341", ProductID: "0042"}, false},
		{"normalized path", Selector{Use: true, Path: "/dev/cu.usbmodem"}, true},
		{"raw path", Selector{Use: true, Path: "/dev/tty.usbmodem"}, false},
		{"product", Selector{Use: true, Product: "Arduino"}, true},
		{"product is case sensitive", Selector{Use: true, Product: "arduino"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sel.Match(uno))
		})
	}
}

func TestSelector_MissingField(t *testing.T) {
	builtin := transport.PortInfo{Path: "/dev/ttyS0"}

	assert.False(t, Selector{Use: true, VendorID: "2341"}.Match(builtin))
	assert.True(t, Selector{Use: true, Path: "/dev/ttyS"}.Match(builtin))
}

func TestSelector_Baud(t *testing.T) {
	assert.Equal(t, DefaultBaudRate, Selector{}.Baud())
	assert.Equal(t, 9600, Selector{BaudRate: 9600}.Baud())
	assert.Equal(t, DefaultBaudRate, Selector{BaudRate: -1}.Baud())
}

func TestMatchPort_FirstMatchWins(t *testing.T) {
	selectors := []Selector{
		{Use: false, Path: "/dev/ttyUSB", BaudRate: 1200},
		{Use: true, Path: "/dev/ttyUSB", BaudRate: 57600},
		{Use: true, Path: "/dev/tty", BaudRate: 9600},
	}

	sel, ok := MatchPort(selectors, transport.PortInfo{Path: "/dev/ttyUSB0"})
	assert.True(t, ok)
	assert.Equal(t, 57600, sel.Baud())

	sel, ok = MatchPort(selectors, transport.PortInfo{Path: "/dev/ttyACM0"})
	assert.True(t, ok)
	assert.Equal(t, 9600, sel.Baud())

	_, ok = MatchPort(selectors, transport.PortInfo{Path: "COM3"})
	assert.False(t, ok)

	_, ok = MatchPort(nil, transport.PortInfo{Path: "/dev/ttyUSB0"})
	assert.False(t, ok)
}
