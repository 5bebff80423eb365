package transport

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
)

func TestBoardID(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/dev/ttyUSB0", "ttyUSB0"},
		{"/dev/cu.usbmodem1421", "cu.usbmodem1421"},
		{`\\.\COM3`, "COM3"},
		{"COM4", "COM4"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, BoardID(tt.path), tt.path)
	}
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/dev/cu.usbmodem1421", NormalizePath("/dev/tty.usbmodem1421"))
	assert.Equal(t, "/dev/cu.usbserial-A1", NormalizePath("/dev/tty.usbserial-A1"))
	assert.Equal(t, "/dev/ttyUSB0", NormalizePath("/dev/ttyUSB0"))
	assert.Equal(t, "/dev/tty.Bluetooth", NormalizePath("/dev/tty.Bluetooth"))
}

func TestPortInfoFromDetails(t *testing.T) {
	info := portInfoFromDetails(&enumerator.PortDetails{
		Name:         "/dev/tty.usbmodem14201",
		IsUSB:        true,
		VID:          "2341",
		PID:          "0043",
		SerialNumber: "95635333",
		Product:      "Arduino Uno",
	})

	assert.Equal(t, PortInfo{
		Path:         "/dev/cu.usbmodem14201",
		IsUSB:        true,
		VendorID:     "2341",
		ProductID:    "0043",
		SerialNumber: "95635333",
		Product:      "Arduino Uno",
	}, info)
}

func TestConnPort(t *testing.T) {
	local, remote := net.Pipe()
	port := NewConnPort(local)
	defer port.Close()

	go func() {
		_, _ = remote.Write([]byte{0x01, 0x00})
		_ = remote.Close()
	}()

	buf := make([]byte, 2)
	_, err := io.ReadFull(port, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x00}, buf)
	assert.NoError(t, port.Drain())
}

func TestOpenerFunc(t *testing.T) {
	var gotPath string
	var gotBaud int

	opener := OpenerFunc(func(_ context.Context, path string, baudRate int) (Port, error) {
		gotPath, gotBaud = path, baudRate
		local, _ := net.Pipe()
		return NewConnPort(local), nil
	})

	port, err := opener.Open(context.Background(), "/dev/ttyACM0", 57600)
	require.NoError(t, err)
	defer port.Close()

	assert.Equal(t, "/dev/ttyACM0", gotPath)
	assert.Equal(t, 57600, gotBaud)
}

func TestSerialOpener_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := SerialOpener{}.Open(ctx, "/dev/does-not-exist", 115200)
	require.ErrorIs(t, err, context.Canceled)

	_, err = SerialLister{}.List(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSerialOpener_MissingPort(t *testing.T) {
	_, err := SerialOpener{}.Open(context.Background(), "/dev/packedserial-missing-port", 115200)
	require.ErrorIs(t, err, ErrOpenFailed)
}
