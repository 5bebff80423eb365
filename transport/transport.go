// Package transport moves raw bytes between the host and a board.
//
// A Port is a duplex byte stream bound to one serial line at a fixed baud rate. Transports never
// look inside the stream: frame delimiting belongs to the board session.
package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
)

// ErrOpenFailed indicates that a port could not be opened.
var ErrOpenFailed = errors.New("transport: open failed")

// Port is an open serial line.
type Port interface {
	io.ReadWriteCloser
	// Drain blocks until every byte passed to Write has been transmitted.
	Drain() error
}

// Opener opens a port by path.
type Opener interface {
	Open(ctx context.Context, path string, baudRate int) (Port, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, path string, baudRate int) (Port, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, path string, baudRate int) (Port, error) {
	return f(ctx, path, baudRate)
}

// PortInfo describes a port found on the host.
type PortInfo struct {
	Path         string `yaml:"path" json:"path"`
	IsUSB        bool   `yaml:"usb" json:"usb"`
	VendorID     string `yaml:"vendorId,omitempty" json:"vendorId,omitempty"`
	ProductID    string `yaml:"productId,omitempty" json:"productId,omitempty"`
	SerialNumber string `yaml:"serialNumber,omitempty" json:"serialNumber,omitempty"`
	Product      string `yaml:"product,omitempty" json:"product,omitempty"`
}

// Lister enumerates the ports present on the host.
type Lister interface {
	List(ctx context.Context) ([]PortInfo, error)
}

// ListerFunc adapts a function to the Lister interface.
type ListerFunc func(ctx context.Context) ([]PortInfo, error)

// List calls f.
func (f ListerFunc) List(ctx context.Context) ([]PortInfo, error) {
	return f(ctx)
}

// BoardID derives a board identity from a port path: the last path element, with either
// separator style.
func BoardID(path string) string {
	if idx := strings.LastIndexAny(path, `/\`); idx >= 0 {
		return path[idx+1:]
	}

	return path
}

// NormalizePath rewrites macOS /dev/tty.usb* call-in devices to their /dev/cu.usb* call-out
// twins, which open without waiting for carrier detect.
func NormalizePath(path string) string {
	if strings.HasPrefix(path, "/dev/tty.usb") {
		return "/dev/cu.usb" + strings.TrimPrefix(path, "/dev/tty.usb")
	}

	return path
}

// ConnPort adapts a net.Conn (a TCP serial bridge, or one end of net.Pipe) to Port.
// Drain is a no-op: a completed Write has already been handed to the peer.
type ConnPort struct {
	net.Conn
}

var _ Port = (*ConnPort)(nil)

// NewConnPort wraps conn.
func NewConnPort(conn net.Conn) *ConnPort {
	return &ConnPort{Conn: conn}
}

// Drain implements Port.
func (p *ConnPort) Drain() error {
	return nil
}
