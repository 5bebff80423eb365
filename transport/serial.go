package transport

import (
	"context"
	"fmt"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// SerialOpener opens local serial ports with 8N1 framing and DTR asserted.
type SerialOpener struct{}

var _ Opener = SerialOpener{}

// Open implements Opener.
func (SerialOpener) Open(ctx context.Context, path string, baudRate int) (Port, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
		InitialStatusBits: &serial.ModemOutputBits{
			DTR: true,
			RTS: true,
		},
	}

	port, err := serial.Open(NormalizePath(path), mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, path, err)
	}

	return port, nil
}

// SerialLister lists local serial ports with their USB descriptors.
type SerialLister struct{}

var _ Lister = SerialLister{}

// List implements Lister.
func (SerialLister) List(ctx context.Context) ([]PortInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("transport: list ports: %w", err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, portInfoFromDetails(d))
	}

	return ports, nil
}

func portInfoFromDetails(d *enumerator.PortDetails) PortInfo {
	return PortInfo{
		Path:         NormalizePath(d.Name),
		IsUSB:        d.IsUSB,
		VendorID:     d.VID,
		ProductID:    d.PID,
		SerialNumber: d.SerialNumber,
		Product:      d.Product,
	}
}
