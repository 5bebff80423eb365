// Package boardsim simulates a packed serial board on the far end of a byte stream.
//
// A Sim answers the enumeration requests from its static thing table, applies setProperty and
// reports values with propertyStatus, exactly as firmware would. Tests reach it through Opener,
// which hands the host one end of an in-memory pipe.
package boardsim

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/arloliu/go-packedserial/cobs"
	"github.com/arloliu/go-packedserial/opcode"
	"github.com/arloliu/go-packedserial/simplepack"
	"github.com/arloliu/go-packedserial/transport"
)

// Error codes sent in an error response.
const (
	ErrCodeBadRequest    uint8 = 0x01
	ErrCodeUnknownThing  uint8 = 0x02
	ErrCodeUnknownProp   uint8 = 0x03
	ErrCodeUnknownOpcode uint8 = 0x04
)

// Property is a simulated property. Value holds a bool, int32 or string matching Type.
type Property struct {
	Type        opcode.PropertyType
	Name        string
	Description string
	Value       any
}

// Thing is a simulated thing.
type Thing struct {
	Type        opcode.ThingType
	Name        string
	Description string
	Properties  []*Property
}

// Hook may replace the responses to one request. Returning handled=false falls through to the
// default behavior.
type Hook func(req []byte) (responses [][]byte, handled bool)

// Sim is a simulated board.
type Sim struct {
	Name        string
	Description string
	Things      []*Thing

	mu       sync.Mutex
	hook     Hook
	requests []opcode.Request
	conn     io.Writer
	writeMu  sync.Mutex
}

// New creates a simulated board.
func New(name string, description string, things ...*Thing) *Sim {
	return &Sim{Name: name, Description: description, Things: things}
}

// SetHook installs h, replacing any previous hook.
func (s *Sim) SetHook(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hook = h
}

// Requests returns the opcodes of every request received so far.
func (s *Sim) Requests() []opcode.Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]opcode.Request, len(s.requests))
	copy(out, s.requests)

	return out
}

// Value returns the current value of a property.
func (s *Sim) Value(thingIdx int, propertyIdx int) any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.Things[thingIdx].Properties[propertyIdx].Value
}

// SetValue changes a property value without notifying the host.
func (s *Sim) SetValue(thingIdx int, propertyIdx int, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Things[thingIdx].Properties[propertyIdx].Value = value
}

// Opener returns a transport opener connecting the host to this board through net.Pipe.
// Every open starts a new Serve goroutine bound to ctx.
func (s *Sim) Opener(ctx context.Context) transport.Opener {
	return transport.OpenerFunc(func(_ context.Context, _ string, _ int) (transport.Port, error) {
		host, board := net.Pipe()

		go func() {
			_ = s.Serve(ctx, board)
			_ = board.Close()
		}()

		return transport.NewConnPort(host), nil
	})
}

// Serve answers requests read from rw until it fails or ctx is done.
func (s *Sim) Serve(ctx context.Context, rw io.ReadWriter) error {
	s.writeMu.Lock()
	s.conn = rw
	s.writeMu.Unlock()

	if c, ok := rw.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = c.Close() })
		defer stop()
	}

	scanner := bufio.NewScanner(rw)
	scanner.Buffer(make([]byte, 0, cobs.MaxEncodedSize+1), cobs.MaxEncodedSize+1)
	scanner.Split(cobs.ScanFrames)

	for scanner.Scan() {
		req, err := cobs.Decode(scanner.Bytes())
		if err != nil {
			continue
		}

		for _, resp := range s.Handle(req) {
			if err := s.Send(resp); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return err
	}

	return nil
}

// Send writes one unframed response to the connected host.
func (s *Sim) Send(payload []byte) error {
	frame, err := cobs.Encode(payload)
	if err != nil {
		return err
	}

	return s.SendRaw(frame)
}

// SendRaw writes raw bytes to the connected host.
func (s *Sim) SendRaw(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.conn == nil {
		return errors.New("boardsim: not connected")
	}

	_, err := s.conn.Write(data)

	return err
}

// Notify sends an unrequested propertyStatus carrying the current value.
func (s *Sim) Notify(thingIdx uint8, propertyIdx uint8) error {
	s.mu.Lock()
	resp, err := s.status(thingIdx, propertyIdx)
	s.mu.Unlock()

	if err != nil {
		return err
	}

	return s.Send(resp)
}

// Handle returns the responses to one unframed request.
func (s *Sim) Handle(req []byte) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(req) == 0 {
		return [][]byte{ErrorFrame(ErrCodeBadRequest)}
	}

	s.requests = append(s.requests, opcode.Request(req[0]))

	if s.hook != nil {
		if resps, handled := s.hook(req); handled {
			return resps
		}
	}

	resp, err := s.respond(req)
	if err != nil {
		return [][]byte{ErrorFrame(errorCode(err))}
	}
	if resp == nil {
		return nil
	}

	return [][]byte{resp}
}

var (
	errBadRequest   = errors.New("bad request")
	errUnknownThing = errors.New("unknown thing")
	errUnknownProp  = errors.New("unknown property")
	errUnknownOp    = errors.New("unknown opcode")
)

func errorCode(err error) uint8 {
	switch {
	case errors.Is(err, errUnknownThing):
		return ErrCodeUnknownThing
	case errors.Is(err, errUnknownProp):
		return ErrCodeUnknownProp
	case errors.Is(err, errUnknownOp):
		return ErrCodeUnknownOpcode
	default:
		return ErrCodeBadRequest
	}
}

var (
	opcodeSchema   = simplepack.New(simplepack.UInt8)
	thingSchema    = simplepack.New(simplepack.UInt8, simplepack.UInt8)
	propertySchema = simplepack.New(simplepack.UInt8, simplepack.UInt8, simplepack.UInt8)
)

func (s *Sim) respond(req []byte) ([]byte, error) {
	op := opcode.Request(req[0])

	switch op {
	case opcode.DefineAdapter:
		if _, err := opcodeSchema.Unpack(req); err != nil {
			return nil, errBadRequest
		}

		return AdapterDetailFrame(s.Name, s.Description, uint8(len(s.Things)))

	case opcode.DefineThingByIdx, opcode.Pair, opcode.Unpair:
		v, err := thingSchema.Unpack(req)
		if err != nil {
			return nil, errBadRequest
		}

		idx := v[1].(uint8)
		t, err := s.thing(idx)
		if err != nil {
			return nil, err
		}

		switch op {
		case opcode.Pair:
			return PairedFrame(opcode.Paired, idx)
		case opcode.Unpair:
			return PairedFrame(opcode.Unpaired, idx)
		default:
			return ThingDetailFrame(idx, t.Type, t.Name, t.Description, uint8(len(t.Properties)))
		}

	case opcode.DefinePropertyByIdx:
		v, err := propertySchema.Unpack(req)
		if err != nil {
			return nil, errBadRequest
		}

		tIdx, pIdx := v[1].(uint8), v[2].(uint8)
		p, err := s.property(tIdx, pIdx)
		if err != nil {
			return nil, err
		}

		return PropertyDetailFrame(tIdx, pIdx, p.Type, p.Name, p.Description, p.Value)

	case opcode.GetProperty:
		v, err := propertySchema.Unpack(req)
		if err != nil {
			return nil, errBadRequest
		}

		return s.status(v[1].(uint8), v[2].(uint8))

	case opcode.SetProperty:
		head, _, err := propertySchema.UnpackPrefix(req)
		if err != nil {
			return nil, errBadRequest
		}

		tIdx, pIdx := head[1].(uint8), head[2].(uint8)
		p, err := s.property(tIdx, pIdx)
		if err != nil {
			return nil, err
		}

		ft, _ := p.Type.FieldType()
		v, err := propertySchema.Extend(ft).Unpack(req)
		if err != nil {
			return nil, errBadRequest
		}

		p.Value = fromWire(p.Type, v[3])

		return s.status(tIdx, pIdx)

	case opcode.DefineEventByIdx, opcode.DefineActionByIdx:
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: 0x%02x", errUnknownOp, uint8(op))
	}
}

func (s *Sim) thing(idx uint8) (*Thing, error) {
	if int(idx) >= len(s.Things) {
		return nil, fmt.Errorf("%w: %d", errUnknownThing, idx)
	}

	return s.Things[idx], nil
}

func (s *Sim) property(thingIdx uint8, propertyIdx uint8) (*Property, error) {
	t, err := s.thing(thingIdx)
	if err != nil {
		return nil, err
	}

	if int(propertyIdx) >= len(t.Properties) {
		return nil, fmt.Errorf("%w: %d/%d", errUnknownProp, thingIdx, propertyIdx)
	}

	return t.Properties[propertyIdx], nil
}

func (s *Sim) status(thingIdx uint8, propertyIdx uint8) ([]byte, error) {
	p, err := s.property(thingIdx, propertyIdx)
	if err != nil {
		return nil, err
	}

	return PropertyStatusFrame(thingIdx, propertyIdx, p.Type, p.Value)
}

// AdapterDetailFrame encodes a detailAdapter response.
func AdapterDetailFrame(name string, description string, thingCount uint8) ([]byte, error) {
	return simplepack.New(simplepack.UInt8, simplepack.String, simplepack.String, simplepack.UInt8).
		Pack(uint8(opcode.DetailAdapter), name, description, thingCount)
}

// ThingDetailFrame encodes a detailThingByIdx response with no events or actions.
func ThingDetailFrame(idx uint8, tt opcode.ThingType, name string, description string, propertyCount uint8) ([]byte, error) {
	return simplepack.New(simplepack.UInt8, simplepack.UInt8, simplepack.UInt8, simplepack.String,
		simplepack.String, simplepack.UInt8, simplepack.UInt8, simplepack.UInt8).
		Pack(uint8(opcode.DetailThingByIdx), idx, uint8(tt), name, description, propertyCount, uint8(0), uint8(0))
}

// PropertyDetailFrame encodes a detailPropertyByIdx response.
func PropertyDetailFrame(thingIdx uint8, propertyIdx uint8, pt opcode.PropertyType, name string, description string, value any) ([]byte, error) {
	ft, ok := pt.FieldType()
	if !ok {
		return nil, fmt.Errorf("boardsim: property type 0x%02x has no wire type", uint8(pt))
	}

	return simplepack.New(simplepack.UInt8, simplepack.UInt8, simplepack.UInt8, simplepack.UInt8,
		simplepack.String, simplepack.String, ft).
		Pack(uint8(opcode.DetailPropertyByIdx), thingIdx, propertyIdx, uint8(pt), name, description, toWire(pt, value))
}

// PropertyStatusFrame encodes a propertyStatus response.
func PropertyStatusFrame(thingIdx uint8, propertyIdx uint8, pt opcode.PropertyType, value any) ([]byte, error) {
	ft, ok := pt.FieldType()
	if !ok {
		return nil, fmt.Errorf("boardsim: property type 0x%02x has no wire type", uint8(pt))
	}

	return propertySchema.Extend(ft).Pack(uint8(opcode.PropertyStatus), thingIdx, propertyIdx, toWire(pt, value))
}

// PairedFrame encodes a paired or unpaired response.
func PairedFrame(op opcode.Response, thingIdx uint8) ([]byte, error) {
	return thingSchema.Pack(uint8(op), thingIdx)
}

// ErrorFrame encodes an error response.
func ErrorFrame(code uint8) []byte {
	return []byte{uint8(opcode.Error), code}
}

func toWire(pt opcode.PropertyType, v any) any {
	if pt == opcode.Boolean {
		if b, ok := v.(bool); ok && b {
			return uint8(1)
		}

		return uint8(0)
	}

	return v
}

func fromWire(pt opcode.PropertyType, v any) any {
	if pt == opcode.Boolean {
		b, _ := v.(uint8)
		return b != 0
	}

	return v
}
