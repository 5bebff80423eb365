// Package opcode holds the single-byte code tables of the packed serial protocol.
//
// Every protocol message starts with an opcode byte. Requests flow from the host to a board and
// responses flow back. Thing and property type codes appear inside detail responses.
//
// Codes outside a table are not an error at this level: they decode to an Unknown sentinel whose
// String is "unknown" and whose IsKnown reports false, and the caller decides how to react.
package opcode

import (
	"errors"
	"fmt"
)

// ErrUnknownName is returned by the Parse functions for a name that is not in the table.
var ErrUnknownName = errors.New("opcode: unknown name")

const unknownName = "unknown"

// Request is the opcode of a host-to-board message.
type Request uint8

const (
	DefineAdapter       Request = 0x00
	DefineThingByIdx    Request = 0x01
	DefinePropertyByIdx Request = 0x02
	DefineEventByIdx    Request = 0x03
	DefineActionByIdx   Request = 0x04
	SetProperty         Request = 0x05
	GetProperty         Request = 0x06
	Pair                Request = 0xFD
	Unpair              Request = 0xFE

	// UnknownRequest is not sent on the wire; it is the sentinel for unrecognized request names.
	UnknownRequest Request = 0xFF
)

// Response is the opcode of a board-to-host message.
type Response uint8

const (
	DetailAdapter       Response = 0x00
	DetailThingByIdx    Response = 0x01
	DetailPropertyByIdx Response = 0x02
	DetailEventByIdx    Response = 0x03
	DetailActionByIdx   Response = 0x04
	PropertyStatus      Response = 0x05
	Paired              Response = 0xFD
	Unpaired            Response = 0xFE
	Error               Response = 0xFF
)

var requestNames = map[Request]string{
	DefineAdapter:       "defineAdapter",
	DefineThingByIdx:    "defineThingByIdx",
	DefinePropertyByIdx: "definePropertyByIdx",
	DefineEventByIdx:    "defineEventByIdx",
	DefineActionByIdx:   "defineActionByIdx",
	SetProperty:         "setProperty",
	GetProperty:         "getProperty",
	Pair:                "pair",
	Unpair:              "unpair",
}

var responseNames = map[Response]string{
	DetailAdapter:       "detailAdapter",
	DetailThingByIdx:    "detailThingByIdx",
	DetailPropertyByIdx: "detailPropertyByIdx",
	DetailEventByIdx:    "detailEventByIdx",
	DetailActionByIdx:   "detailActionByIdx",
	PropertyStatus:      "propertyStatus",
	Paired:              "paired",
	Unpaired:            "unpaired",
	Error:               "error",
}

var (
	requestByName  = invert(requestNames)
	responseByName = invert(responseNames)
)

// String returns the symbolic request name, or "unknown".
func (r Request) String() string {
	if name, ok := requestNames[r]; ok {
		return name
	}

	return unknownName
}

// IsKnown reports whether r is a defined request opcode.
func (r Request) IsKnown() bool {
	_, ok := requestNames[r]
	return ok
}

// ParseRequest returns the request opcode for a symbolic name.
// An unrecognized name yields UnknownRequest and ErrUnknownName.
func ParseRequest(name string) (Request, error) {
	if r, ok := requestByName[name]; ok {
		return r, nil
	}

	return UnknownRequest, fmt.Errorf("%w: request %q", ErrUnknownName, name)
}

// String returns the symbolic response name, or "unknown".
func (r Response) String() string {
	if name, ok := responseNames[r]; ok {
		return name
	}

	return unknownName
}

// IsKnown reports whether r is a defined response opcode.
func (r Response) IsKnown() bool {
	_, ok := responseNames[r]
	return ok
}

// ParseResponse returns the response opcode for a symbolic name.
// An unrecognized name yields Error and ErrUnknownName.
func ParseResponse(name string) (Response, error) {
	if r, ok := responseByName[name]; ok {
		return r, nil
	}

	return Error, fmt.Errorf("%w: response %q", ErrUnknownName, name)
}

func invert[K comparable](m map[K]string) map[string]K {
	out := make(map[string]K, len(m))
	for k, v := range m {
		out[v] = k
	}

	return out
}
