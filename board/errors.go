package board

import "errors"

// Frame-local errors. The frame is logged and dropped and the session continues.
var (
	ErrUnknownOpcode       = errors.New("board: unknown response opcode")
	ErrUnknownPropertyType = errors.New("board: unknown property type")
	ErrInvalidValue        = errors.New("board: invalid property value")
)

// Session-ending errors. The board moves to Disconnected and its things are revoked.
var (
	ErrOutOfOrderResponse = errors.New("board: out-of-order response")
	ErrTransport          = errors.New("board: transport failure")
	ErrResponseTimeout    = errors.New("board: response timeout")
)

// Command errors.
var (
	ErrNotReady              = errors.New("board: board is not connected")
	ErrUnknownThing          = errors.New("board: unknown thing")
	ErrUnknownProperty       = errors.New("board: unknown property")
	ErrEnumerationInProgress = errors.New("board: enumeration in progress")
	ErrAlreadyOpen           = errors.New("board: already open")
	ErrSessionClosed         = errors.New("board: session closed")
)
