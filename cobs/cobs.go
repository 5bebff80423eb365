// Package cobs implements Consistent Overhead Byte Stuffing framing for the packed serial protocol.
//
// An encoded frame never contains a 0x00 byte; 0x00 is reserved as the frame delimiter and is
// appended after every encoded frame. A receiver that loses bytes mid-frame resynchronizes at the
// next delimiter, so a single lost byte corrupts at most one frame.
//
// Protocol messages are small, so a frame payload is bounded by MaxFrameSize. The bound keeps
// every frame within a single COBS block; longer payloads are rejected rather than chunked.
package cobs

import (
	"bytes"
	"errors"
	"fmt"
)

// Delimiter terminates every encoded frame on the wire.
const Delimiter byte = 0x00

// MaxFrameSize is the largest payload, in bytes, a single frame may carry.
const MaxFrameSize = 254

// MaxEncodedSize is the largest encoded chunk (excluding the delimiter) produced for a
// MaxFrameSize payload.
const MaxEncodedSize = MaxFrameSize + 2

var (
	// ErrFrameTooLarge indicates a payload larger than MaxFrameSize, or an inbound chunk that grew
	// past MaxEncodedSize without a delimiter.
	ErrFrameTooLarge = errors.New("cobs: frame exceeds maximum size")

	// ErrInvalidEncoding indicates a chunk that is not a valid COBS encoding.
	ErrInvalidEncoding = errors.New("cobs: invalid encoding")
)

// Encode stuffs data and appends the frame delimiter.
func Encode(data []byte) ([]byte, error) {
	if len(data) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}

	out := make([]byte, 1, len(data)+3)
	codeIdx := 0
	code := byte(1)

	for _, b := range data {
		if b == 0 {
			out[codeIdx] = code
			codeIdx = len(out)
			out = append(out, 0)
			code = 1

			continue
		}

		out = append(out, b)
		code++

		if code == 0xFF {
			out[codeIdx] = code
			codeIdx = len(out)
			out = append(out, 0)
			code = 1
		}
	}

	out[codeIdx] = code

	return append(out, Delimiter), nil
}

// Decode reverses Encode. The chunk may or may not include the trailing delimiter.
func Decode(chunk []byte) ([]byte, error) {
	if n := len(chunk); n > 0 && chunk[n-1] == Delimiter {
		chunk = chunk[:n-1]
	}

	if len(chunk) == 0 {
		return nil, fmt.Errorf("%w: empty chunk", ErrInvalidEncoding)
	}

	out := make([]byte, 0, len(chunk))

	for i := 0; i < len(chunk); {
		code := chunk[i]
		if code == 0 {
			return nil, fmt.Errorf("%w: zero byte at offset %d", ErrInvalidEncoding, i)
		}
		i++

		end := i + int(code) - 1
		if end > len(chunk) {
			return nil, fmt.Errorf("%w: code 0x%02x at offset %d overruns chunk", ErrInvalidEncoding, code, i-1)
		}

		for ; i < end; i++ {
			if chunk[i] == 0 {
				return nil, fmt.Errorf("%w: zero byte at offset %d", ErrInvalidEncoding, i)
			}

			out = append(out, chunk[i])
		}

		if code < 0xFF && i < len(chunk) {
			out = append(out, 0)
		}
	}

	if len(out) > MaxFrameSize {
		return nil, fmt.Errorf("%w: decoded %d bytes", ErrFrameTooLarge, len(out))
	}

	return out, nil
}

// ScanFrames is a bufio.SplitFunc returning each delimiter-terminated chunk, without the
// delimiter and still encoded. Empty chunks are skipped and a trailing partial chunk at EOF
// is discarded.
func ScanFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) && data[start] == Delimiter {
		start++
	}

	if idx := bytes.IndexByte(data[start:], Delimiter); idx >= 0 {
		return start + idx + 1, data[start : start+idx], nil
	}

	if len(data)-start > MaxEncodedSize {
		return 0, nil, fmt.Errorf("%w: no delimiter within %d bytes", ErrFrameTooLarge, MaxEncodedSize)
	}

	if atEOF {
		return len(data), nil, nil
	}

	// request more data, dropping any leading delimiters already consumed
	return start, nil, nil
}
