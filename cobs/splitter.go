package cobs

import "fmt"

// Splitter reassembles frames from a continuous byte stream.
//
// Bytes are fed with Write in arbitrary slices. Each delimiter-terminated chunk is decoded and
// passed to the frame handler; chunks that fail to decode are reported to the error handler and
// dropped. A chunk that grows past MaxEncodedSize is discarded up to the next delimiter.
//
// A Splitter is not safe for concurrent use.
type Splitter struct {
	buf        []byte
	discarding bool
	onFrame    func(frame []byte)
	onError    func(err error)
}

// NewSplitter creates a splitter that calls onFrame for every decoded frame and onError for every
// dropped chunk. onError may be nil.
func NewSplitter(onFrame func(frame []byte), onError func(err error)) *Splitter {
	return &Splitter{
		buf:     make([]byte, 0, MaxEncodedSize),
		onFrame: onFrame,
		onError: onError,
	}
}

// Write feeds p into the splitter. It always consumes all of p and never returns an error;
// it satisfies io.Writer so a Splitter can sit behind io.Copy or io.TeeReader.
func (s *Splitter) Write(p []byte) (int, error) {
	for _, b := range p {
		if b == Delimiter {
			s.flush()
			continue
		}

		if s.discarding {
			continue
		}

		if len(s.buf) >= MaxEncodedSize {
			s.discarding = true
			s.buf = s.buf[:0]
			s.reportError(fmt.Errorf("%w: no delimiter within %d bytes", ErrFrameTooLarge, MaxEncodedSize))

			continue
		}

		s.buf = append(s.buf, b)
	}

	return len(p), nil
}

// Buffered returns the number of bytes held for an unterminated chunk.
func (s *Splitter) Buffered() int {
	return len(s.buf)
}

// Reset drops any partially received chunk.
func (s *Splitter) Reset() {
	s.buf = s.buf[:0]
	s.discarding = false
}

func (s *Splitter) flush() {
	if s.discarding {
		s.discarding = false
		return
	}

	if len(s.buf) == 0 {
		return
	}

	frame, err := Decode(s.buf)
	s.buf = s.buf[:0]

	if err != nil {
		s.reportError(err)
		return
	}

	if s.onFrame != nil {
		s.onFrame(frame)
	}
}

func (s *Splitter) reportError(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}
