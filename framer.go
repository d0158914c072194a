package estcp

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// FrameHandler receives one complete frame body (without the length
// prefix). The slice is only valid until the handler returns.
type FrameHandler func(frame []byte) error

// Framer reassembles length-prefixed frames from an arbitrarily chunked
// byte stream. It does no I/O and is not safe for concurrent use: a
// Framer belongs to exactly one receive loop.
type Framer struct {
	maxFrameSize int
	handler      FrameHandler

	buf []byte
	pos int // start of unread data in buf
}

// NewFramer creates a Framer that passes every complete frame to handler.
// A non-positive maxFrameSize selects DefaultMaxFrameSize.
func NewFramer(maxFrameSize int, handler FrameHandler) *Framer {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Framer{
		maxFrameSize: maxFrameSize,
		handler:      handler,
	}
}

// Unframe appends chunk to the pending bytes and emits every frame that is
// now complete, in stream order. A trailing partial frame is kept for the
// next call.
//
// An invalid length prefix returns an error wrapping ErrFraming before
// any of the frame body is consumed. An error returned by the handler
// stops processing and is returned unchanged.
func (f *Framer) Unframe(chunk []byte) error {
	f.buf = append(f.buf, chunk...)
	defer f.compact()

	for {
		pending := f.buf[f.pos:]
		if len(pending) < LengthPrefixSize {
			return nil
		}

		length := binary.LittleEndian.Uint32(pending)
		if length == 0 || uint64(length) > uint64(f.maxFrameSize) {
			return errors.Wrapf(ErrFraming, "invalid frame length %d (max %d)", length, f.maxFrameSize)
		}

		end := LengthPrefixSize + int(length)
		if len(pending) < end {
			return nil
		}

		f.pos += end
		if err := f.handler(pending[LengthPrefixSize:end]); err != nil {
			return err
		}
	}
}

// Buffered returns the number of bytes held toward the next frame.
func (f *Framer) Buffered() int {
	return len(f.buf) - f.pos
}

// Reset discards any partially assembled frame.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
	f.pos = 0
}

// compact moves the unread tail to the front of the buffer so it does
// not grow without bound across calls.
func (f *Framer) compact() {
	if f.pos == 0 {
		return
	}
	n := copy(f.buf, f.buf[f.pos:])
	f.buf = f.buf[:n]
	f.pos = 0
}

// Frame returns data prefixed with its little-endian length.
func Frame(data []byte) []byte {
	out := make([]byte, LengthPrefixSize+len(data))
	binary.LittleEndian.PutUint32(out, uint32(len(data)))
	copy(out[LengthPrefixSize:], data)
	return out
}

// encodeFrame encodes p directly into a length-prefixed frame.
func encodeFrame(p Package, maxFrameSize int) ([]byte, error) {
	size := p.Size()
	if size > maxFrameSize {
		return nil, errors.Wrapf(ErrPackageTooLarge, "%s encodes to %d bytes (max %d)", p.command, size, maxFrameSize)
	}
	out := make([]byte, LengthPrefixSize+size)
	binary.LittleEndian.PutUint32(out, uint32(size))
	encodeTo(out[LengthPrefixSize:], p)
	return out, nil
}
