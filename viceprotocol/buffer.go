package viceprotocol

import (
	"fmt"
	"io"
)

// compactThreshold is the free tail size below which fill moves the
// unconsumed bytes back to the front of the buffer.
const compactThreshold = 64 * 1024

// frameBuffer accumulates received bytes and hands out complete frames.
// Unconsumed bytes always form one contiguous slice, so a frame never
// needs reassembling across a wrap.
//
// frameBuffer is owned by the receive pump and is not safe for
// concurrent use.
type frameBuffer struct {
	data []byte
	// start is the first unconsumed byte, end the first free byte.
	start, end int
	// highWater is the most unconsumed bytes the buffer may ever hold.
	highWater int
}

func newFrameBuffer(capacity int) *frameBuffer {
	if capacity < 4*ResponseHeaderSize {
		capacity = 4 * ResponseHeaderSize
	}
	return &frameBuffer{
		data:      make([]byte, capacity),
		highWater: capacity * 3 / 4,
	}
}

// Len returns the number of unconsumed bytes.
func (b *frameBuffer) Len() int {
	return b.end - b.start
}

// Bytes returns the unconsumed bytes. The slice is valid until the next
// fill or Write.
func (b *frameBuffer) Bytes() []byte {
	return b.data[b.start:b.end]
}

// Consume drops the first n unconsumed bytes.
func (b *frameBuffer) Consume(n int) {
	if n >= b.Len() {
		b.start, b.end = 0, 0
		return
	}
	b.start += n
}

func (b *frameBuffer) compact() {
	if b.start == 0 {
		return
	}
	n := copy(b.data, b.data[b.start:b.end])
	b.start, b.end = 0, n
}

func (b *frameBuffer) ensureTail() {
	if len(b.data)-b.end < compactThreshold {
		b.compact()
	}
}

func (b *frameBuffer) checkHighWater() error {
	if b.Len() > b.highWater {
		return fmt.Errorf("%d unconsumed bytes exceed %d: %w", b.Len(), b.highWater, ErrProtocolDesync)
	}
	return nil
}

// fill performs a single read from r into the free tail. The caller
// drains complete frames and then checks the high-water mark.
func (b *frameBuffer) fill(r io.Reader) (int, error) {
	b.ensureTail()
	n, err := r.Read(b.data[b.end:])
	b.end += n
	return n, err
}

// Write appends p, as if it had been read from the socket.
func (b *frameBuffer) Write(p []byte) (int, error) {
	b.ensureTail()
	if b.Len()+len(p) > b.highWater {
		return 0, fmt.Errorf("%d unconsumed bytes exceed %d: %w", b.Len()+len(p), b.highWater, ErrProtocolDesync)
	}
	if len(b.data)-b.end < len(p) {
		b.compact()
	}
	n := copy(b.data[b.end:], p)
	b.end += n
	return n, nil
}

// next returns the first complete frame and its total length. ok is false
// when more bytes are needed. A leading byte other than STX, or a frame
// that could never fit under the high-water mark, is a desync.
func (b *frameBuffer) next() (f Frame, n int, ok bool, err error) {
	buf := b.Bytes()
	if len(buf) == 0 {
		return Frame{}, 0, false, nil
	}
	if headerMarker(buf) != STX {
		return Frame{}, 0, false, fmt.Errorf("frame marker $%02X: %w", headerMarker(buf), ErrProtocolDesync)
	}
	if len(buf) < ResponseHeaderSize {
		return Frame{}, 0, false, nil
	}
	total := headerFrameLength(buf)
	if total > uint64(b.highWater) {
		return Frame{}, 0, false, fmt.Errorf("frame of %d bytes: %w", total, ErrProtocolDesync)
	}
	if uint64(len(buf)) < total {
		return Frame{}, 0, false, nil
	}
	f = Frame{
		Type:      headerType(buf),
		Error:     headerError(buf),
		RequestID: headerRequestID(buf),
		Body:      buf[ResponseHeaderSize:total],
	}
	return f, int(total), true, nil
}
