package viceprotocol

import "encoding/binary"

// encoder appends little-endian fields to a command body.
type encoder struct {
	buf []byte
}

func newEncoder(size int) *encoder {
	return &encoder{buf: make([]byte, 0, size)}
}

func (e *encoder) u8(v uint8) *encoder {
	e.buf = append(e.buf, v)
	return e
}

func (e *encoder) flag(v bool) *encoder {
	if v {
		return e.u8(1)
	}
	return e.u8(0)
}

func (e *encoder) u16(v uint16) *encoder {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
	return e
}

func (e *encoder) u32(v uint32) *encoder {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
	return e
}

func (e *encoder) raw(b []byte) *encoder {
	e.buf = append(e.buf, b...)
	return e
}

// str writes a one-byte length prefix followed by s. The caller checks
// the length against maxStringLength.
func (e *encoder) str(s string) *encoder {
	e.buf = append(e.buf, byte(len(s)))
	e.buf = append(e.buf, s...)
	return e
}

func (e *encoder) bytes() []byte {
	return e.buf
}

// decoder reads little-endian fields from a response body. The first
// read past the end latches err; later reads return zero values.
type decoder struct {
	cmd CommandType
	buf []byte
	off int
	err error
}

func newDecoder(cmd CommandType, body []byte) *decoder {
	return &decoder{cmd: cmd, buf: body}
}

func (d *decoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if d.off+n > len(d.buf) {
		d.err = newShortPayloadError(d.cmd, d.off+n, len(d.buf))
		return false
	}
	return true
}

func (d *decoder) u8() uint8 {
	if !d.need(1) {
		return 0
	}
	v := d.buf[d.off]
	d.off++
	return v
}

func (d *decoder) flag() bool {
	return d.u8() != 0
}

func (d *decoder) u16() uint16 {
	if !d.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(d.buf[d.off:])
	d.off += 2
	return v
}

func (d *decoder) u32() uint32 {
	if !d.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v
}

// raw returns the next n bytes without copying.
func (d *decoder) raw(n int) []byte {
	if !d.need(n) {
		return nil
	}
	v := d.buf[d.off : d.off+n]
	d.off += n
	return v
}

// str reads a one-byte length prefix and that many bytes.
func (d *decoder) str() string {
	n := int(d.u8())
	return string(d.raw(n))
}

// seek moves the read position to off.
func (d *decoder) seek(off int) {
	if d.err != nil {
		return
	}
	if off > len(d.buf) {
		d.err = newShortPayloadError(d.cmd, off, len(d.buf))
		return
	}
	d.off = off
}
