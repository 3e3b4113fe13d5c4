package main

import (
	"bytes"
	"encoding/binary"
	"net"
	"sync"
	"testing"

	"github.com/attic/vicemon/viceprotocol"
)

// GO CONCEPT: Listening on Port Zero
// -----------------------------------
// net.Listen("tcp", "127.0.0.1:0") asks the kernel for any free port, so
// tests never collide with each other or with a real emulator. The chosen
// port is read back from the listener's Addr.

// fakeVICE answers binary monitor requests from a 64K memory image and a
// fixed register file. The first RegistersGet also stops the machine, the
// way any command halts a running VICE.
type fakeVICE struct {
	t  *testing.T
	ln net.Listener

	mu       sync.Mutex
	conn     net.Conn
	mem      [0x10000]byte
	regs     []viceprotocol.RegisterValue
	stopped  bool
	requests []viceprotocol.CommandType
}

func newFakeVICE(t *testing.T) *fakeVICE {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeVICE{
		t:  t,
		ln: ln,
		regs: []viceprotocol.RegisterValue{
			{ID: viceprotocol.RegA, Value: 0x42},
			{ID: viceprotocol.RegSP, Value: 0xF6},
			{ID: viceprotocol.RegPC, Value: 0xC000},
		},
	}
	t.Cleanup(func() {
		ln.Close()
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.conn != nil {
			f.conn.Close()
		}
	})
	go f.serve()
	return f
}

func (f *fakeVICE) port() int {
	return f.ln.Addr().(*net.TCPAddr).Port
}

func (f *fakeVICE) poke(addr uint16, data ...byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy(f.mem[addr:], data)
}

// seen reports whether a request of type t has arrived.
func (f *fakeVICE) seen(t viceprotocol.CommandType) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r == t {
			return true
		}
	}
	return false
}

func (f *fakeVICE) serve() {
	conn, err := f.ln.Accept()
	if err != nil {
		return
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	var pending []byte
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		pending = append(pending, buf[:n]...)
		for {
			hdr, body, size, ok := viceprotocol.DecodeRequest(pending)
			if !ok {
				break
			}
			out := f.answer(hdr, body)
			pending = pending[size:]
			if len(out) > 0 {
				if _, werr := conn.Write(out); werr != nil {
					return
				}
			}
			if hdr.Type == viceprotocol.CmdQuit {
				conn.Close()
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (f *fakeVICE) answer(hdr viceprotocol.RequestHeader, body []byte) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, hdr.Type)

	ok := func(t viceprotocol.CommandType, b []byte) []byte {
		return viceprotocol.EncodeResponse(t, viceprotocol.ErrCodeOK, hdr.RequestID, b)
	}
	event := func(t viceprotocol.CommandType, pc uint16) []byte {
		return viceprotocol.EncodeResponse(t, viceprotocol.ErrCodeOK, viceprotocol.EventRequestID,
			viceprotocol.EncodeProgramCounter(pc))
	}

	switch hdr.Type {
	case viceprotocol.CmdRegistersGet:
		out := ok(hdr.Type, viceprotocol.EncodeRegisters(f.regs))
		if !f.stopped {
			f.stopped = true
			out = append(out, event(viceprotocol.CmdStopped, 0xC000)...)
		}
		return out

	case viceprotocol.CmdMemGet:
		start := binary.LittleEndian.Uint16(body[1:])
		end := binary.LittleEndian.Uint16(body[3:])
		return ok(hdr.Type, viceprotocol.EncodeMemGet(f.mem[start:int(end)+1]))

	case viceprotocol.CmdMemSet:
		start := binary.LittleEndian.Uint16(body[1:])
		copy(f.mem[start:], body[8:])
		return ok(hdr.Type, nil)

	case viceprotocol.CmdCheckpointList:
		return ok(hdr.Type, []byte{0, 0, 0, 0})

	case viceprotocol.CmdDisplayGet:
		return ok(hdr.Type, viceprotocol.EncodeDisplay(viceprotocol.DisplayFrame{
			Image:        bytes.Repeat([]byte{6}, 16),
			Width:        4,
			Height:       4,
			BitsPerPixel: 8,
			ScreenWidth:  4,
			ScreenHeight: 4,
		}))

	case viceprotocol.CmdExit:
		f.stopped = false
		return append(ok(hdr.Type, nil), event(viceprotocol.CmdResumed, 0xC000)...)
	}
	return ok(hdr.Type, nil)
}

// lockedBuffer is a bytes.Buffer safe to read while the session writes.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *lockedBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}
