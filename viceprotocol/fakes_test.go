package viceprotocol

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"
)

type fakeCPU struct {
	mu        sync.Mutex
	memory    map[MemSpace]*[0x10000]byte
	registers map[MemSpace]Registers
}

func newFakeCPU() *fakeCPU {
	return &fakeCPU{
		memory:    make(map[MemSpace]*[0x10000]byte),
		registers: make(map[MemSpace]Registers),
	}
}

func (f *fakeCPU) GetByte(space MemSpace, addr uint16) byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.memory[space]; ok {
		return m[addr]
	}
	return 0
}

func (f *fakeCPU) SetByte(space MemSpace, addr uint16, value byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memory[space]
	if !ok {
		m = new([0x10000]byte)
		f.memory[space] = m
	}
	m[addr] = value
}

func (f *fakeCPU) Registers(space MemSpace) Registers {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registers[space]
}

func (f *fakeCPU) SetRegister(space MemSpace, id RegisterID, value uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.registers[space]
	r.Set(id, value)
	f.registers[space] = r
}

// fakeBreakpoints records every call as a line, e.g. "add 1 ES--X--".
type fakeBreakpoints struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeBreakpoints) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeBreakpoints) AddBreakpoint(cp Checkpoint) { f.record("add %d %s", cp.Number, cp.Flags) }
func (f *fakeBreakpoints) ClearBreakpoints()           { f.record("clear") }
func (f *fakeBreakpoints) SetBreakpointHit(n uint32)   { f.record("hit %d", n) }
func (f *fakeBreakpoints) ClearBreakpointsHit()        { f.record("clearhits") }

func (f *fakeBreakpoints) log() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeScreen struct {
	frames chan DisplayFrame
}

func (f *fakeScreen) RefreshScreen(frame DisplayFrame) {
	select {
	case f.frames <- frame:
	default:
	}
}

type sentRequest struct {
	RequestHeader
	Body []byte
}

// recordConn stands in for the socket and keeps every write.
type recordConn struct {
	net.Conn
	mu     sync.Mutex
	writes []byte
}

func (r *recordConn) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, p...)
	return len(p), nil
}

func (r *recordConn) Close() error                      { return nil }
func (r *recordConn) SetReadDeadline(t time.Time) error { return nil }

// requests decodes everything written so far and forgets it.
func (r *recordConn) requests(t *testing.T) []sentRequest {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sentRequest
	buf := r.writes
	for len(buf) > 0 {
		hdr, body, n, ok := DecodeRequest(buf)
		if !ok {
			t.Fatalf("undecodable request bytes: % X", buf)
		}
		out = append(out, sentRequest{hdr, append([]byte(nil), body...)})
		buf = buf[n:]
	}
	r.writes = nil
	return out
}

type harness struct {
	client *Client
	conn   *connection
	wire   *recordConn
	cpu    *fakeCPU
	bps    *fakeBreakpoints
	screen *fakeScreen
	log    *[]string
}

// newHarness returns a client with a live connection whose socket is a
// recordConn. No goroutines run; tests call dispatch directly.
func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		wire:   &recordConn{},
		cpu:    newFakeCPU(),
		bps:    &fakeBreakpoints{},
		screen: &fakeScreen{frames: make(chan DisplayFrame, 4)},
		log:    new([]string),
	}
	h.client = NewClient(h.cpu, h.bps, h.screen, opts)
	h.client.SetLogSink(LogSinkFunc(func(line string) {
		*h.log = append(*h.log, line)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h.conn = &connection{
		host:    "test",
		ctx:     ctx,
		cancel:  cancel,
		netConn: h.wire,
		pending: newRequestTracker(),
		memory:  newMemoryRegistry(),
		buffer:  newFrameBuffer(1 << 16),
		done:    make(chan struct{}),
	}
	h.conn.connected.Store(true)
	h.client.conn = h.conn
	return h
}

func (h *harness) deliver(t CommandType, code ErrorCode, id uint32, body []byte) {
	h.client.dispatch(h.conn, Frame{Type: t, Error: code, RequestID: id, Body: body})
}

func (h *harness) pendingIDs() map[uint32]bool {
	h.conn.sendMu.Lock()
	defer h.conn.sendMu.Unlock()
	ids := make(map[uint32]bool)
	for id := range h.conn.pending.pending {
		ids[id] = true
	}
	return ids
}
