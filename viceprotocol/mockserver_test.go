package viceprotocol

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/attic/vicemon/internal/testutil"
)

const waitTimeout = 5 * time.Second

// mockVICE is a TCP listener that speaks the emulator side of the binary
// monitor protocol. Tests read what the client sent from requests and
// script replies with reply.
type mockVICE struct {
	t        *testing.T
	listener net.Listener

	mu   sync.Mutex
	conn net.Conn

	accepted chan net.Conn
	requests chan sentRequest
}

func newMockVICE(t *testing.T) *mockVICE {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	m := &mockVICE{
		t:        t,
		listener: ln,
		accepted: make(chan net.Conn, 1),
		requests: make(chan sentRequest, 64),
	}
	t.Cleanup(func() {
		ln.Close()
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.conn != nil {
			m.conn.Close()
		}
	})

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		m.mu.Lock()
		m.conn = conn
		m.mu.Unlock()
		m.accepted <- conn
		m.readLoop(conn)
	}()
	return m
}

func (m *mockVICE) port() int {
	return m.listener.Addr().(*net.TCPAddr).Port
}

func (m *mockVICE) readLoop(conn net.Conn) {
	var pending []byte
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		pending = append(pending, buf[:n]...)
		for {
			hdr, body, size, ok := DecodeRequest(pending)
			if !ok {
				break
			}
			m.requests <- sentRequest{hdr, append([]byte(nil), body...)}
			pending = pending[size:]
		}
		if err != nil {
			close(m.requests)
			return
		}
	}
}

func (m *mockVICE) next(what string) sentRequest {
	m.t.Helper()
	return testutil.RequireReceive(m.t, m.requests, waitTimeout, "waiting for %s", what)
}

// reply writes frames one byte at a time so the client has to reassemble
// them across reads.
func (m *mockVICE) reply(conn net.Conn, frames ...[]byte) {
	m.t.Helper()
	for _, b := range bytes.Join(frames, nil) {
		if _, err := conn.Write([]byte{b}); err != nil {
			m.t.Fatalf("write: %v", err)
		}
	}
}

func testOptions() Options {
	return Options{
		ReadTimeout: 20 * time.Millisecond,
		PollBackoff: 5 * time.Millisecond,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestSessionOverTCP(t *testing.T) {
	vice := newMockVICE(t)
	cpu := newFakeCPU()
	bps := &fakeBreakpoints{}
	screen := &fakeScreen{frames: make(chan DisplayFrame, 1)}
	client := NewClient(cpu, bps, screen, testOptions())

	disconnected := make(chan error, 1)
	client.SetDisconnectHandler(func(err error) { disconnected <- err })
	stopped := make(chan Event, 1)
	client.SetEventHandler(func(e Event) {
		if e.Type == CmdStopped {
			stopped <- e
		}
	})

	if err := client.Connect("127.0.0.1", vice.port()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn := testutil.RequireReceive(t, vice.accepted, waitTimeout, "accept")
	testutil.Eventually(t, waitTimeout, client.IsConnected, "client connected")
	if client.State() != StateRunning {
		t.Errorf("state = %s, want running", client.State())
	}

	if err := client.Break(); err != nil {
		t.Fatal(err)
	}
	brk := vice.next("RegistersGet")
	if brk.Type != CmdRegistersGet {
		t.Fatalf("Break sent %s", brk.Type)
	}

	vice.reply(conn,
		EncodeResponse(CmdRegistersGet, ErrCodeOK, brk.RequestID,
			EncodeRegisters([]RegisterValue{{RegA, 0x42}, {RegPC, 0xC000}})),
		EncodeResponse(CmdStopped, ErrCodeOK, EventRequestID, EncodeProgramCounter(0xC000)),
	)

	ev := testutil.RequireReceive(t, stopped, waitTimeout, "stopped event")
	if ev.PC != 0xC000 {
		t.Errorf("stopped at $%04X, want $C000", ev.PC)
	}
	if a := cpu.Registers(MemMain).A; a != 0x42 {
		t.Errorf("A = $%02X, want $42", a)
	}

	low := vice.next("low MemGet")
	high := vice.next("high MemGet")
	list := vice.next("CheckpointList")
	display := vice.next("DisplayGet")
	if low.Type != CmdMemGet || high.Type != CmdMemGet || list.Type != CmdCheckpointList || display.Type != CmdDisplayGet {
		t.Fatalf("cascade = %s %s %s %s", low.Type, high.Type, list.Type, display.Type)
	}

	lowMem := make([]byte, 0x8000)
	for i := range lowMem {
		lowMem[i] = byte(i)
	}
	vice.reply(conn,
		EncodeResponse(CmdMemGet, ErrCodeOK, low.RequestID, EncodeMemGet(lowMem)),
		EncodeResponse(CmdCheckpointGet, ErrCodeOK, list.RequestID, EncodeCheckpoint(CheckpointInfo{
			Number: 1, Start: 0xC000, End: 0xC000, Stop: true, Enabled: true, Operations: OpExec,
		})),
		EncodeResponse(CmdCheckpointList, ErrCodeOK, list.RequestID, []byte{1, 0, 0, 0}),
		EncodeResponse(CmdDisplayGet, ErrCodeOK, display.RequestID, EncodeDisplay(DisplayFrame{
			Image: make([]byte, 16), Width: 4, Height: 4, BitsPerPixel: 8, ScreenWidth: 4, ScreenHeight: 4,
		})),
	)

	frame := testutil.RequireReceive(t, screen.frames, waitTimeout, "display frame")
	if frame.Width != 4 || len(frame.Image) != 16 {
		t.Errorf("display = %dx%d, %d bytes", frame.Width, frame.Height, len(frame.Image))
	}
	for _, addr := range []uint16{0x0001, 0x00FF, 0x7FFF} {
		if got := cpu.GetByte(MemMain, addr); got != byte(addr) {
			t.Errorf("$%04X = $%02X, want $%02X", addr, got, byte(addr))
		}
	}

	if err := client.Go(); err != nil {
		t.Fatal(err)
	}
	if exit := vice.next("Exit"); exit.Type != CmdExit {
		t.Errorf("Go sent %s", exit.Type)
	}

	client.Disconnect()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := client.Wait(ctx); err != nil {
		t.Errorf("Wait after Disconnect = %v, want nil", err)
	}
	if err := testutil.RequireReceive(t, disconnected, waitTimeout, "disconnect handler"); err != nil {
		t.Errorf("disconnect handler got %v, want nil", err)
	}
	if client.IsConnected() || client.State() != StateDisconnected {
		t.Errorf("still connected after Disconnect: %s", client.State())
	}
}

func TestEmulatorClosesConnection(t *testing.T) {
	vice := newMockVICE(t)
	client := NewClient(nil, nil, nil, testOptions())
	if err := client.Connect("127.0.0.1", vice.port()); err != nil {
		t.Fatal(err)
	}
	conn := testutil.RequireReceive(t, vice.accepted, waitTimeout, "accept")
	testutil.Eventually(t, waitTimeout, client.IsConnected, "client connected")

	conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	err := client.Wait(ctx)
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Wait = %v, want *ConnectionError", err)
	}
	if client.Err() == nil {
		t.Error("Err() = nil after the emulator hung up")
	}

	// The client can connect again once the old session is gone.
	if err := client.Connect("127.0.0.1", vice.port()); errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("reconnect refused: %v", err)
	}
	client.Disconnect()
	client.Wait(ctx)
}

func TestGarbageIsDesync(t *testing.T) {
	vice := newMockVICE(t)
	client := NewClient(nil, nil, nil, testOptions())
	if err := client.Connect("127.0.0.1", vice.port()); err != nil {
		t.Fatal(err)
	}
	conn := testutil.RequireReceive(t, vice.accepted, waitTimeout, "accept")

	if _, err := conn.Write([]byte("hello, monitor\n")); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := client.Wait(ctx); !errors.Is(err, ErrProtocolDesync) {
		t.Errorf("Wait = %v, want ErrProtocolDesync", err)
	}
}

func TestConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	client := NewClient(nil, nil, nil, testOptions())
	if err := client.Connect("127.0.0.1", port); err != nil {
		t.Fatalf("Connect returned %v; failures are reported asynchronously", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	err = client.Wait(ctx)
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Wait = %v, want *ConnectionError", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected after failed connect")
	}
}

// deferredSession connects a deferred-mode client to a fresh mock.
func deferredSession(t *testing.T) (*Client, *mockVICE, net.Conn) {
	t.Helper()
	vice := newMockVICE(t)
	opts := testOptions()
	opts.SendMode = SendDeferred
	client := NewClient(nil, nil, nil, opts)
	if err := client.Connect("127.0.0.1", vice.port()); err != nil {
		t.Fatal(err)
	}
	conn := testutil.RequireReceive(t, vice.accepted, waitTimeout, "accept")
	testutil.Eventually(t, waitTimeout, client.IsConnected, "client connected")
	return client, vice, conn
}

func TestDeferredQuitReachesEmulator(t *testing.T) {
	client, vice, conn := deferredSession(t)

	if err := client.Quit(); err != nil {
		t.Fatalf("Quit: %v", err)
	}
	if quit := vice.next("Quit"); quit.Type != CmdQuit {
		t.Fatalf("emulator received %s, want Quit", quit.Type)
	}
	if ping := vice.next("Ping"); ping.Type != CmdPing {
		t.Fatalf("emulator received %s, want Ping", ping.Type)
	}
	if !client.IsConnected() {
		t.Error("Quit closed the connection before the emulator did")
	}

	// VICE exits, which is the expected end of the session.
	conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := client.Wait(ctx); err != nil {
		t.Errorf("Wait after Quit = %v, want nil", err)
	}
}

func TestDeferredDisconnectFlushesQueue(t *testing.T) {
	client, vice, _ := deferredSession(t)

	if err := client.Reset(ResetSoft); err != nil {
		t.Fatal(err)
	}
	client.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := client.Wait(ctx); err != nil {
		t.Errorf("Wait after Disconnect = %v, want nil", err)
	}

	// The client hangs up after its final flush, which ends the mock's
	// read loop and closes requests.
	var got []CommandType
	for req := range vice.requests {
		got = append(got, req.Type)
	}
	if len(got) != 2 || got[0] != CmdReset || got[1] != CmdPing {
		t.Errorf("emulator received %v, want [Reset Ping]", got)
	}
}
