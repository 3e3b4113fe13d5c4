package viceprotocol

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// SendMode selects how commands reach the socket.
type SendMode int

const (
	// SendImmediate writes each command on the calling goroutine.
	SendImmediate SendMode = iota
	// SendDeferred queues commands for the receive pump to write.
	SendDeferred
)

func (m SendMode) String() string {
	switch m {
	case SendImmediate:
		return "immediate"
	case SendDeferred:
		return "deferred"
	default:
		return "mode" + strconv.Itoa(int(m))
	}
}

// Options tunes a Client. Zero fields are replaced by the defaults.
type Options struct {
	HeartbeatThreshold int
	ReadTimeout        time.Duration
	PollBackoff        time.Duration
	ConnectTimeout     time.Duration
	ReceiveBufferSize  int
	SendMode           SendMode
	Logger             *slog.Logger
}

// DefaultOptions returns the options used by NewClient when none are given.
func DefaultOptions() Options {
	return Options{
		HeartbeatThreshold: DefaultHeartbeatThreshold,
		ReadTimeout:        DefaultReadTimeout,
		PollBackoff:        DefaultPollBackoff,
		ConnectTimeout:     DefaultConnectTimeout,
		ReceiveBufferSize:  DefaultReceiveBufferSize,
		SendMode:           SendImmediate,
		Logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.HeartbeatThreshold <= 0 {
		o.HeartbeatThreshold = d.HeartbeatThreshold
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = d.ReadTimeout
	}
	if o.PollBackoff <= 0 {
		o.PollBackoff = d.PollBackoff
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = d.ConnectTimeout
	}
	if o.ReceiveBufferSize <= 0 {
		o.ReceiveBufferSize = d.ReceiveBufferSize
	}
	if o.Logger == nil {
		o.Logger = d.Logger
	}
	return o
}

// State is the session state as seen by the client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "state" + strconv.Itoa(int(s))
	}
}

// Event describes something the emulator reported: execution stopped,
// resumed or jammed, a checkpoint was hit, a resource was read or a
// snapshot restored.
type Event struct {
	Type       CommandType
	RequestID  uint32
	PC         uint16
	Checkpoint CheckpointInfo
	Resource   ResourceValue
}

// EventHandler is a callback function for handling events from the emulator.
// It runs on the receive goroutine and must not block.
type EventHandler func(event Event)

// DisconnectHandler is a callback function called when the connection ends.
// err is nil after a requested disconnect.
type DisconnectHandler func(err error)

// Client talks to one emulator over the binary monitor protocol.
//
// Commands never wait for their reply: replies are decoded on a
// background goroutine and written into the CPUStore, BreakpointStore and
// ScreenSink the client was created with. Commands issued while their
// precondition does not hold (not connected, wrong execution state) are
// silently dropped.
//
// Thread Safety:
// All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	opts   Options
	logger *slog.Logger

	cpu         CPUStore
	breakpoints BreakpointStore
	screen      ScreenSink

	requestID atomic.Uint32

	mu                sync.Mutex
	conn              *connection
	lastErr           error
	logSink           LogSink
	eventHandler      EventHandler
	disconnectHandler DisconnectHandler
	registerNames     []RegisterDescriptor
	banks             []BankDescriptor
}

// connection is the state of one TCP session. The pump goroutine owns
// buffer; everything it shares with callers is atomic or behind sendMu or
// the memory registry's lock.
type connection struct {
	host string
	port int

	ctx    context.Context
	cancel context.CancelFunc

	connected      atomic.Bool
	stopped        atomic.Bool
	closeRequested atomic.Bool
	// quitRequested makes the emulator hanging up a clean end.
	quitRequested atomic.Bool

	// sendMu guards netConn writes, pending and queue.
	sendMu  sync.Mutex
	netConn net.Conn
	pending *requestTracker
	queue   [][]byte

	memory *memoryRegistry
	buffer *frameBuffer

	done chan struct{}
	err  error
}

// NewClient creates a client that mirrors emulator state into cpu and
// breakpoints and forwards display captures to screen. Any of them may
// be nil.
func NewClient(cpu CPUStore, breakpoints BreakpointStore, screen ScreenSink, opts Options) *Client {
	opts = opts.withDefaults()
	c := &Client{
		opts:        opts,
		logger:      opts.Logger,
		cpu:         cpu,
		breakpoints: breakpoints,
		screen:      screen,
	}
	c.requestID.Store(firstRequestID - 1)
	return c
}

// nextRequestID returns a fresh request ID, never the event sentinel.
func (c *Client) nextRequestID() uint32 {
	for {
		id := c.requestID.Add(1)
		if id != EventRequestID {
			return id
		}
	}
}

// SetEventHandler sets the callback for emulator events.
func (c *Client) SetEventHandler(handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventHandler = handler
}

// SetDisconnectHandler sets the callback for disconnection events.
func (c *Client) SetDisconnectHandler(handler DisconnectHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectHandler = handler
}

// SetLogSink sets the destination of human-readable protocol log lines.
func (c *Client) SetLogSink(sink LogSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logSink = sink
}

// logf writes a line to the log sink, if any.
func (c *Client) logf(format string, args ...any) {
	c.mu.Lock()
	sink := c.logSink
	c.mu.Unlock()
	if sink != nil {
		sink.Log(fmt.Sprintf(format, args...))
	}
}

func (c *Client) emit(ev Event) {
	c.mu.Lock()
	handler := c.eventHandler
	c.mu.Unlock()
	if handler != nil {
		handler(ev)
	}
}

func (c *Client) current() *connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// IsConnected returns true if the socket is connected.
func (c *Client) IsConnected() bool {
	conn := c.current()
	return conn != nil && conn.connected.Load()
}

// IsStopped returns true if connected and the emulator is halted in the
// monitor.
func (c *Client) IsStopped() bool {
	conn := c.current()
	return conn != nil && conn.connected.Load() && conn.stopped.Load()
}

// State returns the current session state.
func (c *Client) State() State {
	conn := c.current()
	switch {
	case conn == nil:
		return StateDisconnected
	case !conn.connected.Load():
		return StateConnecting
	case conn.stopped.Load():
		return StateStopped
	default:
		return StateRunning
	}
}

// RegisterNames returns the register descriptors last reported by
// RegistersAvailable.
func (c *Client) RegisterNames() []RegisterDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]RegisterDescriptor(nil), c.registerNames...)
}

// Banks returns the memory banks last reported by BanksAvailable.
func (c *Client) Banks() []BankDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]BankDescriptor(nil), c.banks...)
}

// Pending returns the number of requests still waiting for a reply.
func (c *Client) Pending() int {
	conn := c.current()
	if conn == nil {
		return 0
	}
	conn.sendMu.Lock()
	defer conn.sendMu.Unlock()
	return conn.pending.len()
}

// Connect starts connecting to the emulator at host:port and returns
// immediately. It fails with ErrAlreadyConnected while a previous
// connection is still alive or being established. Use IsConnected, State
// or Wait to observe the outcome.
func (c *Client) Connect(host string, port int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return ErrAlreadyConnected
	}

	ctx, cancel := context.WithCancel(context.Background())
	conn := &connection{
		host:    host,
		port:    port,
		ctx:     ctx,
		cancel:  cancel,
		pending: newRequestTracker(),
		memory:  newMemoryRegistry(),
		buffer:  newFrameBuffer(c.opts.ReceiveBufferSize),
		done:    make(chan struct{}),
	}
	c.conn = conn
	c.lastErr = nil

	go c.run(conn)
	return nil
}

// run is the connection worker: dial, pump until the session ends, tear
// down. There is no reconnect.
func (c *Client) run(conn *connection) {
	addr := net.JoinHostPort(conn.host, strconv.Itoa(conn.port))
	logger := c.logger.With("addr", addr)

	d := net.Dialer{Timeout: c.opts.ConnectTimeout}
	netConn, err := d.DialContext(conn.ctx, "tcp", addr)
	if err != nil {
		if conn.closeRequested.Load() {
			// Disconnect during the dial.
			c.teardown(conn, nil)
			return
		}
		logger.Warn("connect failed", "error", err)
		c.logf("VICE connection to %s failed: %v", addr, err)
		c.teardown(conn, NewConnectionError("failed to connect", err))
		return
	}

	conn.sendMu.Lock()
	conn.netConn = netConn
	conn.sendMu.Unlock()
	conn.connected.Store(true)

	logger.Info("connected")
	c.logf("Connected to VICE at %s", addr)

	err = c.pump(conn)
	c.teardown(conn, err)
}

// teardown closes the socket, forgets every outstanding request and
// detaches the connection from the client.
func (c *Client) teardown(conn *connection, err error) {
	conn.cancel()

	conn.sendMu.Lock()
	if conn.netConn != nil {
		conn.netConn.Close()
	}
	conn.pending.clear()
	conn.queue = nil
	conn.sendMu.Unlock()

	conn.memory.clear()
	conn.connected.Store(false)
	conn.stopped.Store(false)
	conn.err = err

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.lastErr = err
	handler := c.disconnectHandler
	c.mu.Unlock()

	close(conn.done)

	if err != nil {
		c.logger.Warn("disconnected", "error", err)
		c.logf("VICE disconnected: %v", err)
	} else {
		c.logger.Info("disconnected")
		c.logf("VICE disconnected")
	}

	if handler != nil {
		handler(err)
	}
}

// Wait blocks until the current connection ends or ctx is done, and
// returns the reason the connection ended (nil after Disconnect or Quit).
// Without a connection it returns the outcome of the previous one.
func (c *Client) Wait(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	lastErr := c.lastErr
	c.mu.Unlock()
	if conn == nil {
		return lastErr
	}
	select {
	case <-conn.done:
		return conn.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns why the most recent connection ended, or nil if it is
// still alive or was closed on request.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	return c.lastErr
}

// Disconnect asks the receive pump to close the connection after its
// current iteration. Commands already queued in deferred mode are written
// first. It does not wait; use Wait for that.
func (c *Client) Disconnect() {
	conn := c.current()
	if conn == nil {
		return
	}
	if !conn.connected.Load() {
		conn.closeRequested.Store(true)
		conn.cancel()
		return
	}
	// The Ping is queued before the flag so the final flush carries it.
	c.heartbeat(conn)
	conn.closeRequested.Store(true)
}

// Quit tells the emulator to exit and forces a heartbeat Ping. The
// session ends, with a nil error, when the emulator closes the socket.
func (c *Client) Quit() error {
	conn := c.current()
	if conn == nil || !conn.connected.Load() {
		return nil
	}
	conn.quitRequested.Store(true)
	if err := c.send(conn, NewQuitCommand(), false); err != nil {
		conn.quitRequested.Store(false)
		return err
	}
	c.heartbeat(conn)
	return nil
}

// Tick advances the heartbeat clock. The embedding application calls it
// periodically; once any request has been unanswered for more than
// HeartbeatThreshold ticks, a single Ping is sent and every pending
// request's clock restarts.
func (c *Client) Tick() {
	conn := c.current()
	if conn == nil || !conn.connected.Load() {
		return
	}
	conn.sendMu.Lock()
	overdue := conn.pending.tick(c.opts.HeartbeatThreshold)
	conn.sendMu.Unlock()
	if len(overdue) == 0 {
		return
	}
	c.logger.Debug("requests overdue", "ids", overdue)
	for _, id := range overdue {
		c.logf("VICE request $%X unanswered, sending heartbeat", id)
	}
	c.heartbeat(conn)
}

// heartbeat sends a Ping that nobody waits for.
func (c *Client) heartbeat(conn *connection) {
	if err := c.send(conn, NewPingCommand(), false); err != nil {
		c.logger.Debug("heartbeat failed", "error", err)
	}
}
