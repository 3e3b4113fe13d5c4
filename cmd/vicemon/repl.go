// =============================================================================
// repl.go - REPL Loop
// =============================================================================
//
// The REPL reads a line, handles dot-commands locally, and translates
// everything else into client calls. Because every client call returns
// before the emulator answers, the REPL waits for outstanding replies
// (bounded by settleTimeout) before showing memory, registers or
// checkpoints from the local mirror.
//
// Events (stops, checkpoint hits, resumes) are printed as they arrive on
// the client's receive goroutine.
//
// =============================================================================

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/attic/vicemon/machine"
	"github.com/attic/vicemon/viceprotocol"
)

const (
	// settleTimeout bounds the wait for replies before output is shown.
	settleTimeout = time.Second

	// settlePoll is how often the pending count is checked while settling.
	settlePoll = 5 * time.Millisecond

	// listSettle is the pause before showing checkpoints. CheckpointList
	// replies are not tracked, so there is nothing to wait on.
	listSettle = 100 * time.Millisecond

	// screenshotTimeout bounds the wait for a fresh display capture.
	screenshotTimeout = 2 * time.Second

	promptStopped = "(C:$%04X) "
	promptIdle    = "(vicemon) "
)

// GO CONCEPT: Mutexes and Atomics
// --------------------------------
// The session is touched by two goroutines: the REPL reading lines and the
// client's receive goroutine printing events. outMu keeps their output
// from interleaving mid-line. A sync.Mutex protects a region of code; the
// types in sync/atomic protect a single value without a lock:
//
//	var done atomic.Bool
//	done.Store(true)   // on one goroutine
//	if done.Load() {}  // on another
//
// Neither may be copied after first use, which is why the session is
// always handled through a *session.

// session ties the client to its local state and the terminal.
type session struct {
	client      *viceprotocol.Client
	mirror      *machine.Mirror
	breakpoints *machine.Breakpoints
	screen      *screenBuffer
	cfg         *Config
	styles      styles

	// outMu serialises writes from the REPL and the receive goroutine.
	outMu sync.Mutex
	out   io.Writer

	// connectTimeout is the client's dial timeout.
	connectTimeout time.Duration

	// quitEmulator is set by .quitvice so cleanup leaves the emulator
	// alone. The signal handler reads it from another goroutine.
	quitEmulator atomic.Bool
}

func newSession(cfg *Config, plain bool, out io.Writer) *session {
	return &session{
		mirror:      machine.NewMirror(),
		breakpoints: machine.NewBreakpoints(),
		screen:      newScreenBuffer(),
		cfg:         cfg,
		styles:      newStyles(plain),
		out:         out,
	}
}

// attach creates the client and installs the event handlers.
func (s *session) attach(opts viceprotocol.Options) {
	s.client = viceprotocol.NewClient(s.mirror, s.breakpoints, s.screen, opts)
	s.connectTimeout = opts.ConnectTimeout
	if s.connectTimeout <= 0 {
		s.connectTimeout = viceprotocol.DefaultConnectTimeout
	}
	s.client.SetEventHandler(s.handleEvent)
	s.client.SetDisconnectHandler(func(err error) {
		if err != nil {
			s.printf("\n%s\n", s.styles.errText.Render("Disconnected: "+err.Error()))
		}
	})
}

func (s *session) printf(format string, args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

func (s *session) handleEvent(ev viceprotocol.Event) {
	line := s.styles.renderEvent(ev)
	if line == "" {
		return
	}
	s.printf("\n%s\n", line)
}

// prompt shows the program counter while stopped.
func (s *session) prompt() string {
	if s.client.IsStopped() {
		return fmt.Sprintf(promptStopped, s.mirror.Registers(viceprotocol.MemMain).PC)
	}
	return promptIdle
}

// connect connects to host:port and waits until the connection is up or
// has failed.
func (s *session) connect(host string, port int) error {
	if err := s.client.Connect(host, port); err != nil {
		return err
	}
	deadline := time.Now().Add(s.connectWait())
	for time.Now().Before(deadline) {
		switch s.client.State() {
		case viceprotocol.StateConnecting:
			time.Sleep(settlePoll)
		case viceprotocol.StateDisconnected:
			if err := s.client.Err(); err != nil {
				return err
			}
			return viceprotocol.ErrNotConnected
		default:
			return nil
		}
	}
	s.client.Disconnect()
	return fmt.Errorf("timeout connecting to %s", net.JoinHostPort(host, strconv.Itoa(port)))
}

// connectWait is how long connect polls: the dial timeout plus a second
// for the connection worker to report.
func (s *session) connectWait() time.Duration {
	return s.connectTimeout + time.Second
}

// settle waits until every tracked request has been answered.
func (s *session) settle() {
	deadline := time.Now().Add(settleTimeout)
	for s.client.Pending() > 0 && time.Now().Before(deadline) {
		time.Sleep(settlePoll)
	}
}

// runREPL runs the REPL until .quit, .quitvice or end of input.
func (s *session) runREPL(editor *LineEditor) {
	for {
		line, err := editor.GetLine(s.prompt())
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.printf("Error: %v\n", err)
			}
			s.printf("\n")
			return
		}
		if quit := s.executeLine(line); quit {
			return
		}
	}
}

// executeLine runs one line of input and reports whether the REPL should
// exit.
func (s *session) executeLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}

	if strings.HasPrefix(trimmed, ".") {
		quit, err := s.executeDotCommand(trimmed)
		if err != nil {
			s.printf("Error: %v\n", err)
		}
		return quit
	}

	if !s.client.IsConnected() {
		s.printf("Error: %v (use .connect)\n", viceprotocol.ErrNotConnected)
		return false
	}

	res, err := translateMonitorCommand(s.client, trimmed)
	if err != nil {
		s.printf("Error: %v\n", err)
		return false
	}
	s.show(res)
	return false
}

// show waits for replies and renders what the command asked for.
func (s *session) show(res result) {
	switch res.view {
	case viewMemory:
		s.settle()
		n := int(res.end) - int(res.start) + 1
		s.printf("%s", s.styles.renderMemory(res.start, s.mirror.Read(res.space, res.start, n)))
	case viewRegisters:
		s.settle()
		regs := s.mirror.Registers(res.space)
		s.printf("%s", s.styles.renderRegisters(res.space, regs))
		var here []viceprotocol.Checkpoint
		for _, cp := range s.breakpoints.At(regs.PC) {
			if cp.Space == res.space {
				here = append(here, cp)
			}
		}
		s.printf("%s", s.styles.renderCheckpointsAt(regs.PC, here))
	case viewCheckpoints:
		s.settle()
		time.Sleep(listSettle)
		s.printf("%s", s.styles.renderCheckpoints(s.breakpoints.List()))
	}
}

// GO CONCEPT: Named Return Values
// -------------------------------
// "(quit bool, err error)" names the results. The names document what each
// value means at the call site and in godoc; every return statement below
// still lists both values explicitly.

// executeDotCommand handles the local dot-commands.
func (s *session) executeDotCommand(line string) (quit bool, err error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case ".quit", ".exit":
		return true, nil

	case ".help":
		var b strings.Builder
		err := printHelp(&b, arg)
		s.printf("%s", b.String())
		return false, err

	case ".status":
		s.printStatus()
		return false, nil

	case ".screenshot":
		return false, s.screenshot(arg)

	case ".regnames":
		if err := s.client.GetRegistersAvailable(viceprotocol.MemMain); err != nil {
			return false, err
		}
		s.settle()
		s.printf("%s", s.styles.renderRegisterNames(s.client.RegisterNames()))
		return false, nil

	case ".banks":
		if err := s.client.GetBanks(); err != nil {
			return false, err
		}
		s.settle()
		s.printf("%s", s.styles.renderBanks(s.client.Banks()))
		return false, nil

	case ".connect":
		host, port, err := s.connectTarget(arg)
		if err != nil {
			return false, err
		}
		if err := s.connect(host, port); err != nil {
			return false, err
		}
		s.printf("Connected to %s\n", net.JoinHostPort(host, strconv.Itoa(port)))
		return false, nil

	case ".disconnect":
		s.disconnect()
		return false, nil

	case ".quitvice":
		if err := s.client.Quit(); err != nil {
			return false, err
		}
		s.quitEmulator.Store(true)
		s.waitClosed()
		return true, nil
	}

	return false, fmt.Errorf("%w: %s", errUnknownCommand, name)
}

// connectTarget parses the argument of .connect.
func (s *session) connectTarget(arg string) (string, int, error) {
	if arg == "" {
		return s.cfg.Host, s.cfg.Port, nil
	}
	host, portText, err := net.SplitHostPort(arg)
	if err != nil {
		return arg, s.cfg.Port, nil
	}
	port, err := strconv.Atoi(portText)
	if err != nil || port <= 0 || port > 0xFFFF {
		return "", 0, fmt.Errorf("invalid port %q", portText)
	}
	return host, port, nil
}

func (s *session) printStatus() {
	state := s.client.State()
	s.printf("State:       %s\n", state)
	s.printf("Emulator:    %s\n", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)))
	if state == viceprotocol.StateStopped || state == viceprotocol.StateRunning {
		s.printf("PC:          $%04X\n", s.mirror.Registers(viceprotocol.MemMain).PC)
		s.printf("Pending:     %d\n", s.client.Pending())
	}
	s.printf("Checkpoints: %d\n", len(s.breakpoints.List()))
	if cp, ok := s.breakpoints.Hit(); ok {
		s.printf("Last hit:    #%d at $%04X\n", cp.Number, cp.Start)
	}
	if err := s.client.Err(); err != nil {
		s.printf("Last error:  %v\n", err)
	}
}

// screenshot captures a fresh display if connected and saves it. Without
// a connection the last capture is saved.
func (s *session) screenshot(path string) error {
	if path == "" {
		path = fmt.Sprintf("vicemon-%s.png", time.Now().Format("20060102-150405"))
	}

	frame, seq := s.screen.Latest()
	if s.client.IsConnected() {
		if err := s.client.GetDisplay(); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), screenshotTimeout)
		defer cancel()
		fresh, err := s.screen.WaitNewer(ctx, seq)
		if err == nil {
			frame, seq = fresh, seq+1
		}
	}
	if seq == 0 {
		return errNoFrame
	}

	if err := saveScreenshot(path, frame, s.cfg.ScreenshotScale); err != nil {
		return err
	}
	s.printf("Screenshot saved to %s\n", path)
	return nil
}

// disconnect closes the connection and waits for the pump to finish.
func (s *session) disconnect() {
	if s.client.State() == viceprotocol.StateDisconnected {
		return
	}
	s.client.Disconnect()
	s.waitClosed()
}

func (s *session) waitClosed() {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	_ = s.client.Wait(ctx)
}
