// =============================================================================
// main.go - vicemon CLI Entry Point
// =============================================================================
//
// vicemon is an interactive machine-code monitor for the VICE C64
// emulator. It talks to VICE over the binary monitor protocol
// (-binarymonitor), keeps a local mirror of memory, registers and
// checkpoints, and provides a REPL in the style of the VICE text monitor.
//
// Usage:
//
//	vicemon                           Connect to VICE on 127.0.0.1:6502
//	vicemon --launch                  Start x64sc first, then connect
//	vicemon --watch build/game.prg    Autostart game.prg on every rebuild
//	vicemon --config vicemon.yaml     Use a configuration file
//
// =============================================================================

// GO CONCEPT: Packages
// --------------------
// Every file in a directory shares one package name. The name "main" makes
// the directory an executable: "go build ./cmd/vicemon" produces a binary
// whose entry point is func main(). Library code lives in other packages
// (viceprotocol, machine) that this one imports by module path.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/muesli/termenv"
	"github.com/spf13/pflag"

	"github.com/attic/vicemon/viceprotocol"
)

const (
	version   = "0.3.0"
	appName   = "vicemon"
	copyright = "Copyright (c) 2026"
)

// fullTitle returns the application name with version.
func fullTitle() string {
	return fmt.Sprintf("%s v%s", appName, version)
}

// welcomeBanner returns the banner displayed when the REPL starts.
func welcomeBanner() string {
	return fmt.Sprintf(`%s - VICE binary monitor client
%s

Type '.help' for available commands.
Type '.quit' to exit.
`, fullTitle(), copyright)
}

// arguments holds the parsed command-line arguments.
type arguments struct {
	host       string
	port       int
	configPath string
	launch     bool
	watchPath  string
	logLevel   string
	plain      bool

	showHelp    bool
	showVersion bool

	// flags records which flags were given, so only those override the
	// config file.
	flags *pflag.FlagSet
}

// parseArguments parses command-line arguments (without the program name).
func parseArguments(argv []string) (arguments, error) {
	var args arguments
	flagSet := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&args.host, "host", "", "emulator host (default 127.0.0.1)")
	flagSet.IntVarP(&args.port, "port", "p", 0, "binary monitor port (default 6502)")
	flagSet.StringVarP(&args.configPath, "config", "c", "", "configuration file (or $"+configEnvVar+")")
	flagSet.BoolVar(&args.launch, "launch", false, "start the emulator before connecting")
	flagSet.StringVarP(&args.watchPath, "watch", "w", "", "autostart this program whenever it changes")
	flagSet.StringVar(&args.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flagSet.BoolVar(&args.plain, "plain", false, "plain output without colors")
	flagSet.BoolVarP(&args.showHelp, "help", "h", false, "show help")
	flagSet.BoolVarP(&args.showVersion, "version", "v", false, "show version")

	if err := flagSet.Parse(argv); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			args.showHelp = true
			return args, nil
		}
		return args, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return args, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	args.flags = flagSet
	return args, nil
}

// applyTo overrides cfg with the flags that were given.
func (a arguments) applyTo(cfg *Config) {
	if a.flags == nil {
		return
	}
	if a.flags.Changed("host") {
		cfg.Host = a.host
	}
	if a.flags.Changed("port") {
		cfg.Port = a.port
	}
	if a.flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
}

// printUsage prints usage information to stdout.
func printUsage() {
	fmt.Printf(`USAGE: %s [options]

OPTIONS:
  --host <host>         Emulator host (default: 127.0.0.1)
  --port, -p <port>     Binary monitor port (default: 6502)
  --config, -c <file>   Configuration file (default: $%s)
  --launch              Start the emulator with the binary monitor enabled
  --watch, -w <file>    Autostart <file> whenever it is rewritten
  --log-level <level>   debug, info, warn or error (default: warn)
  --plain               Plain output without colors
  --help, -h            Show this help
  --version, -v         Show version

EXAMPLES:
  %[1]s                            Connect to a running x64sc -binarymonitor
  %[1]s --launch --watch game.prg  Start VICE and reload game.prg on rebuild
`, appName, configEnvVar)
}

// printError prints an error message to stderr.
func printError(message string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
}

// GO CONCEPT: Channels and Goroutines
// ------------------------------------
// signal.Notify delivers OS signals on a channel instead of interrupting
// the program. A goroutine parks on the receive and runs cleanup when a
// signal arrives:
//
//	sigCh := make(chan os.Signal, 1)   // buffered, so no signal is lost
//	go func() { <-sigCh; cleanup() }() // blocks until one arrives
//
// The channel has capacity 1 because the runtime does not block when
// sending signals; an unbuffered channel could miss one.
//
// GO CONCEPT: Function Values
// ---------------------------
// "cleanup func()" is a parameter whose type is a function taking and
// returning nothing. Callers pass a closure that captures whatever it
// needs (the session, the emulator process), so this helper knows
// nothing about either.

// setupSignalHandler runs cleanup and exits on SIGINT or SIGTERM.
func setupSignalHandler(cleanup func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println()
		cleanup()
		os.Exit(0)
	}()
}

// GO CONCEPT: select
// ------------------
// select waits on several channel operations at once and runs whichever is
// ready first. Here it is the ticker's channel or the context's Done
// channel; once the context is cancelled the loop returns and the deferred
// ticker.Stop releases the timer.

// runTicker advances the client's heartbeat clock until ctx ends.
func runTicker(ctx context.Context, rate time.Duration, tick func()) {
	ticker := time.NewTicker(rate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}

func main() {
	if err := run(); err != nil {
		printError(err.Error())
		os.Exit(1)
	}
}

func run() error {
	args, err := parseArguments(os.Args[1:])
	if err != nil {
		printUsage()
		return err
	}
	if args.showHelp {
		printUsage()
		return nil
	}
	if args.showVersion {
		fmt.Println(fullTitle())
		return nil
	}

	cfg, err := LoadConfig(args.configPath)
	if err != nil {
		return err
	}
	args.applyTo(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := parseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var emulator *exec.Cmd
	if args.launch {
		fmt.Printf("Launching %s...\n", cfg.Emulator.Path)
		if emulator, err = launchEmulator(ctx, cfg); err != nil {
			return err
		}
		fmt.Printf("Emulator started (PID: %d)\n", emulator.Process.Pid)
	}

	// NO_COLOR and CLICOLOR=0 imply --plain.
	sess := newSession(cfg, args.plain || termenv.EnvNoColor(), os.Stdout)
	sess.attach(cfg.clientOptions(logger))
	sess.client.SetLogSink(viceprotocol.SlogSink(logger))

	fmt.Printf("Connecting to %s:%d...\n", cfg.Host, cfg.Port)
	if err := sess.connect(cfg.Host, cfg.Port); err != nil {
		if emulator != nil {
			_ = emulator.Process.Kill()
		}
		return fmt.Errorf("failed to connect to the emulator: %w", err)
	}

	go runTicker(ctx, cfg.TickRate, sess.client.Tick)

	var watcher *programWatcher
	if args.watchPath != "" {
		if watcher, err = watchProgram(args.watchPath, sess.client, logger); err != nil {
			logger.Warn("cannot watch program", "path", args.watchPath, "error", err)
		}
	}

	// GO CONCEPT: sync.Once
	// cleanup can be reached from the signal goroutine and from the normal
	// exit path. once.Do runs its function exactly one time no matter how
	// many goroutines call it, and later callers wait for the first to
	// finish.
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			cancel()
			if watcher != nil {
				watcher.Close()
			}
			sess.disconnect()
			if emulator != nil && !sess.quitEmulator.Load() {
				_ = emulator.Process.Signal(syscall.SIGTERM)
			}
		})
	}
	setupSignalHandler(cleanup)

	editor := NewLineEditor(cfg.HistoryFile)
	defer editor.Close()

	if editor.IsInteractive() {
		fmt.Print(welcomeBanner())
	}
	fmt.Println("Connected. The emulator keeps running until you break in (x).")
	fmt.Println()

	sess.runREPL(editor)

	cleanup()
	return nil
}
