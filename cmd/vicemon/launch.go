// =============================================================================
// launch.go - Emulator Launch
// =============================================================================
//
// With --launch the CLI starts VICE itself with the binary monitor enabled
// and waits until the monitor port accepts connections. The emulator
// binary is searched for in this order:
//   1. emulator.path from the config (absolute, or a name looked up in PATH)
//   2. Same directory as the CLI binary
//   3. Common locations: /usr/local/bin, /opt/homebrew/bin, ~/.local/bin
//
// An emulator the CLI launched is sent SIGTERM on exit unless it was
// already told to quit through the monitor.
//
// =============================================================================

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// emulatorExecutableName is the default VICE C64 binary.
	emulatorExecutableName = "x64sc"

	// emulatorStartTimeout is how long to wait for the monitor port after
	// starting the emulator.
	emulatorStartTimeout = 10 * time.Second

	// emulatorPollInterval is how often the monitor port is probed during
	// the startup wait.
	emulatorPollInterval = 100 * time.Millisecond
)

// emulatorArgs returns the command line that enables the binary monitor
// on host:port.
func emulatorArgs(cfg *Config) []string {
	args := append([]string{}, cfg.Emulator.Args...)
	return append(args,
		"-binarymonitor",
		"-binarymonitoraddress", "ip4://"+net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
	)
}

// launchEmulator starts VICE and waits for its monitor port. The returned
// command has been started; the caller owns the process.
func launchEmulator(ctx context.Context, cfg *Config) (*exec.Cmd, error) {
	exePath, err := findEmulatorExecutable(cfg.Emulator.Path)
	if err != nil {
		return nil, fmt.Errorf("could not find emulator executable: %w", err)
	}

	cmd := exec.Command(exePath, emulatorArgs(cfg)...)
	// Keep emulator chatter off the REPL.
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to launch %s: %w", exePath, err)
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	if err := waitForPort(ctx, addr, emulatorStartTimeout); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("%s started (PID: %d) but monitor not reachable: %w",
			filepath.Base(exePath), cmd.Process.Pid, err)
	}
	return cmd, nil
}

// findEmulatorExecutable resolves the emulator binary.
func findEmulatorExecutable(configured string) (string, error) {
	name := configured
	if name == "" {
		name = emulatorExecutableName
	}

	if filepath.IsAbs(name) {
		if isExecutable(name) {
			return name, nil
		}
		return "", fmt.Errorf("%s is not an executable file", name)
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	if selfPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(selfPath), name)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}

	commonPaths := []string{
		"/usr/local/bin",
		"/opt/homebrew/bin",
		filepath.Join(homeDir(), ".local", "bin"),
	}
	for _, dir := range commonPaths {
		candidate := filepath.Join(dir, name)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%s not found in PATH or common locations", name)
}

// waitForPort polls addr until a TCP connection succeeds. The probe
// connection is closed at once; VICE accepts the next one.
func waitForPort(ctx context.Context, addr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var dialer net.Dialer
	for {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for %s: %w", addr, err)
		case <-time.After(emulatorPollInterval):
		}
	}
}

// isExecutable checks if a file exists and is executable.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Mode().Perm()&0111 != 0
}

// homeDir returns the current user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}
