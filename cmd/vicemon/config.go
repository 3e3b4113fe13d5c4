// =============================================================================
// config.go - Configuration File
// =============================================================================
//
// Configuration is loaded from a single YAML file named by:
//   - the --config flag, or
//   - the VICEMON_CONFIG environment variable
//
// There is no search path. Without either, the built-in defaults apply.
// Command-line flags override values from the file.
//
// =============================================================================

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/attic/vicemon/viceprotocol"
)

const (
	// configEnvVar names the environment variable holding the config path.
	configEnvVar = "VICEMON_CONFIG"

	// defaultTickRate is how often the heartbeat clock advances: once per
	// PAL frame.
	defaultTickRate = 20 * time.Millisecond

	// historyFileName is the history file in the user's home directory.
	historyFileName = ".vicemon_history"
)

// Config is the CLI configuration.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// HeartbeatThreshold is the number of ticks a request may stay
	// unanswered before a heartbeat Ping is sent.
	HeartbeatThreshold int `yaml:"heartbeat_threshold"`

	ReadTimeout time.Duration `yaml:"read_timeout"`

	// ConnectTimeout bounds the TCP dial. .connect waits a little longer
	// before giving up.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// SendMode is "immediate" or "deferred".
	SendMode string `yaml:"send_mode"`

	TickRate time.Duration `yaml:"tick_rate"`

	HistoryFile string `yaml:"history_file"`

	// ScreenshotScale multiplies the captured display size in PNG output.
	ScreenshotScale int `yaml:"screenshot_scale"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Emulator EmulatorConfig `yaml:"emulator"`
}

// EmulatorConfig describes how --launch starts VICE.
type EmulatorConfig struct {
	// Path is the emulator binary. A bare name is looked up in PATH.
	Path string `yaml:"path"`

	// Args are passed before the binary monitor options.
	Args []string `yaml:"args"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Host:               "127.0.0.1",
		Port:               viceprotocol.DefaultPort,
		HeartbeatThreshold: viceprotocol.DefaultHeartbeatThreshold,
		ReadTimeout:        viceprotocol.DefaultReadTimeout,
		ConnectTimeout:     viceprotocol.DefaultConnectTimeout,
		SendMode:           viceprotocol.SendImmediate.String(),
		TickRate:           defaultTickRate,
		HistoryFile:        filepath.Join("${HOME}", historyFileName),
		ScreenshotScale:    2,
		LogLevel:           "warn",
		Emulator: EmulatorConfig{
			Path: emulatorExecutableName,
		},
	}
}

// LoadConfig loads the file at path, or the file named by VICEMON_CONFIG
// when path is empty. With neither, it returns the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(configEnvVar)
	}
	if path == "" {
		cfg := DefaultConfig()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadConfigFile(path)
}

// LoadConfigFile loads configuration from a specific file. Keys missing
// from the file keep their default values.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// expandVariables expands ${HOME} and other environment references in paths.
func (c *Config) expandVariables() {
	c.HistoryFile = os.ExpandEnv(c.HistoryFile)
	c.Emulator.Path = os.ExpandEnv(c.Emulator.Path)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Host == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if c.Port <= 0 || c.Port > 0xFFFF {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.HeartbeatThreshold <= 0 {
		errs = append(errs, fmt.Errorf("heartbeat_threshold must be positive, got %d", c.HeartbeatThreshold))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("connect_timeout must be positive, got %s", c.ConnectTimeout))
	}
	if c.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("tick_rate must be positive, got %s", c.TickRate))
	}
	if c.ScreenshotScale < 1 {
		errs = append(errs, fmt.Errorf("screenshot_scale must be at least 1, got %d", c.ScreenshotScale))
	}
	if _, err := c.sendMode(); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (c *Config) sendMode() (viceprotocol.SendMode, error) {
	switch strings.ToLower(c.SendMode) {
	case "", "immediate":
		return viceprotocol.SendImmediate, nil
	case "deferred":
		return viceprotocol.SendDeferred, nil
	default:
		return 0, fmt.Errorf("send_mode must be immediate or deferred, got %q", c.SendMode)
	}
}

// clientOptions converts the configuration into client options.
func (c *Config) clientOptions(logger *slog.Logger) viceprotocol.Options {
	mode, _ := c.sendMode()
	opts := viceprotocol.DefaultOptions()
	opts.HeartbeatThreshold = c.HeartbeatThreshold
	opts.ReadTimeout = c.ReadTimeout
	opts.ConnectTimeout = c.ConnectTimeout
	opts.SendMode = mode
	opts.Logger = logger
	return opts
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelWarn, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}
