package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap/zapcore"
)

// Config holds runtime settings. It only comes from flags and is never
// written back.
type Config struct {
	PollInterval     time.Duration // wait between input drains
	StopTimeout      time.Duration // bound on Stop; 0 waits forever
	EnumTimeout      time.Duration // bound on port enumeration
	PresenceInterval time.Duration // how often an open input checks it still exists
	WatchInterval    time.Duration // hot-plug scan rate for the port lists
	EventBuffer      int           // UI notification buffer
	LogPath          string
	LogLevel         zapcore.Level
	Palette          string // optional GIMP .gpl palette
}

// Default returns a config with sensible defaults
func Default() *Config {
	logPath := "midi-router.log"
	if dir, err := Dir(); err == nil {
		logPath = filepath.Join(dir, "midi-router.log")
	}
	return &Config{
		PollInterval:     5 * time.Millisecond,
		StopTimeout:      2 * time.Second,
		EnumTimeout:      3 * time.Second,
		PresenceInterval: time.Second,
		WatchInterval:    time.Second,
		EventBuffer:      256,
		LogPath:          logPath,
		LogLevel:         zapcore.InfoLevel,
	}
}

// Dir returns the directory used for the log file
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "midi-router"), nil
}

// RegisterFlags binds the config fields to fs, using current values as
// defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.DurationVar(&c.PollInterval, "poll", c.PollInterval, "input poll interval")
	fs.DurationVar(&c.StopTimeout, "stop-timeout", c.StopTimeout, "max wait for the relay to stop (0 = forever)")
	fs.DurationVar(&c.EnumTimeout, "enum-timeout", c.EnumTimeout, "max wait for port enumeration (0 = forever)")
	fs.DurationVar(&c.PresenceInterval, "presence", c.PresenceInterval, "how often to check the input is still connected (0 = never)")
	fs.DurationVar(&c.WatchInterval, "watch", c.WatchInterval, "port list refresh interval (0 = manual refresh only)")
	fs.IntVar(&c.EventBuffer, "buffer", c.EventBuffer, "UI notification buffer size")
	fs.StringVar(&c.LogPath, "log", c.LogPath, "log file (\"stderr\" to log to the terminal)")
	fs.TextVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&c.Palette, "palette", c.Palette, "GIMP .gpl palette file for the UI")
}

// Validate checks ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", c.PollInterval))
	}
	if c.StopTimeout < 0 {
		errs = append(errs, fmt.Errorf("stop timeout must not be negative, got %s", c.StopTimeout))
	}
	if c.EnumTimeout < 0 {
		errs = append(errs, fmt.Errorf("enumeration timeout must not be negative, got %s", c.EnumTimeout))
	}
	if c.PresenceInterval < 0 {
		errs = append(errs, fmt.Errorf("presence interval must not be negative, got %s", c.PresenceInterval))
	}
	if c.WatchInterval < 0 {
		errs = append(errs, fmt.Errorf("watch interval must not be negative, got %s", c.WatchInterval))
	}
	if c.EventBuffer < 1 {
		errs = append(errs, fmt.Errorf("buffer must be at least 1, got %d", c.EventBuffer))
	}
	if c.LogPath == "" {
		errs = append(errs, errors.New("log path must not be empty"))
	}
	return errors.Join(errs...)
}
