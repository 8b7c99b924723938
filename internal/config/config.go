// Package config loads ptyrelay settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Shell   ShellConfig
	Relay   RelayConfig
	FIFO    FIFOConfig
	Logging LogConfig
}

// ShellConfig describes the shell started for each session.
type ShellConfig struct {
	Path string   `envconfig:"PTYRELAY_SHELL" default:"/bin/bash"`
	Args []string `envconfig:"PTYRELAY_SHELL_ARGS" default:"--login"`
	Term string   `envconfig:"PTYRELAY_TERM" default:"xterm-256color"`
}

// RelayConfig tunes the relay loop.
type RelayConfig struct {
	PollInterval   time.Duration `envconfig:"PTYRELAY_POLL_INTERVAL" default:"100ms"`
	ChunkSize      int           `envconfig:"PTYRELAY_CHUNK_SIZE" default:"4096"`
	StartupGrace   time.Duration `envconfig:"PTYRELAY_STARTUP_GRACE" default:"100ms"`
	TerminateGrace time.Duration `envconfig:"PTYRELAY_TERMINATE_GRACE" default:"2s"`
}

// FIFOConfig locates per-session input pipes.
type FIFOConfig struct {
	Dir string `envconfig:"PTYRELAY_FIFO_DIR" default:"/tmp"`
}

// LogConfig holds logging configuration. Output defaults to stderr because
// stdout carries session data.
type LogConfig struct {
	Level       string `envconfig:"PTYRELAY_LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"PTYRELAY_LOG_DEV" default:"false"`
	Output      string `envconfig:"PTYRELAY_LOG_OUTPUT" default:"stderr"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the relay loop cannot work with.
func (c *Config) Validate() error {
	if c.Relay.PollInterval <= 0 {
		return fmt.Errorf("invalid config: poll interval must be positive, got %s", c.Relay.PollInterval)
	}
	if c.Relay.ChunkSize <= 0 {
		return fmt.Errorf("invalid config: chunk size must be positive, got %d", c.Relay.ChunkSize)
	}
	if c.FIFO.Dir == "" {
		return fmt.Errorf("invalid config: fifo dir is required")
	}
	return nil
}
