package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults() *Config {
	return &Config{
		Shell: ShellConfig{
			Path: "/bin/bash",
			Args: []string{"--login"},
			Term: "xterm-256color",
		},
		Relay: RelayConfig{
			PollInterval:   100 * time.Millisecond,
			ChunkSize:      4096,
			StartupGrace:   100 * time.Millisecond,
			TerminateGrace: 2 * time.Second,
		},
		FIFO: FIFOConfig{
			Dir: "/tmp",
		},
		Logging: LogConfig{
			Level:  "info",
			Output: "stderr",
		},
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, defaults(), cfg)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PTYRELAY_SHELL", "/bin/zsh")
	t.Setenv("PTYRELAY_SHELL_ARGS", "-l,-i")
	t.Setenv("PTYRELAY_POLL_INTERVAL", "50ms")
	t.Setenv("PTYRELAY_CHUNK_SIZE", "1024")
	t.Setenv("PTYRELAY_TERMINATE_GRACE", "5s")
	t.Setenv("PTYRELAY_FIFO_DIR", "/run/ptyrelay")
	t.Setenv("PTYRELAY_LOG_LEVEL", "debug")
	t.Setenv("PTYRELAY_LOG_DEV", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/bin/zsh", cfg.Shell.Path)
	assert.Equal(t, []string{"-l", "-i"}, cfg.Shell.Args)
	assert.Equal(t, 50*time.Millisecond, cfg.Relay.PollInterval)
	assert.Equal(t, 1024, cfg.Relay.ChunkSize)
	assert.Equal(t, 5*time.Second, cfg.Relay.TerminateGrace)
	assert.Equal(t, "/run/ptyrelay", cfg.FIFO.Dir)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unparsable chunk size", "PTYRELAY_CHUNK_SIZE", "big"},
		{"zero chunk size", "PTYRELAY_CHUNK_SIZE", "0"},
		{"unparsable poll interval", "PTYRELAY_POLL_INTERVAL", "soon"},
		{"negative poll interval", "PTYRELAY_POLL_INTERVAL", "-1s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, defaults().Validate())

	cfg := defaults()
	cfg.FIFO.Dir = ""
	assert.Error(t, cfg.Validate())

	cfg = defaults()
	cfg.Relay.PollInterval = 0
	assert.Error(t, cfg.Validate())
}
