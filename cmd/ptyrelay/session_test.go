package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/PiranhaCodes/ptyrelay/internal/pty"
)

type failingCloser struct {
	closed bool
}

func (f *failingCloser) Close() error {
	f.closed = true
	return errors.New("already gone")
}

func TestReleaseOnErrorLogsCloseFailure(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	closer := &failingCloser{}

	var events []pty.Event
	cause := errors.New("no shell")
	err := releaseOnError(zap.New(core), pty.Options{
		SessionID: "abc123",
		Notify:    func(ev pty.Event) { events = append(events, ev) },
		Resources: []io.Closer{closer},
	}, cause)

	assert.Same(t, cause, err)
	assert.True(t, closer.closed)

	require.Len(t, events, 1)
	assert.Equal(t, pty.EventFailed, events[0].Type)
	assert.Equal(t, "abc123", events[0].SessionID)

	entries := logs.FilterMessage("Failed to release session resource").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "abc123", entries[0].ContextMap()["session_id"])
}

func TestShellCommandRemovesPipeOnFailedStart(t *testing.T) {
	p, err := pty.Allocate(pty.DefaultRows, pty.DefaultCols)
	if errors.Is(err, pty.ErrAllocation) {
		t.Skipf("no pseudo-terminal available: %v", err)
	}
	require.NoError(t, err)
	p.Close()

	t.Setenv("PTYRELAY_SHELL", "/bin/sh")
	t.Setenv("PTYRELAY_SHELL_ARGS", "-c,exit 3")
	t.Setenv("PTYRELAY_STARTUP_GRACE", "1s")

	dir := t.TempDir()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs([]string{"shell", "--fifo-dir", dir, "abc123", "30", "100"})
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)

	err = cmd.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, pty.ErrSpawnFailed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"type":"error"`)
	assert.Contains(t, lines[0], `"sessionId":"abc123"`)
}
