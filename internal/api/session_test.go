package api

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PiranhaCodes/ptyrelay/internal/fifo"
	"github.com/PiranhaCodes/ptyrelay/internal/pty"
)

// TestSessionOverNamedPipe drives a whole session the way the shell
// command wires it: input through the session's named pipe, output as
// JSON lines.
func TestSessionOverNamedPipe(t *testing.T) {
	registry := fifo.NewRegistry(t.TempDir(), nil)
	pipe, err := registry.Create("abc123")
	require.NoError(t, err)

	out := &lockedBuffer{}
	stream := NewStream("abc123", out, nil)

	engine, err := pty.New(pty.Options{
		SessionID:      "abc123",
		Rows:           30,
		Cols:           100,
		Shell:          pty.ShellSpec{Path: "/bin/sh", Args: []string{}},
		Input:          pipe.File(),
		Output:         stream,
		Decoder:        DecodeChunk,
		Notify:         stream.Notify,
		Resources:      []io.Closer{pipe},
		PollInterval:   20 * time.Millisecond,
		StartupGrace:   50 * time.Millisecond,
		TerminateGrace: 500 * time.Millisecond,
	})
	if errors.Is(err, pty.ErrAllocation) {
		pipe.Close()
		t.Skipf("no pseudo-terminal available: %v", err)
	}
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- engine.Run(context.Background())
	}()
	t.Cleanup(func() {
		engine.Terminate()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	})

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"type":"shell_connected"`)
	}, 5*time.Second, 10*time.Millisecond)

	msgs := decodeLines(t, out.String())
	assert.Equal(t, "abc123", msgs[0].SessionID)
	assert.True(t, msgs[0].PTY)

	rows, cols, err := engine.Size()
	require.NoError(t, err)
	assert.Equal(t, 30, rows)
	assert.Equal(t, 100, cols)

	send := func(chunk string) {
		w, err := registry.OpenWriter("abc123")
		require.NoError(t, err)
		_, err = w.Write([]byte(chunk))
		require.NoError(t, err)
		require.NoError(t, w.Close())
		time.Sleep(100 * time.Millisecond)
	}

	send(base64.StdEncoding.EncodeToString([]byte("echo hi\n")))
	require.Eventually(t, func() bool {
		return strings.Contains(decodedOutput(out.String()), "hi")
	}, 5*time.Second, 10*time.Millisecond)

	send(string(pty.ResizeMessage(40, 120)))
	require.Eventually(t, func() bool {
		rows, cols, err := engine.Size()
		return err == nil && rows == 40 && cols == 120
	}, 5*time.Second, 10*time.Millisecond)

	send(string(pty.ExitMarker))
	select {
	case err := <-done:
		require.NoError(t, err)
		done <- err
	case <-time.After(5 * time.Second):
		t.Fatal("session did not close")
	}

	msgs = decodeLines(t, out.String())
	assert.Equal(t, TypeShellConnected, msgs[0].Type)
	assert.Equal(t, TypeShellClosed, msgs[len(msgs)-1].Type)
	assert.Equal(t, 1, countType(msgs, TypeShellConnected))
	assert.Equal(t, 1, countType(msgs, TypeShellClosed))
	assert.Zero(t, countType(msgs, TypeError))

	assert.Nil(t, registry.Get("abc123"))
	_, err = registry.OpenWriter("abc123")
	assert.ErrorIs(t, err, fifo.ErrNoReader)
}

func TestSessionFailureReportsError(t *testing.T) {
	out := &lockedBuffer{}
	stream := NewStream("abc123", out, nil)

	registry := fifo.NewRegistry(t.TempDir(), nil)
	pipe, err := registry.Create("abc123")
	require.NoError(t, err)

	engine, err := pty.New(pty.Options{
		SessionID: "abc123",
		Shell:     pty.ShellSpec{Path: "/nonexistent/shell"},
		Input:     pipe.File(),
		Output:    stream,
		Notify:    stream.Notify,
		Resources: []io.Closer{pipe},
	})
	if errors.Is(err, pty.ErrAllocation) {
		pipe.Close()
		t.Skipf("no pseudo-terminal available: %v", err)
	}
	require.NoError(t, err)

	err = engine.Run(context.Background())
	require.ErrorIs(t, err, pty.ErrSpawnFailed)

	msgs := decodeLines(t, out.String())
	require.Len(t, msgs, 1)
	assert.Equal(t, TypeError, msgs[0].Type)
	assert.Equal(t, "abc123", msgs[0].SessionID)
	assert.NotEmpty(t, msgs[0].Message)
	assert.Empty(t, registry.List())
}
