package pty

import (
	"io"
	"os"
	"time"

	"go.uber.org/zap"
)

// State is the lifecycle state of a session.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Reason records which trigger moved a session to Closing.
type Reason string

const (
	ReasonChildExit Reason = "child_exit"
	ReasonTerminate Reason = "terminate"
	ReasonInputEOF  Reason = "input_eof"
	ReasonOutputEOF Reason = "output_eof"
	ReasonSignal    Reason = "signal"
)

// EventType identifies a lifecycle notification.
type EventType string

const (
	EventStarted EventType = "started"
	EventClosed  EventType = "closed"
	EventFailed  EventType = "failed"
)

// Event is a lifecycle notification. A session that starts emits exactly
// one EventStarted and one EventClosed; a session that fails to start emits
// exactly one EventFailed.
type Event struct {
	Type      EventType
	SessionID string
	PID       int
	// ExitCode is -1 when the shell was killed by a signal.
	ExitCode int
	Reason   Reason
	Err      error
}

// ChunkDecoder transforms an input payload chunk before it is written to
// the PTY master.
type ChunkDecoder func(chunk []byte) []byte

// ChunkEncoder transforms a chunk of shell output before it is written to
// the output channel.
type ChunkEncoder func(chunk []byte) []byte

// Notifier receives lifecycle events.
type Notifier func(Event)

// Default tuning values.
const (
	DefaultChunkSize      = 4096
	DefaultPollInterval   = 100 * time.Millisecond
	DefaultStartupGrace   = 100 * time.Millisecond
	DefaultTerminateGrace = 2 * time.Second
	DefaultRows           = 24
	DefaultCols           = 80
)

// Options configures an Engine.
type Options struct {
	SessionID string
	Rows      int
	Cols      int
	Shell     ShellSpec

	// Input supplies shell input and control markers. It is switched to
	// non-blocking mode and read through its raw descriptor.
	Input *os.File
	// Output receives shell output after Encoder.
	Output io.Writer

	Decoder ChunkDecoder
	Encoder ChunkEncoder
	Notify  Notifier

	// Resources are closed during cleanup after the PTY master, e.g. the
	// named pipe backing Input.
	Resources []io.Closer

	ChunkSize    int
	PollInterval time.Duration
	// StartupGrace is how long a fresh shell must stay alive (or produce
	// output) to count as started. Negative disables the check.
	StartupGrace   time.Duration
	TerminateGrace time.Duration

	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Rows <= 0 {
		o.Rows = DefaultRows
	}
	if o.Cols <= 0 {
		o.Cols = DefaultCols
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.StartupGrace < 0 {
		o.StartupGrace = 0
	} else if o.StartupGrace == 0 {
		o.StartupGrace = DefaultStartupGrace
	}
	if o.TerminateGrace <= 0 {
		o.TerminateGrace = DefaultTerminateGrace
	}
	if o.Decoder == nil {
		o.Decoder = identity
	}
	if o.Encoder == nil {
		o.Encoder = identity
	}
	if o.Notify == nil {
		o.Notify = func(Event) {}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func identity(chunk []byte) []byte { return chunk }
