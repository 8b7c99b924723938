package pty

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

var errAlreadyStarted = errors.New("pty: session already started")

// Engine runs one shell session on a PTY. The relay loop runs on the
// goroutine that calls Run; Terminate and State may be called from any
// goroutine.
type Engine struct {
	opts Options
	log  *zap.Logger

	pair     *Pair
	master   *os.File
	masterFd int
	inputFd  int
	// F_GETFL flags of the input before it was made non-blocking
	inputFlags int
	inputSaved bool

	child *Child
	buf   []byte

	state   atomic.Int32
	started atomic.Bool

	terminate     chan struct{}
	terminateOnce sync.Once
	releaseOnce   sync.Once
	closeOnce     sync.Once
}

// New allocates the PTY for a session. The returned engine is in
// StateCreated; call Run to spawn the shell.
func New(opts Options) (*Engine, error) {
	if opts.Input == nil || opts.Output == nil {
		return nil, errors.New("pty: input and output are required")
	}
	opts = opts.withDefaults()

	pair, err := Allocate(opts.Rows, opts.Cols)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		opts:      opts,
		log:       opts.Logger.With(zap.String("session_id", opts.SessionID)),
		pair:      pair,
		master:    pair.Master,
		buf:       make([]byte, opts.ChunkSize),
		terminate: make(chan struct{}),
	}
	e.state.Store(int32(StateCreated))
	return e, nil
}

// SessionID returns the identifier the engine was created with.
func (e *Engine) SessionID() string {
	return e.opts.SessionID
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// PID returns the shell's process id, or 0 before it is spawned.
func (e *Engine) PID() int {
	if e.State() == StateCreated || e.child == nil {
		return 0
	}
	return e.child.PID()
}

// Size reports the current window size of the session's terminal. Once
// cleanup has begun it returns os.ErrClosed.
func (e *Engine) Size() (rows, cols int, err error) {
	switch e.State() {
	case StateClosing, StateClosed:
		return 0, 0, os.ErrClosed
	case StateCreated:
		return Size(e.master)
	}
	ws, err := unix.IoctlGetWinsize(e.masterFd, unix.TIOCGWINSZ)
	if err != nil {
		return 0, 0, err
	}
	return int(ws.Row), int(ws.Col), nil
}

// Terminate asks the relay loop to stop. The loop finishes its current
// iteration and then runs cleanup.
func (e *Engine) Terminate() {
	e.terminateOnce.Do(func() {
		close(e.terminate)
	})
}

// Close releases an engine that was never run. On a running engine it is
// equivalent to Terminate.
func (e *Engine) Close() error {
	if e.started.CompareAndSwap(false, true) {
		e.release()
		e.state.Store(int32(StateClosed))
		return nil
	}
	e.Terminate()
	return nil
}

// Run spawns the shell and relays until a termination trigger fires. It
// returns an error only when the shell could not be started; every other
// outcome is reported through the closed event.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errAlreadyStarted
	}

	if err := e.start(); err != nil {
		e.fail(err)
		return err
	}

	e.state.Store(int32(StateRunning))
	e.log.Info("Session started",
		zap.Int("pid", e.child.PID()),
		zap.String("shell", e.opts.Shell.withDefaults().Path),
		zap.Int("rows", e.opts.Rows),
		zap.Int("cols", e.opts.Cols))
	e.opts.Notify(Event{
		Type:      EventStarted,
		SessionID: e.opts.SessionID,
		PID:       e.child.PID(),
	})

	reason := e.loop(ctx)
	e.shutdown(reason)
	return nil
}

func (e *Engine) start() error {
	child, err := Spawn(e.pair.Slave, e.opts.Shell)
	// the child holds its own copy of the slave
	e.pair.Slave.Close()
	e.pair.Slave = nil
	if err != nil {
		return err
	}
	e.child = child

	e.masterFd = int(e.master.Fd())
	if err := unix.SetNonblock(e.masterFd, true); err != nil {
		return fmt.Errorf("%w: failed to set master non-blocking: %v", ErrSpawnFailed, err)
	}

	e.inputFd = int(e.opts.Input.Fd())
	if flags, err := unix.FcntlInt(uintptr(e.inputFd), unix.F_GETFL, 0); err == nil {
		e.inputFlags = flags
		e.inputSaved = true
	}
	if err := unix.SetNonblock(e.inputFd, true); err != nil {
		e.log.Warn("Failed to set input non-blocking", zap.Error(err))
	}

	return e.awaitStartup()
}

// awaitStartup treats a shell that exits within the grace window without
// writing anything as a failed start.
func (e *Engine) awaitStartup() error {
	if e.opts.StartupGrace <= 0 {
		return nil
	}

	timer := time.NewTimer(e.opts.StartupGrace)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-e.child.Exited():
	}

	if e.masterReadable() {
		return nil
	}
	return fmt.Errorf("%w: %s exited with code %d during startup",
		ErrSpawnFailed, e.opts.Shell.withDefaults().Path, e.child.ExitCode())
}

func (e *Engine) masterReadable() bool {
	fds := []unix.PollFd{{Fd: int32(e.masterFd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 0)
	return err == nil && n > 0 && fds[0].Revents&unix.POLLIN != 0
}

func (e *Engine) loop(ctx context.Context) Reason {
	fds := []unix.PollFd{
		{Fd: int32(e.inputFd), Events: unix.POLLIN},
		{Fd: int32(e.masterFd), Events: unix.POLLIN},
	}
	timeout := pollTimeout(e.opts.PollInterval)

	for {
		fds[0].Revents, fds[1].Revents = 0, 0

		_, err := unix.Poll(fds, timeout)
		switch {
		case err == nil:
			// Input first: control messages take priority over draining output.
			if ready(fds[0]) {
				if reason, done := e.handleInput(); done {
					return reason
				}
			}
			if ready(fds[1]) {
				if reason, done := e.handleOutput(); done {
					return reason
				}
			}
		case errors.Is(err, unix.EINTR):
		default:
			e.log.Warn("Poll failed", zap.Error(err))
			return ReasonInputEOF
		}

		if reason, done := e.checkLiveness(ctx); done {
			return reason
		}
	}
}

func (e *Engine) checkLiveness(ctx context.Context) (Reason, bool) {
	select {
	case <-e.child.Exited():
		return ReasonChildExit, true
	case <-e.terminate:
		return ReasonTerminate, true
	case <-ctx.Done():
		return ReasonSignal, true
	default:
		return "", false
	}
}

func (e *Engine) handleInput() (Reason, bool) {
	n, err := unix.Read(e.inputFd, e.buf)
	if err != nil {
		if wouldBlock(err) {
			return "", false
		}
		e.log.Debug("Input read failed", zap.Error(err))
		return ReasonInputEOF, true
	}
	if n == 0 {
		return ReasonInputEOF, true
	}

	chunk := e.buf[:n]
	ctl := ParseControl(chunk)
	switch ctl.Kind {
	case ControlResize:
		if !ctl.Valid {
			e.log.Debug("Ignoring malformed resize", zap.ByteString("chunk", chunk))
			return "", false
		}
		e.resize(ctl.Rows, ctl.Cols)
	case ControlExit:
		return ReasonTerminate, true
	default:
		if err := e.writeMaster(e.opts.Decoder(chunk)); err != nil {
			e.log.Debug("Master write failed", zap.Error(err))
			return ReasonOutputEOF, true
		}
	}
	return "", false
}

func (e *Engine) handleOutput() (Reason, bool) {
	n, err := unix.Read(e.masterFd, e.buf)
	if err != nil {
		if wouldBlock(err) {
			return "", false
		}
		// EIO once every slave descriptor is closed
		e.log.Debug("Master read failed", zap.Error(err))
		return ReasonOutputEOF, true
	}
	if n == 0 {
		return ReasonOutputEOF, true
	}

	if _, err := e.opts.Output.Write(e.opts.Encoder(e.buf[:n])); err != nil {
		e.log.Debug("Output write failed", zap.Error(err))
		return ReasonOutputEOF, true
	}
	return "", false
}

func (e *Engine) resize(rows, cols int) {
	if err := Resize(e.master, rows, cols); err != nil {
		e.log.Warn("Resize failed", zap.Int("rows", rows), zap.Int("cols", cols), zap.Error(err))
	}
	// Setsize may go through File.Fd, which puts the descriptor back
	// into blocking mode.
	_ = unix.SetNonblock(e.masterFd, true)
	e.log.Debug("Resized", zap.Int("rows", rows), zap.Int("cols", cols))
}

// writeMaster writes p to the master, waiting at most one poll interval for
// the terminal to accept it. Whatever is left after that is dropped.
func (e *Engine) writeMaster(p []byte) error {
	deadline := time.Now().Add(e.opts.PollInterval)
	for len(p) > 0 {
		n, err := unix.Write(e.masterFd, p)
		if n > 0 {
			p = p[n:]
		}
		switch {
		case err == nil:
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN):
			remaining := time.Until(deadline)
			if remaining <= 0 {
				e.log.Debug("Dropping input, terminal not accepting writes", zap.Int("bytes", len(p)))
				return nil
			}
			fds := []unix.PollFd{{Fd: int32(e.masterFd), Events: unix.POLLOUT}}
			_, _ = unix.Poll(fds, pollTimeout(remaining))
		default:
			return err
		}
	}
	return nil
}

func ready(fd unix.PollFd) bool {
	return fd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0
}

func wouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR)
}

func pollTimeout(d time.Duration) int {
	ms := int(d / time.Millisecond)
	if ms < 1 {
		return 1
	}
	return ms
}
