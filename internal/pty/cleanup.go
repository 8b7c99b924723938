package pty

import (
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// maxDrainReads bounds how much buffered output is flushed after the shell
// exits on its own.
const maxDrainReads = 64

// shutdown runs the cleanup sequence shared by every termination trigger:
// stop and reap the shell, close the master, release session resources and
// emit the closed event. Only the first call has any effect.
func (e *Engine) shutdown(reason Reason) {
	e.closeOnce.Do(func() {
		e.state.Store(int32(StateClosing))
		e.log.Info("Closing session", zap.String("reason", string(reason)))

		if reason == ReasonChildExit {
			e.drainOutput()
		}

		if err := e.child.Terminate(e.opts.TerminateGrace); err != nil {
			e.log.Warn("Failed to stop shell", zap.Int("pid", e.child.PID()), zap.Error(err))
		}

		e.release()
		e.state.Store(int32(StateClosed))

		exitCode := e.child.ExitCode()
		e.log.Info("Session closed",
			zap.String("reason", string(reason)),
			zap.Int("pid", e.child.PID()),
			zap.Int("exit_code", exitCode))
		e.opts.Notify(Event{
			Type:      EventClosed,
			SessionID: e.opts.SessionID,
			PID:       e.child.PID(),
			ExitCode:  exitCode,
			Reason:    reason,
		})
	})
}

// fail cleans up after a start that never reached StateRunning.
func (e *Engine) fail(err error) {
	e.closeOnce.Do(func() {
		e.log.Error("Session failed to start", zap.Error(err))

		pid := 0
		if e.child != nil {
			pid = e.child.PID()
			if terr := e.child.Terminate(e.opts.TerminateGrace); terr != nil {
				e.log.Warn("Failed to stop shell", zap.Int("pid", pid), zap.Error(terr))
			}
		}

		e.release()
		e.state.Store(int32(StateClosed))

		e.opts.Notify(Event{
			Type:      EventFailed,
			SessionID: e.opts.SessionID,
			PID:       pid,
			ExitCode:  -1,
			Err:       err,
		})
	})
}

// release closes the PTY and every session resource exactly once.
func (e *Engine) release() {
	e.releaseOnce.Do(func() {
		if e.inputSaved {
			if _, err := unix.FcntlInt(uintptr(e.inputFd), unix.F_SETFL, e.inputFlags); err != nil {
				e.log.Debug("Failed to restore input flags", zap.Error(err))
			}
		}

		e.pair.Close()

		for _, r := range e.opts.Resources {
			if err := r.Close(); err != nil {
				e.log.Warn("Failed to release session resource", zap.Error(err))
			}
		}
	})
}

// drainOutput forwards output the shell wrote before exiting.
func (e *Engine) drainOutput() {
	for i := 0; i < maxDrainReads; i++ {
		n, err := unix.Read(e.masterFd, e.buf)
		if err != nil || n <= 0 {
			if err != nil && !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EIO) {
				e.log.Debug("Drain stopped", zap.Error(err))
			}
			return
		}
		if _, err := e.opts.Output.Write(e.opts.Encoder(e.buf[:n])); err != nil {
			return
		}
	}
}
