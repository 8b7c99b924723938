package api

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
)

const (
	forwardChunk    = 4096
	forwardInterval = time.Second
)

// Forward copies raw bytes from r into terminal_output messages on s until
// r reaches end-of-file, fails, or ctx is cancelled. A shell_closed message
// is always sent last.
func Forward(ctx context.Context, r *os.File, s *Stream) error {
	defer func() {
		if err := s.Send(Closed(s.sessionID)); err != nil {
			s.log.Debug("Failed to send close message", zap.String("session_id", s.sessionID), zap.Error(err))
		}
	}()

	buf := make([]byte, forwardChunk)
	for {
		// Deadlines only work on pollable files; a regular file just
		// reads through to EOF.
		_ = r.SetReadDeadline(time.Now().Add(forwardInterval))
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := s.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			switch {
			case errors.Is(err, os.ErrDeadlineExceeded):
			case errors.Is(err, io.EOF):
				return nil
			default:
				s.log.Debug("Forward read failed", zap.String("session_id", s.sessionID), zap.Error(err))
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}
