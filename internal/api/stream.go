package api

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/PiranhaCodes/ptyrelay/internal/pty"
)

// Stream writes envelope messages for one session as JSON lines.
type Stream struct {
	sessionID string
	w         io.Writer
	log       *zap.Logger
	mu        sync.Mutex
}

// NewStream creates a stream for sessionID writing to w.
func NewStream(sessionID string, w io.Writer, logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stream{
		sessionID: sessionID,
		w:         w,
		log:       logger.Named("api"),
	}
}

// Send writes one message followed by a newline.
func (s *Stream) Send(msg Message) error {
	line, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(line)
	return err
}

// EncodeChunk wraps raw shell output in a terminal_output line. It is meant
// to be used as the engine's chunk encoder with the stream's writer as the
// engine output.
func (s *Stream) EncodeChunk(chunk []byte) []byte {
	line, err := json.Marshal(Output(s.sessionID, base64.StdEncoding.EncodeToString(chunk)))
	if err != nil {
		s.log.Warn("Failed to encode output", zap.Error(err))
		return nil
	}
	return append(line, '\n')
}

// Write encodes p as a terminal_output message. It lets a Stream serve as
// the engine output directly, without an encoder.
func (s *Stream) Write(p []byte) (int, error) {
	line := s.EncodeChunk(p)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(line); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Notify translates engine lifecycle events into envelope messages.
func (s *Stream) Notify(ev pty.Event) {
	var msg Message
	switch ev.Type {
	case pty.EventStarted:
		msg = Connected(s.sessionID)
	case pty.EventClosed:
		msg = Closed(s.sessionID)
	case pty.EventFailed:
		text := "session failed to start"
		if ev.Err != nil {
			text = ev.Err.Error()
		}
		msg = Error(s.sessionID, text)
	default:
		return
	}
	if err := s.Send(msg); err != nil {
		s.log.Debug("Failed to send lifecycle message",
			zap.String("session_id", s.sessionID),
			zap.String("type", msg.Type),
			zap.Error(err))
	}
}

// DecodeChunk base64-decodes an input chunk. Chunks that are not valid
// base64 are passed through unchanged.
func DecodeChunk(chunk []byte) []byte {
	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(chunk)))
	n, err := base64.StdEncoding.Decode(decoded, chunk)
	if err != nil {
		return chunk
	}
	return decoded[:n]
}
