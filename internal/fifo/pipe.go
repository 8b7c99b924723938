package fifo

import (
	"errors"
	"os"
	"sync"

	"go.uber.org/zap"
)

// Pipe is one session's named pipe.
type Pipe struct {
	ID   string
	Path string

	reader    *os.File
	keepalive *os.File
	registry  *Registry

	closeOnce sync.Once
	closeErr  error
}

// File returns the read end.
func (p *Pipe) File() *os.File {
	return p.reader
}

// Close closes both ends, removes the pipe from disk and drops it from the
// registry. Safe to call more than once.
func (p *Pipe) Close() error {
	p.closeOnce.Do(func() {
		p.closeFiles()
		if err := os.Remove(p.Path); err != nil && !os.IsNotExist(err) {
			p.registry.log.Warn("Failed to remove FIFO", zap.String("path", p.Path), zap.Error(err))
			p.closeErr = err
		}
		p.registry.forget(p)
		p.registry.log.Debug("Removed pipe", zap.String("session_id", p.ID), zap.String("path", p.Path))
	})
	return p.closeErr
}

func (p *Pipe) closeFiles() {
	for _, f := range []*os.File{p.keepalive, p.reader} {
		if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			p.registry.log.Debug("Failed to close FIFO end", zap.String("path", p.Path), zap.Error(err))
		}
	}
}
