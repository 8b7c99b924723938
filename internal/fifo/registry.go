// Package fifo locates a session's input conduit by session id. Each
// conduit is a named pipe under a directory chosen by the caller, so no
// global path convention leaks into the session engine.
package fifo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

var (
	// ErrInvalidID is returned for session ids that cannot name a file.
	ErrInvalidID = errors.New("fifo: invalid session id")
	// ErrNoReader is returned by OpenWriter when no session is reading
	// the pipe.
	ErrNoReader = errors.New("fifo: no session is reading the pipe")
)

const (
	filePrefix = "ptyrelay-"
	fileSuffix = ".fifo"
)

// Registry tracks the named pipes created in one directory.
type Registry struct {
	dir   string
	log   *zap.Logger
	pipes map[string]*Pipe
	mu    sync.RWMutex
}

// NewRegistry returns a registry rooted at dir. A nil logger disables
// logging.
func NewRegistry(dir string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		dir:   dir,
		log:   logger.Named("fifo"),
		pipes: make(map[string]*Pipe),
	}
}

// Path returns where the pipe for id lives.
func (r *Registry) Path(id string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	return filepath.Join(r.dir, filePrefix+id+fileSuffix), nil
}

// Create makes the named pipe for id, replacing any stale file at that
// path, and opens it for non-blocking reads. A keepalive write end is held
// open so that writers coming and going never produce end-of-file.
func (r *Registry) Create(id string) (*Pipe, error) {
	path, err := r.Path(id)
	if err != nil {
		return nil, err
	}

	if old := r.Get(id); old != nil {
		old.Close()
	}

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create pipe directory: %w", err)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove existing FIFO: %w", err)
	}

	if err := unix.Mkfifo(path, 0600); err != nil {
		return nil, fmt.Errorf("failed to create FIFO: %w", err)
	}

	reader, err := os.OpenFile(path, os.O_RDONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to open FIFO for reading: %w", err)
	}

	keepalive, err := os.OpenFile(path, os.O_WRONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		reader.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to open FIFO keepalive writer: %w", err)
	}

	p := &Pipe{
		ID:        id,
		Path:      path,
		reader:    reader,
		keepalive: keepalive,
		registry:  r,
	}

	r.mu.Lock()
	r.pipes[id] = p
	r.mu.Unlock()

	r.log.Debug("Created pipe", zap.String("session_id", id), zap.String("path", path))
	return p, nil
}

// OpenWriter opens the write end of the pipe for id. It fails with
// ErrNoReader when no session has the pipe open.
func (r *Registry) OpenWriter(id string) (*os.File, error) {
	path, err := r.Path(id)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		if errors.Is(err, syscall.ENXIO) || os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoReader, path)
		}
		return nil, err
	}
	return f, nil
}

// Get retrieves a pipe by session id. Returns nil if not found.
func (r *Registry) Get(id string) *Pipe {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pipes[id]
}

// List returns all registered pipes.
func (r *Registry) List() []*Pipe {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pipes := make([]*Pipe, 0, len(r.pipes))
	for _, p := range r.pipes {
		pipes = append(pipes, p)
	}
	return pipes
}

// CloseAll closes every registered pipe.
func (r *Registry) CloseAll() {
	for _, p := range r.List() {
		if err := p.Close(); err != nil {
			r.log.Warn("Failed to close pipe", zap.String("session_id", p.ID), zap.Error(err))
		}
	}
}

func (r *Registry) forget(p *Pipe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pipes[p.ID] == p {
		delete(r.pipes, p.ID)
	}
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, "/\\\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
