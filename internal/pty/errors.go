package pty

import "errors"

var (
	// ErrAllocation is returned when the host cannot provide a new
	// pseudo-terminal pair.
	ErrAllocation = errors.New("pty: no pseudo-terminal available")

	// ErrSpawnFailed is returned when the shell could not be started or
	// exited before producing any output.
	ErrSpawnFailed = errors.New("pty: shell failed to start")
)
