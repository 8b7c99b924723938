package pty

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Defaults applied by ShellSpec when fields are left empty.
const (
	DefaultShell = "/bin/bash"
	DefaultTerm  = "xterm-256color"
)

// DefaultArgs are passed to the shell when ShellSpec.Args is nil.
var DefaultArgs = []string{"--login"}

// ShellSpec describes the process started on the slave side.
type ShellSpec struct {
	Path string
	// Args excludes argv[0]. A nil slice means DefaultArgs; an empty
	// non-nil slice means no arguments.
	Args []string
	// Env is overlaid on the parent environment. TERM and SHELL are set
	// unless Env overrides them.
	Env map[string]string
	Dir string
}

func (s ShellSpec) withDefaults() ShellSpec {
	if s.Path == "" {
		s.Path = DefaultShell
	}
	if s.Args == nil {
		s.Args = DefaultArgs
	}
	return s
}

func (s ShellSpec) environ() []string {
	overlay := map[string]string{
		"TERM":  DefaultTerm,
		"SHELL": s.Path,
	}
	for k, v := range s.Env {
		overlay[k] = v
	}

	base := os.Environ()
	env := make([]string, 0, len(base)+len(overlay))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overlay[key]; ok {
			continue
		}
		env = append(env, kv)
	}
	for k, v := range overlay {
		env = append(env, k+"="+v)
	}
	return env
}

// Child is a shell process running on a PTY slave. Its exit status is
// collected exactly once by a watcher goroutine.
type Child struct {
	cmd    *exec.Cmd
	pid    int
	exited chan struct{}

	// set by the watcher before exited is closed
	state   *os.ProcessState
	waitErr error

	termOnce sync.Once
}

// Spawn starts spec on slave as the leader of a new session with slave as
// its controlling terminal. The caller still owns slave and should close it
// once Spawn returns.
func Spawn(slave *os.File, spec ShellSpec) (*Child, error) {
	spec = spec.withDefaults()

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Env = spec.environ()
	cmd.Dir = spec.Dir
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
		// Ctty is a descriptor number in the child: its stdin.
		Ctty: 0,
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	c := &Child{
		cmd:    cmd,
		pid:    cmd.Process.Pid,
		exited: make(chan struct{}),
	}
	go c.watch()
	return c, nil
}

func (c *Child) watch() {
	err := c.cmd.Wait()
	c.state = c.cmd.ProcessState
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		c.waitErr = err
	}
	close(c.exited)
}

// PID returns the process id of the shell.
func (c *Child) PID() int {
	return c.pid
}

// Exited is closed once the shell has been reaped.
func (c *Child) Exited() <-chan struct{} {
	return c.exited
}

// HasExited reports, without blocking, whether the shell has been reaped.
func (c *Child) HasExited() bool {
	select {
	case <-c.exited:
		return true
	default:
		return false
	}
}

// ExitCode returns the shell's exit code, or -1 while it is running or when
// it was killed by a signal.
func (c *Child) ExitCode() int {
	if !c.HasExited() || c.state == nil {
		return -1
	}
	return c.state.ExitCode()
}

// Terminate asks the shell to stop and waits for it to be reaped. SIGHUP
// and SIGTERM are sent first; interactive shells ignore SIGTERM but honour
// SIGHUP. After grace the process is killed. Safe to call more than once.
func (c *Child) Terminate(grace time.Duration) error {
	var err error
	c.termOnce.Do(func() {
		err = c.terminate(grace)
	})
	return err
}

func (c *Child) terminate(grace time.Duration) error {
	if c.HasExited() {
		return c.waitErr
	}

	_ = c.cmd.Process.Signal(syscall.SIGHUP)
	_ = c.cmd.Process.Signal(syscall.SIGTERM)

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-c.exited:
		return c.waitErr
	case <-timer.C:
	}

	if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill process %d: %w", c.pid, err)
	}
	<-c.exited
	return c.waitErr
}
