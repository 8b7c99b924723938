package pty

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// fallbackShells are tried in order when the preferred shell is unusable.
var fallbackShells = []string{
	"/bin/bash",
	"/bin/zsh",
	"/bin/sh",
}

// ResolveShell returns preferred when it is executable. Otherwise it falls
// back to $SHELL, then /bin/bash, /bin/zsh and /bin/sh.
func ResolveShell(preferred string) (string, error) {
	if preferred != "" && isExecutable(preferred) {
		return preferred, nil
	}

	if shell := os.Getenv("SHELL"); shell != "" && isExecutable(shell) {
		return shell, nil
	}

	for _, candidate := range fallbackShells {
		if isExecutable(candidate) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no shell found: checked %q, $SHELL, /bin/bash, /bin/zsh, /bin/sh", preferred)
}

// isExecutable checks if a file exists and is executable.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	mode := info.Mode()
	if !mode.IsRegular() {
		return false
	}

	if mode&0111 != 0 {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return false
		}
		_, err = exec.LookPath(absPath)
		return err == nil
	}

	return false
}
