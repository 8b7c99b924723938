// Package pty runs a single shell session on a pseudo-terminal and relays
// bytes between it and a caller-supplied transport. It covers PTY
// allocation, spawning and reaping the shell, the in-band control protocol
// (resize and exit markers carried in the input stream) and the cleanup
// sequence shared by every termination path.
package pty
