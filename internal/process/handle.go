package process

import (
	"errors"
	"io"
	"syscall"
)

// ErrSpawn wraps every error caused by failing to start a child.
var ErrSpawn = errors.New("spawn failed")

// Handle is a spawned (or failed-to-spawn) child process.
type Handle interface {
	// ID is unique per spawner and never reused.
	ID() uint64
	Engine() string
	// PID is 0 when the child never started.
	PID() int
	// Stdout yields the payload until EOF. Exactly one reader must drain it.
	Stdout() io.ReadCloser
	// Done is closed once the child has exited or failed to start.
	Done() <-chan struct{}
	// Err is nil for a clean exit. It wraps ErrSpawn for a spawn failure.
	Err() error
	// ExitCode is valid after Done; -1 when killed by a signal.
	ExitCode() int
	SpawnFailed() bool
	Alive() bool
	// Signal delivers sig to the child's process group. Signalling an
	// exited child is not an error.
	Signal(sig syscall.Signal) error
}

// Factory produces a replacement Handle for a session.
type Factory func() Handle

// CleanExit reports whether h has exited with status 0.
func CleanExit(h Handle) bool {
	select {
	case <-h.Done():
		return h.Err() == nil && !h.SpawnFailed()
	default:
		return false
	}
}
