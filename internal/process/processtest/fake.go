// Package processtest provides a scriptable process.Handle for tests.
package processtest

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/catatau597/tubewranglerr/internal/process"
)

var ids atomic.Uint64

// Fake is an in-memory child. Stdout is a pipe fed by Write; Exit closes
// it and marks the child done. Any terminating signal makes it exit as if
// killed.
type Fake struct {
	id     uint64
	engine string
	r      *io.PipeReader
	w      *io.PipeWriter
	done   chan struct{}

	mu          sync.Mutex
	err         error
	code        int
	spawnFailed bool
	signals     []syscall.Signal
	ignoreSig   bool
	exitOnce    sync.Once
}

var _ process.Handle = (*Fake)(nil)

// New returns a running fake for engine.
func New(engine string) *Fake {
	r, w := io.Pipe()
	return &Fake{id: ids.Add(1), engine: engine, r: r, w: w, done: make(chan struct{})}
}

// Failed returns a fake that never started.
func Failed(engine string, cause error) *Fake {
	f := New(engine)
	f.mu.Lock()
	f.spawnFailed = true
	f.mu.Unlock()
	f.exit(-1, fmt.Errorf("%w: %s: %w", process.ErrSpawn, engine, cause))
	return f
}

// IgnoreSignals makes Signal record without exiting.
func (f *Fake) IgnoreSignals() *Fake {
	f.mu.Lock()
	f.ignoreSig = true
	f.mu.Unlock()
	return f
}

// Write emits a stdout chunk. It blocks until the chunk is read.
func (f *Fake) Write(p []byte) (int, error) { return f.w.Write(p) }

// FailStdout makes the next stdout read return err while the child keeps
// running.
func (f *Fake) FailStdout(err error) { f.w.CloseWithError(err) }

// Exit ends the child with code. Non-zero codes produce an error.
func (f *Fake) Exit(code int) {
	var err error
	if code != 0 {
		err = fmt.Errorf("exit status %d", code)
	}
	f.exit(code, err)
}

func (f *Fake) exit(code int, err error) {
	f.exitOnce.Do(func() {
		f.mu.Lock()
		f.code = code
		f.err = err
		f.mu.Unlock()
		f.w.Close()
		close(f.done)
	})
}

// Signals returns every signal received.
func (f *Fake) Signals() []syscall.Signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]syscall.Signal(nil), f.signals...)
}

func (f *Fake) ID() uint64 { return f.id }

func (f *Fake) Engine() string { return f.engine }

func (f *Fake) PID() int {
	if f.SpawnFailed() {
		return 0
	}
	return 10000 + int(f.id)
}

func (f *Fake) Stdout() io.ReadCloser { return f.r }

func (f *Fake) Done() <-chan struct{} { return f.done }

func (f *Fake) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *Fake) ExitCode() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.code
}

func (f *Fake) SpawnFailed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.spawnFailed
}

func (f *Fake) Alive() bool {
	select {
	case <-f.done:
		return false
	default:
		return !f.SpawnFailed()
	}
}

func (f *Fake) Signal(sig syscall.Signal) error {
	f.mu.Lock()
	f.signals = append(f.signals, sig)
	ignore := f.ignoreSig
	f.mu.Unlock()

	if !ignore && (sig == syscall.SIGTERM || sig == syscall.SIGKILL || sig == syscall.SIGINT) {
		f.exit(-1, errors.New("signal: "+sig.String()))
	}
	return nil
}

// Spawner hands out fakes in order and records the requested commands.
type Spawner struct {
	mu    sync.Mutex
	calls []Call
	next  func(engine string) process.Handle
}

// Call is one recorded Spawn.
type Call struct {
	Engine string
	Path   string
	Args   []string
	Handle process.Handle
}

// NewSpawner returns a spawner that builds each Handle with next. A nil
// next yields running fakes.
func NewSpawner(next func(engine string) process.Handle) *Spawner {
	if next == nil {
		next = func(engine string) process.Handle { return New(engine) }
	}
	return &Spawner{next: next}
}

// Spawn implements process.Spawner.
func (s *Spawner) Spawn(engine, path string, args []string) process.Handle {
	h := s.next(engine)
	s.mu.Lock()
	s.calls = append(s.calls, Call{Engine: engine, Path: path, Args: args, Handle: h})
	s.mu.Unlock()
	return h
}

// Calls returns every recorded Spawn.
func (s *Spawner) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}
