// Package supervisor keeps one child alive for a streaming session,
// restarting it with exponential backoff when it dies abnormally.
package supervisor

import (
	"errors"
	"log/slog"
	"sync"
	"syscall"
	"time"

	"github.com/catatau597/tubewranglerr/internal/logging"
	"github.com/catatau597/tubewranglerr/internal/process"
)

// Defaults.
const (
	DefaultMonitorInterval = 5 * time.Second
	DefaultMaxRestarts     = 3
	DefaultBaseBackoff     = 750 * time.Millisecond
)

// State is the supervision stage.
type State string

// Supervisor states.
const (
	StateIdle       State = "IDLE"
	StateActive     State = "ACTIVE"
	StateRestarting State = "RESTARTING"
	StateExhausted  State = "EXHAUSTED"
	StateStopped    State = "STOPPED"
)

var (
	ErrAlreadyAttached = errors.New("supervisor already attached")
	ErrStopped         = errors.New("supervisor stopped")
)

// Options configures a Supervisor. Zero values take the defaults.
type Options struct {
	MonitorInterval time.Duration
	// MaxRestarts is the restart budget. Negative means no restarts.
	MaxRestarts int
	BaseBackoff     time.Duration
	Logger          *slog.Logger
	// OnRestart is called before the backoff sleep of every attempt.
	OnRestart func(attempt int, backoff time.Duration)
	// OnExhausted is called once when a death occurs with no restarts left.
	OnExhausted func(last process.Handle)
}

// Backoff is base * 2^(attempt-1) for a 1-indexed attempt.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

// Supervisor watches the child in its slot. A death is noticed by the
// child's Done channel, by Fail, or by the periodic poll; whichever comes
// first performs the restart and the others are dropped.
type Supervisor struct {
	opts   Options
	logger *slog.Logger
	slot   process.Slot

	mu        sync.Mutex
	state     State
	restarts  int
	inFlight  bool
	stopped   bool
	factory   process.Factory
	onProcess func(process.Handle)

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates an idle Supervisor.
func New(opts Options) *Supervisor {
	if opts.MonitorInterval <= 0 {
		opts.MonitorInterval = DefaultMonitorInterval
	}
	switch {
	case opts.MaxRestarts == 0:
		opts.MaxRestarts = DefaultMaxRestarts
	case opts.MaxRestarts < 0:
		opts.MaxRestarts = 0
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = DefaultBaseBackoff
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("supervisor")
	}
	return &Supervisor{
		opts:   opts,
		logger: logger,
		state:  StateIdle,
		stopCh: make(chan struct{}),
	}
}

// Attach installs initial, hands it to onProcess and starts watching it.
// factory builds every replacement; onProcess sees each one before it is
// watched.
func (s *Supervisor) Attach(streamID string, initial process.Handle, factory process.Factory, onProcess func(process.Handle)) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.factory != nil {
		s.mu.Unlock()
		return ErrAlreadyAttached
	}
	s.factory = factory
	s.onProcess = onProcess
	s.logger = s.logger.With("stream_id", streamID)
	s.slot.Replace(initial)
	s.state = StateActive
	s.mu.Unlock()

	if onProcess != nil {
		onProcess(initial)
	}
	s.watch(initial)

	s.wg.Add(1)
	go s.poll()
	return nil
}

// Fail reports that h is broken even though it may still be running, for
// example because its stdout failed. Stale handles are ignored.
func (s *Supervisor) Fail(h process.Handle, cause error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.trigger(h, "error", cause)
	}()
}

// Stop ends supervision. It is idempotent and never blocks on an
// in-progress restart; use Wait for that.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.state = StateStopped
		s.mu.Unlock()
		close(s.stopCh)
	})
}

// Wait blocks until every supervisor goroutine has returned. Call it after
// Stop, never from inside OnRestart, OnExhausted or onProcess.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Current returns the child in the slot.
func (s *Supervisor) Current() process.Handle {
	return s.slot.Current()
}

// IsCurrent reports whether h is the child in the slot.
func (s *Supervisor) IsCurrent(h process.Handle) bool {
	return s.slot.Is(h)
}

func (s *Supervisor) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Supervisor) watch(h process.Handle) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-h.Done():
		case <-s.stopCh:
			return
		}
		if process.CleanExit(h) {
			s.logger.Debug("Process exited cleanly", "engine", h.Engine(), "pid", h.PID())
			return
		}
		reason := "exit"
		if h.SpawnFailed() {
			reason = "spawn"
		}
		s.trigger(h, reason, h.Err())
	}()
}

func (s *Supervisor) poll() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			h := s.slot.Current()
			if h == nil || h.Alive() || process.CleanExit(h) {
				continue
			}
			s.trigger(h, "poll", h.Err())
		}
	}
}

// trigger restarts h's slot unless h is stale, a restart is already
// running, supervision stopped or the restart budget is spent.
func (s *Supervisor) trigger(h process.Handle, reason string, cause error) {
	s.mu.Lock()
	if s.stopped || s.inFlight || !s.slot.Is(h) {
		s.mu.Unlock()
		return
	}
	if s.restarts >= s.opts.MaxRestarts {
		first := s.state != StateExhausted
		s.state = StateExhausted
		restarts := s.restarts
		s.mu.Unlock()
		if first {
			s.logger.Error("Restart limit reached", "restarts", restarts, "engine", h.Engine(), "reason", reason, "error", cause)
			if s.opts.OnExhausted != nil {
				s.opts.OnExhausted(h)
			}
		}
		return
	}
	s.inFlight = true
	s.restarts++
	attempt := s.restarts
	s.state = StateRestarting
	s.mu.Unlock()

	backoff := Backoff(s.opts.BaseBackoff, attempt)
	s.logger.Warn("Process unhealthy, restarting",
		"attempt", attempt,
		"max_restarts", s.opts.MaxRestarts,
		"backoff", backoff,
		"reason", reason,
		"engine", h.Engine(),
		"pid", h.PID(),
		"error", cause)
	if s.opts.OnRestart != nil {
		s.opts.OnRestart(attempt, backoff)
	}

	timer := time.NewTimer(backoff)
	select {
	case <-timer.C:
	case <-s.stopCh:
		timer.Stop()
		s.release()
		return
	}

	if h.Alive() {
		_ = h.Signal(syscall.SIGKILL)
	}

	next := s.factory()

	s.mu.Lock()
	if s.stopped {
		s.inFlight = false
		s.mu.Unlock()
		_ = next.Signal(syscall.SIGKILL)
		return
	}
	s.slot.Replace(next)
	s.state = StateActive
	s.mu.Unlock()

	if s.onProcess != nil {
		s.onProcess(next)
	}
	s.release()
	s.watch(next)
}

func (s *Supervisor) release() {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}
