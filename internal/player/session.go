package player

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/catatau597/tubewranglerr/internal/process"
	"github.com/catatau597/tubewranglerr/internal/streams"
	"github.com/catatau597/tubewranglerr/internal/supervisor"
)

const chunkSize = 64 * 1024

// Session end reasons.
const (
	reasonCompleted    = "completed"
	reasonClientClosed = "client_closed"
	reasonTimeout      = "timeout"
	reasonWriteError   = "write_error"
	reasonExhausted    = "exhausted"
)

// session is one binary response. Every terminal path goes through
// teardown, and only the first call has any effect.
type session struct {
	id      string
	rec     streams.Record
	started time.Time
	logger  *slog.Logger
	sup     *supervisor.Supervisor
	w       io.Writer
	flush   func() error

	writeMu sync.Mutex
	closed  atomic.Bool
	bytes   atomic.Int64

	mu      sync.Mutex
	handles []process.Handle
	reason  string
	err     error

	once  sync.Once
	done  chan struct{}
	pumps sync.WaitGroup
}

func newSession(id string, rec streams.Record, w io.Writer, logger *slog.Logger) *session {
	return &session{
		id:      id,
		rec:     rec,
		started: time.Now(),
		logger:  logger,
		w:       w,
		flush:   flusherFor(w),
		done:    make(chan struct{}),
	}
}

// bind is the supervisor's onProcess: it starts pumping h's stdout.
func (s *session) bind(h process.Handle) {
	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()

	s.logger.Debug("Process bound", "engine", h.Engine(), "pid", h.PID(), "id", h.ID())
	s.pumps.Add(1)
	go s.pump(h)
}

func (s *session) pump(h process.Handle) {
	defer s.pumps.Done()

	r := h.Stdout()
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 && !s.enqueue(h, buf[:n]) {
			return
		}
		if err == nil {
			continue
		}
		if s.closed.Load() || !s.sup.IsCurrent(h) {
			return
		}
		if errors.Is(err, io.EOF) {
			s.ended(h)
			return
		}
		s.logger.Error("Process output error", "engine", h.Engine(), "pid", h.PID(), "error", err)
		s.sup.Fail(h, err)
		return
	}
}

// enqueue writes chunk if h is still the current process. It returns
// false once the session is closed.
func (s *session) enqueue(h process.Handle, chunk []byte) bool {
	if s.closed.Load() {
		return false
	}
	if !s.sup.IsCurrent(h) {
		return true
	}

	s.writeMu.Lock()
	if s.closed.Load() {
		s.writeMu.Unlock()
		return false
	}
	_, err := s.w.Write(chunk)
	if err == nil && s.flush != nil {
		err = s.flush()
	}
	s.writeMu.Unlock()

	if err != nil {
		s.logger.Warn("Client write failed, stopping stream", "error", err)
		s.teardown(reasonWriteError, fmt.Errorf("write stream: %w", err), syscall.SIGTERM)
		return false
	}
	s.bytes.Add(int64(len(chunk)))
	s.logger.Debug("Chunk forwarded", "bytes", len(chunk), "engine", h.Engine())
	return true
}

// ended handles stdout EOF of the current process. A clean exit closes
// the session; an abnormal one is left to the supervisor.
func (s *session) ended(h process.Handle) {
	select {
	case <-h.Done():
	case <-s.done:
		return
	}
	if !s.sup.IsCurrent(h) {
		return
	}
	if process.CleanExit(h) || s.sup.Stopped() {
		s.teardown(reasonCompleted, nil, 0)
		return
	}
	if !h.SpawnFailed() {
		s.logger.Error("Process error", "engine", h.Engine(), "pid", h.PID(), "exit_code", h.ExitCode(), "error", h.Err())
	}
}

// teardown closes the session: no more writes, no more restarts, then
// sig (if any) to the current process.
func (s *session) teardown(reason string, err error, sig syscall.Signal) {
	s.once.Do(func() {
		s.closed.Store(true)
		s.sup.Stop()
		if sig != 0 {
			if h := s.sup.Current(); h != nil && h.Alive() {
				if serr := h.Signal(sig); serr != nil {
					s.logger.Warn("Failed to signal process", "signal", sig, "error", serr)
				}
			}
		}
		s.mu.Lock()
		s.reason = reason
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

// closeOutputs unblocks pumps still reading from children that ignored
// their signal.
func (s *session) closeOutputs() {
	s.mu.Lock()
	handles := append([]process.Handle(nil), s.handles...)
	s.mu.Unlock()
	for _, h := range handles {
		_ = h.Stdout().Close()
	}
}

func (s *session) result() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason, s.err
}

func (s *session) info() SessionInfo {
	info := SessionInfo{
		ID:        s.id,
		VideoID:   s.rec.VideoID,
		Status:    string(s.rec.Status),
		State:     string(s.sup.State()),
		Restarts:  s.sup.Restarts(),
		Bytes:     s.bytes.Load(),
		StartedAt: s.started,
	}
	if h := s.sup.Current(); h != nil {
		info.Engine = h.Engine()
		info.PID = h.PID()
	}
	return info
}
