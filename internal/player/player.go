// Package player decides how a stored record is served and, in binary
// mode, pipes a supervised engine's stdout to the client.
package player

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/catatau597/tubewranglerr/internal/capabilities"
	"github.com/catatau597/tubewranglerr/internal/events"
	"github.com/catatau597/tubewranglerr/internal/logging"
	"github.com/catatau597/tubewranglerr/internal/process"
	"github.com/catatau597/tubewranglerr/internal/router"
	"github.com/catatau597/tubewranglerr/internal/streams"
	"github.com/catatau597/tubewranglerr/internal/supervisor"
)

// DefaultTimeout bounds every binary session.
const DefaultTimeout = 15 * time.Minute

// HeaderMode names the serving mode on every /stream response.
const HeaderMode = "X-Smart-Player-Mode"

var (
	// ErrRestartsExhausted ends a session whose engine kept dying.
	ErrRestartsExhausted = errors.New("stream restarts exhausted")
	// ErrNotBinary is returned by Serve for a non-binary decision.
	ErrNotBinary = errors.New("decision is not binary")
)

// Kind is the outcome of Decide.
type Kind string

// Decision kinds, also used as HeaderMode values.
const (
	KindRedirect          Kind = "redirect"
	KindBinaryUnavailable Kind = "binary-unavailable"
	KindBinary            Kind = "binary"
)

// Decision is how a request for Record will be served.
type Decision struct {
	Record         streams.Record
	Mode           capabilities.Mode
	Kind           Kind
	RequiredBinary capabilities.Binary
	CanUseBinary   bool
}

// Gate reports whether the binaries a record needs are installed.
type Gate interface {
	CanUseBinaryRoute(ctx context.Context, rec streams.Record) bool
}

// Router launches the engine for a record.
type Router interface {
	Route(rec streams.Record, opts router.Options) process.Handle
}

// Client describes the requester of a session.
type Client struct {
	// SessionID defaults to a random UUID.
	SessionID  string
	RemoteAddr string
	UserAgent  string
}

// Config wires a Player.
type Config struct {
	Store    streams.Store
	Gate     Gate
	Router   Router
	Settings router.SettingsSource
	Bus      *events.Bus
	// Supervisor is the template for every session's supervisor. Its
	// callbacks are replaced per session.
	Supervisor supervisor.Options
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Player serves /stream requests. It is safe for concurrent use; each
// binary request gets its own session and supervisor.
type Player struct {
	store    streams.Store
	gate     Gate
	router   Router
	settings router.SettingsSource
	bus      *events.Bus
	supOpts  supervisor.Options
	timeout  time.Duration
	logger   *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

// New creates a Player.
func New(cfg Config) *Player {
	p := &Player{
		store:    cfg.Store,
		gate:     cfg.Gate,
		router:   cfg.Router,
		settings: cfg.Settings,
		bus:      cfg.Bus,
		supOpts:  cfg.Supervisor,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
		sessions: make(map[string]*session),
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	if p.logger == nil {
		p.logger = logging.GetLogger("player")
	}
	return p
}

// Decide resolves videoID and picks redirect, binary-unavailable or
// binary. An unknown id returns the store's not-found error.
func (p *Player) Decide(ctx context.Context, videoID string) (Decision, error) {
	rec, err := p.store.GetStream(ctx, videoID)
	if err != nil {
		return Decision{}, err
	}

	s := p.settings.Get()
	d := Decision{
		Record:         rec,
		Mode:           capabilities.ParseMode(s.SmartPlayerMode),
		RequiredBinary: capabilities.RequiredBinary(rec),
		CanUseBinary:   p.gate.CanUseBinaryRoute(ctx, rec),
	}

	switch {
	case d.Mode == capabilities.ModeRedirect || (d.Mode == capabilities.ModeAuto && !d.CanUseBinary):
		d.Kind = KindRedirect
		p.logger.Warn("Using redirect fallback",
			"video_id", rec.VideoID,
			"mode", d.Mode,
			"required_binary", d.RequiredBinary,
			"can_use_binary", d.CanUseBinary)
	case d.Mode == capabilities.ModeBinary && !d.CanUseBinary:
		d.Kind = KindBinaryUnavailable
		p.logger.Error("Required binary unavailable in binary mode",
			"video_id", rec.VideoID,
			"required_binary", d.RequiredBinary)
	default:
		d.Kind = KindBinary
	}

	p.bus.Publish(events.StreamDecisionEvent{
		VideoID:        rec.VideoID,
		Mode:           string(d.Mode),
		Decision:       string(d.Kind),
		RequiredBinary: string(d.RequiredBinary),
		Timestamp:      time.Now().Format(time.RFC3339),
	})
	return d, nil
}

// Serve runs a binary session, writing the engine's stdout to w until the
// engine finishes, ctx is cancelled, the timeout fires, a write fails or
// restarts run out. Client cancellation and timeout return nil. If w
// implements Flush() error or http.Flusher it is flushed after each chunk.
func (p *Player) Serve(ctx context.Context, w io.Writer, d Decision, c Client) error {
	if d.Kind != KindBinary {
		return ErrNotBinary
	}
	rec := d.Record

	id := c.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	logger := p.logger.With("session_id", id, "video_id", rec.VideoID)

	if p.settings.Get().ProxyEnableAnalytics {
		logger.Info("Proxy access", "status", rec.Status, "remote_addr", c.RemoteAddr, "user_agent", c.UserAgent)
		p.bus.Publish(events.ProxyAccessEvent{
			SessionID:  id,
			VideoID:    rec.VideoID,
			Status:     string(rec.Status),
			RemoteAddr: c.RemoteAddr,
			UserAgent:  c.UserAgent,
			Timestamp:  time.Now().Format(time.RFC3339),
		})
	}

	sess := newSession(id, rec, w, logger)
	sess.sup = supervisor.New(p.supervisorOptions(sess))

	p.mu.Lock()
	p.sessions[id] = sess
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.sessions, id)
		p.mu.Unlock()
	}()

	factory := p.factory(rec, logger)
	initial := factory()
	if err := sess.sup.Attach(rec.VideoID, initial, factory, sess.bind); err != nil {
		_ = initial.Signal(syscall.SIGKILL)
		return err
	}

	timer := time.NewTimer(p.timeout)
	select {
	case <-ctx.Done():
		sess.teardown(reasonClientClosed, nil, syscall.SIGTERM)
	case <-timer.C:
		logger.Warn("Stream timeout reached, killing process", "timeout", p.timeout)
		sess.teardown(reasonTimeout, nil, syscall.SIGKILL)
	case <-sess.done:
	}
	timer.Stop()

	sess.sup.Wait()
	sess.closeOutputs()
	sess.pumps.Wait()

	reason, err := sess.result()
	ended := events.SessionEndedEvent{
		SessionID:  id,
		VideoID:    rec.VideoID,
		Reason:     reason,
		Bytes:      sess.bytes.Load(),
		Restarts:   sess.sup.Restarts(),
		DurationMs: time.Since(sess.started).Milliseconds(),
		Timestamp:  time.Now().Format(time.RFC3339),
	}
	if err != nil {
		ended.Error = err.Error()
	}
	p.bus.Publish(ended)
	logger.Info("Stream session ended", "reason", reason, "bytes", ended.Bytes, "restarts", ended.Restarts, "duration", time.Since(sess.started))
	return err
}

func (p *Player) supervisorOptions(sess *session) supervisor.Options {
	opts := p.supOpts
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger("supervisor")
	}
	opts.Logger = opts.Logger.With("session_id", sess.id)
	opts.OnRestart = func(attempt int, backoff time.Duration) {
		p.bus.Publish(events.ProcessRestartedEvent{
			SessionID: sess.id,
			VideoID:   sess.rec.VideoID,
			Attempt:   attempt,
			BackoffMs: backoff.Milliseconds(),
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
	opts.OnExhausted = func(last process.Handle) {
		sess.logger.Error("Stream restarts exhausted", "engine", last.Engine(), "error", last.Err())
		sess.teardown(reasonExhausted, ErrRestartsExhausted, syscall.SIGKILL)
	}
	return opts
}

// factory launches rec through the router. For a genuinely live record
// each call after the first moves one step down router.LiveEngines and
// stays on the last entry.
func (p *Player) factory(rec streams.Record, logger *slog.Logger) process.Factory {
	calls := 0
	return func() process.Handle {
		var opts router.Options
		if rec.GenuinelyLive() {
			opts.LiveEngine = router.LiveEngines[min(calls, len(router.LiveEngines)-1)]
			if calls > 0 {
				logger.Warn("Falling back live engine", "attempt", calls+1, "engine", opts.LiveEngine)
			}
		}
		calls++
		return p.router.Route(rec, opts)
	}
}

// SessionInfo describes an active session.
type SessionInfo struct {
	ID        string    `json:"id" doc:"Session identifier"`
	VideoID   string    `json:"video_id" doc:"Stream identifier"`
	Status    string    `json:"status" doc:"Record status"`
	Engine    string    `json:"engine,omitempty" doc:"Engine of the current process"`
	PID       int       `json:"pid,omitempty" doc:"PID of the current process"`
	State     string    `json:"state" doc:"Supervisor state"`
	Restarts  int       `json:"restarts" doc:"Restarts so far"`
	Bytes     int64     `json:"bytes" doc:"Bytes written to the client"`
	StartedAt time.Time `json:"started_at" doc:"Session start"`
}

// Sessions lists active sessions, oldest first.
func (p *Player) Sessions() []SessionInfo {
	p.mu.RLock()
	out := make([]SessionInfo, 0, len(p.sessions))
	for _, s := range p.sessions {
		out = append(out, s.info())
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// flusherFor adapts the flush methods of http.ResponseWriter wrappers.
func flusherFor(w io.Writer) func() error {
	switch f := w.(type) {
	case interface{ Flush() error }:
		return f.Flush
	case http.Flusher:
		return func() error {
			f.Flush()
			return nil
		}
	}
	return nil
}
