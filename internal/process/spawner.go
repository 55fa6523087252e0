package process

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/catatau597/tubewranglerr/internal/logging"
)

// Spawner starts a child for an engine.
type Spawner interface {
	Spawn(engine, path string, args []string) Handle
}

// SpawnerOptions configures an ExecSpawner.
type SpawnerOptions struct {
	Logger *slog.Logger
	// EngineLogger returns the logger stderr lines of engine are written
	// to. Defaults to logging.GetLogger(engine).
	EngineLogger func(engine string) logging.Logger
	// OnSpawn observes every attempt; err is nil on success.
	OnSpawn func(engine string, err error)
}

// ExecSpawner runs children with os/exec and tracks the live ones so they
// can be listed and stopped together on shutdown.
type ExecSpawner struct {
	logger       *slog.Logger
	engineLogger func(string) logging.Logger
	onSpawn      func(string, error)

	nextID  atomic.Uint64
	mu      sync.RWMutex
	running map[uint64]*Process
}

var _ Spawner = (*ExecSpawner)(nil)

// NewExecSpawner creates a spawner.
func NewExecSpawner(opts SpawnerOptions) *ExecSpawner {
	s := &ExecSpawner{
		logger:       opts.Logger,
		engineLogger: opts.EngineLogger,
		onSpawn:      opts.OnSpawn,
		running:      make(map[uint64]*Process),
	}
	if s.logger == nil {
		s.logger = logging.GetLogger("process")
	}
	if s.engineLogger == nil {
		s.engineLogger = func(engine string) logging.Logger { return logging.GetLogger(engine) }
	}
	return s
}

// Spawn starts path with args. It never fails; see Handle.SpawnFailed.
func (s *ExecSpawner) Spawn(engine, path string, args []string) Handle {
	p := &Process{
		id:     s.nextID.Add(1),
		engine: engine,
		path:   path,
		args:   args,
		done:   make(chan struct{}),
	}

	if err := p.start(s.engineLogger(engine), ParserFor(engine)); err != nil {
		p.fail(err)
		s.logger.Error("Spawn error", "engine", engine, "path", path, "error", err)
		if s.onSpawn != nil {
			s.onSpawn(engine, err)
		}
		return p
	}

	s.logger.Info("Process started", "id", p.id, "engine", engine, "pid", p.PID(), "command", path+" "+strings.Join(args, " "))
	if s.onSpawn != nil {
		s.onSpawn(engine, nil)
	}

	s.mu.Lock()
	s.running[p.id] = p
	s.mu.Unlock()

	go func() {
		<-p.done
		s.mu.Lock()
		delete(s.running, p.id)
		s.mu.Unlock()
		s.logger.Debug("Process exited", "id", p.id, "engine", engine, "exit_code", p.ExitCode(), "error", p.Err())
	}()
	return p
}

// List describes the running children ordered by id.
func (s *ExecSpawner) List() []Info {
	s.mu.RLock()
	out := make([]Info, 0, len(s.running))
	for _, p := range s.running {
		out = append(out, Describe(p))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Shutdown sends SIGTERM to every running child, waits up to grace (or
// until ctx ends) and then SIGKILLs whatever is left.
func (s *ExecSpawner) Shutdown(ctx context.Context, grace time.Duration) {
	s.mu.RLock()
	procs := make([]*Process, 0, len(s.running))
	for _, p := range s.running {
		procs = append(procs, p)
	}
	s.mu.RUnlock()
	if len(procs) == 0 {
		return
	}

	s.logger.Info("Stopping processes", "count", len(procs), "grace", grace)
	for _, p := range procs {
		if err := p.Signal(syscall.SIGTERM); err != nil {
			s.logger.Warn("Failed to send SIGTERM", "id", p.id, "error", err)
		}
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
wait:
	for _, p := range procs {
		select {
		case <-p.done:
		case <-timer.C:
			break wait
		case <-ctx.Done():
			break wait
		}
	}

	for _, p := range procs {
		if p.Alive() {
			s.logger.Warn("Graceful shutdown timeout, forcing kill", "id", p.id, "pid", p.PID())
			_ = p.Signal(syscall.SIGKILL)
		}
	}
}
