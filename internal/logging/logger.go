package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

const defaultBufferSize = 1000

// Logger is satisfied by *slog.Logger. Packages that only emit logs accept
// this instead of the concrete type so tests can pass a discard logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config controls the global level, output format and per-module overrides.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

type registry struct {
	mu          sync.RWMutex
	cfg         Config
	initialized bool
	loggers     map[string]*slog.Logger
	levels      map[string]*slog.LevelVar
	buffer      *RingBuffer
	callback    LogCallback
}

var state = &registry{
	loggers: make(map[string]*slog.Logger),
	levels:  make(map[string]*slog.LevelVar),
}

// Initialize applies cfg to every module logger, including ones created
// before this call, and installs the default slog logger.
func Initialize(cfg Config) {
	state.mu.Lock()
	defer state.mu.Unlock()

	state.cfg = cfg
	state.initialized = true
	if state.buffer == nil {
		state.buffer = NewRingBuffer(defaultBufferSize)
	}

	for module, lv := range state.levels {
		lv.Set(state.levelFor(module))
		state.loggers[module] = slog.New(newHandler(cfg.Format, lv)).With("module", module)
	}

	global := &slog.LevelVar{}
	global.Set(state.levelFor(""))
	slog.SetDefault(slog.New(newHandler(cfg.Format, global)))
}

// GetLogger returns the logger for module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	state.mu.RLock()
	logger, ok := state.loggers[module]
	state.mu.RUnlock()
	if ok {
		return logger
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if logger, ok := state.loggers[module]; ok {
		return logger
	}

	lv := &slog.LevelVar{}
	format := "text"
	if state.initialized {
		lv.Set(state.levelFor(module))
		format = state.cfg.Format
	}

	logger = slog.New(newHandler(format, lv)).With("module", module)
	state.loggers[module] = logger
	state.levels[module] = lv
	return logger
}

// SetModuleLevel changes a module's level at runtime. Unknown levels are ignored.
func SetModuleLevel(module, level string) bool {
	parsed, ok := parseLevel(level)
	if !ok {
		return false
	}
	GetLogger(module)

	state.mu.Lock()
	defer state.mu.Unlock()
	state.levels[module].Set(parsed)
	return true
}

// GetBuffer returns the ring buffer holding recent log entries.
func GetBuffer() *RingBuffer {
	state.mu.RLock()
	defer state.mu.RUnlock()
	return state.buffer
}

// SetLogCallback registers a function invoked for every buffered entry.
func SetLogCallback(cb LogCallback) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.callback = cb
}

func sink() (*RingBuffer, LogCallback) {
	state.mu.RLock()
	defer state.mu.RUnlock()
	return state.buffer, state.callback
}

// levelFor must be called with state.mu held.
func (r *registry) levelFor(module string) slog.Level {
	level := slog.LevelInfo
	if parsed, ok := parseLevel(r.cfg.Level); ok {
		level = parsed
	}
	if module != "" {
		if parsed, ok := parseLevel(r.cfg.Modules[module]); ok {
			level = parsed
		}
	}
	return level
}

// newHandler fans out to stdout, the journal when present, and the ring buffer.
func newHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdout slog.Handler
	if format == "json" {
		stdout = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdout = slog.NewTextHandler(os.Stdout, opts)
	}

	var handlers []slog.Handler
	if stdoutAttached() {
		handlers = append(handlers, stdout)
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	handlers = append(handlers, NewBufferHandler(level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewMultiHandler(handlers...)
}

// stdoutAttached is false when stdout points at /dev/null or is closed.
func stdoutAttached() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0 || mode.IsRegular()
}

func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
