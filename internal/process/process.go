package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/catatau597/tubewranglerr/internal/logging"
)

// Process is the os/exec backed Handle.
type Process struct {
	id        uint64
	engine    string
	path      string
	args      []string
	startedAt time.Time

	cmd    *exec.Cmd
	stdout io.ReadCloser
	done   chan struct{}

	mu          sync.RWMutex
	err         error
	exitCode    int
	spawnFailed bool
}

var _ Handle = (*Process)(nil)

func (p *Process) ID() uint64            { return p.id }
func (p *Process) Engine() string        { return p.engine }
func (p *Process) Stdout() io.ReadCloser { return p.stdout }
func (p *Process) Done() <-chan struct{} { return p.done }

// Command returns the executable and its arguments.
func (p *Process) Command() (string, []string) { return p.path, p.args }

// StartedAt is the spawn time.
func (p *Process) StartedAt() time.Time { return p.startedAt }

func (p *Process) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *Process) Err() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.err
}

func (p *Process) ExitCode() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitCode
}

func (p *Process) SpawnFailed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.spawnFailed
}

func (p *Process) Alive() bool {
	if p.PID() == 0 {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Signal sends sig to the whole process group. ESRCH means the group is
// already gone and is ignored.
func (p *Process) Signal(sig syscall.Signal) error {
	pid := p.PID()
	if pid == 0 || !p.Alive() {
		return nil
	}
	if err := syscall.Kill(-pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("signal %s to pgid %d: %w", sig, pid, err)
	}
	return nil
}

// fail marks p as never started.
func (p *Process) fail(err error) {
	p.mu.Lock()
	p.err = fmt.Errorf("%w: %s: %w", ErrSpawn, p.engine, err)
	p.exitCode = -1
	p.spawnFailed = true
	p.mu.Unlock()
	p.stdout = io.NopCloser(strings.NewReader(""))
	close(p.done)
}

func (p *Process) finish(err error) {
	p.mu.Lock()
	p.err = err
	p.exitCode = exitCodeFromError(err)
	p.mu.Unlock()
	close(p.done)
}

// start launches the child with stdout and stderr on pipes owned by us, so
// Wait never closes the read ends before they are drained.
func (p *Process) start(logger logging.Logger, parser LogParser) error {
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return fmt.Errorf("stderr pipe: %w", err)
	}

	p.cmd = exec.Command(p.path, p.args...)
	p.cmd.Stdout = stdoutW
	p.cmd.Stderr = stderrW
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	err = p.cmd.Start()
	// The child holds its own copies of the write ends.
	stdoutW.Close()
	stderrW.Close()
	if err != nil {
		stdoutR.Close()
		stderrR.Close()
		return err
	}

	p.startedAt = time.Now()
	p.stdout = stdoutR
	go logStderr(stderrR, logger, parser)
	go func() { p.finish(p.cmd.Wait()) }()
	return nil
}

// exitCodeFromError is 0 for nil, the child's code for an ExitError (-1
// when signalled) and 1 otherwise.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

func logStderr(r io.ReadCloser, logger logging.Logger, parser LogParser) {
	defer r.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		level, msg := "info", line
		if parser != nil {
			level, msg = parser(line)
		}
		switch level {
		case "panic", "fatal", "error":
			logger.Error(msg)
		case "warning", "warn":
			logger.Warn(msg)
		case "verbose", "debug", "trace":
			logger.Debug(msg)
		default:
			logger.Info(msg)
		}
	}
}
