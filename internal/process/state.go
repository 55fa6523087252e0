package process

import "time"

// State is the lifecycle stage of a spawned child.
type State string

// Process states.
const (
	StateRunning State = "running"
	StateExited  State = "exited"
	StateFailed  State = "failed" // never started
)

// Info describes a child tracked by an ExecSpawner.
type Info struct {
	ID        uint64    `json:"id"`
	Engine    string    `json:"engine"`
	PID       int       `json:"pid"`
	State     State     `json:"state"`
	StartedAt time.Time `json:"started_at"`
	ExitCode  int       `json:"exit_code"`
	Error     string    `json:"error,omitempty"`
}

// Describe builds Info for any Handle.
func Describe(h Handle) Info {
	info := Info{ID: h.ID(), Engine: h.Engine(), PID: h.PID(), State: StateRunning}
	if p, ok := h.(*Process); ok {
		info.StartedAt = p.StartedAt()
	}
	select {
	case <-h.Done():
		info.State = StateExited
		if h.SpawnFailed() {
			info.State = StateFailed
		}
		info.ExitCode = h.ExitCode()
		if err := h.Err(); err != nil {
			info.Error = err.Error()
		}
	default:
	}
	return info
}
