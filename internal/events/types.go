package events

// Event type constants for kelindar/event.
const (
	TypeStreamDecision uint32 = iota + 1
	TypeProxyAccess
	TypeProcessSpawned
	TypeProcessRestarted
	TypeSessionEnded
	TypeCapabilitiesProbed
	TypeSettingsReloaded
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StreamDecisionEvent records how a /stream request was routed.
type StreamDecisionEvent struct {
	VideoID        string `json:"video_id" example:"dQw4w9WgXcQ" doc:"Stream identifier"`
	Mode           string `json:"mode" example:"auto" doc:"Configured smart player mode"`
	Decision       string `json:"decision" example:"binary" doc:"One of redirect, binary-unavailable, binary"`
	RequiredBinary string `json:"required_binary" example:"yt-dlp" doc:"Binary the record needs"`
	Timestamp      string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamDecisionEvent.
func (e StreamDecisionEvent) Type() uint32 { return TypeStreamDecision }

// ProxyAccessEvent is the analytics record of a proxied session.
type ProxyAccessEvent struct {
	SessionID  string `json:"session_id" example:"4f0c2b8e-9c1e-4c7a-a7d5-0d7c1b1e2f3a" doc:"Session identifier"`
	VideoID    string `json:"video_id" example:"dQw4w9WgXcQ" doc:"Stream identifier"`
	Status     string `json:"status" example:"live" doc:"Record status at access time"`
	RemoteAddr string `json:"remote_addr,omitempty" example:"192.0.2.10:51234" doc:"Client address"`
	UserAgent  string `json:"user_agent,omitempty" example:"VLC/3.0.20" doc:"Client user agent"`
	Timestamp  string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Access timestamp"`
}

// Type returns the event type identifier for ProxyAccessEvent.
func (e ProxyAccessEvent) Type() uint32 { return TypeProxyAccess }

// ProcessSpawnedEvent is published for every spawn attempt.
type ProcessSpawnedEvent struct {
	Engine    string `json:"engine" example:"streamlink" doc:"Engine binary"`
	Success   bool   `json:"success" doc:"Whether the child started"`
	Error     string `json:"error,omitempty" doc:"Spawn error"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ProcessSpawnedEvent.
func (e ProcessSpawnedEvent) Type() uint32 { return TypeProcessSpawned }

// ProcessRestartedEvent is published when a session schedules a restart.
type ProcessRestartedEvent struct {
	SessionID string `json:"session_id" doc:"Session identifier"`
	VideoID   string `json:"video_id" example:"dQw4w9WgXcQ" doc:"Stream identifier"`
	Attempt   int    `json:"attempt" example:"1" doc:"1-indexed restart attempt"`
	BackoffMs int64  `json:"backoff_ms" example:"750" doc:"Delay before the replacement is spawned"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ProcessRestartedEvent.
func (e ProcessRestartedEvent) Type() uint32 { return TypeProcessRestarted }

// SessionEndedEvent is published once per proxied session.
type SessionEndedEvent struct {
	SessionID  string `json:"session_id" doc:"Session identifier"`
	VideoID    string `json:"video_id" example:"dQw4w9WgXcQ" doc:"Stream identifier"`
	Reason     string `json:"reason" example:"client_closed" doc:"completed, client_closed, timeout, write_error or exhausted"`
	Bytes      int64  `json:"bytes" example:"1048576" doc:"Bytes written to the client"`
	Restarts   int    `json:"restarts" example:"0" doc:"Restarts performed"`
	DurationMs int64  `json:"duration_ms" example:"60000" doc:"Session duration"`
	Error      string `json:"error,omitempty" doc:"Terminal error"`
	Timestamp  string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionEndedEvent.
func (e SessionEndedEvent) Type() uint32 { return TypeSessionEnded }

// CapabilitiesProbedEvent is published when the capability memo is populated.
type CapabilitiesProbedEvent struct {
	FFmpeg     bool   `json:"ffmpeg" doc:"ffmpeg found on PATH"`
	Streamlink bool   `json:"streamlink" doc:"streamlink found on PATH"`
	YtDlp      bool   `json:"yt_dlp" doc:"yt-dlp found on PATH"`
	Timestamp  string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CapabilitiesProbedEvent.
func (e CapabilitiesProbedEvent) Type() uint32 { return TypeCapabilitiesProbed }

// SettingsReloadedEvent is published after settings.toml is re-read.
type SettingsReloadedEvent struct {
	Mode      string `json:"mode" example:"auto" doc:"Smart player mode now in effect"`
	Analytics bool   `json:"analytics" doc:"Whether proxy analytics are enabled"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SettingsReloadedEvent.
func (e SettingsReloadedEvent) Type() uint32 { return TypeSettingsReloaded }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2026-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"player" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
