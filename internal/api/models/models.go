// Package models holds the request and response bodies of the HTTP API.
package models

import (
	"time"

	"github.com/catatau597/tubewranglerr/internal/player"
	"github.com/catatau597/tubewranglerr/internal/process"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Name      string `json:"name" example:"tubewranglerr" doc:"Program name"`
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2026-01-15 14:30" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go compiler version"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Capability models
type CapabilitiesData struct {
	FFmpeg     bool   `json:"ffmpeg" doc:"ffmpeg is installed"`
	Streamlink bool   `json:"streamlink" doc:"streamlink is installed"`
	YtDlp      bool   `json:"yt_dlp" doc:"yt-dlp is installed"`
	Mode       string `json:"mode" example:"auto" doc:"Smart player mode in effect"`
}

type CapabilitiesResponse struct {
	Body CapabilitiesData
}

// Stream record models
type StreamRecordData struct {
	VideoID        string     `json:"video_id" example:"dQw4w9WgXcQ" doc:"Stream identifier"`
	Status         string     `json:"status" example:"live" doc:"Stored lifecycle status"`
	WatchURL       string     `json:"watch_url" doc:"Source page"`
	ThumbnailURL   string     `json:"thumbnail_url,omitempty" doc:"Thumbnail used by the placeholder"`
	Title          string     `json:"title,omitempty" doc:"Broadcast title"`
	ChannelName    string     `json:"channel_name,omitempty" doc:"Channel name"`
	ScheduledStart *time.Time `json:"scheduled_start,omitempty" doc:"Scheduled start"`
	ActualStart    *time.Time `json:"actual_start,omitempty" doc:"Actual start"`
	ActualEnd      *time.Time `json:"actual_end,omitempty" doc:"Actual end"`
	GenuinelyLive  bool       `json:"genuinely_live" doc:"Live, started and not ended"`
	RequiredBinary string     `json:"required_binary" example:"yt-dlp" doc:"Binary gating the binary route"`
	StreamURL      string     `json:"stream_url" example:"/stream/dQw4w9WgXcQ" doc:"Proxy URL"`
}

type StreamRecordResponse struct {
	Body StreamRecordData
}

type StreamListData struct {
	Streams []StreamRecordData `json:"streams" doc:"Stored records"`
	Count   int                `json:"count" example:"1" doc:"Number of records"`
}

type StreamListResponse struct {
	Body StreamListData
}

// Player models
type SessionsData struct {
	Sessions []player.SessionInfo `json:"sessions" doc:"Active binary sessions"`
	Count    int                  `json:"count" example:"1" doc:"Number of sessions"`
}

type SessionsResponse struct {
	Body SessionsData
}

type ProcessesData struct {
	Processes []process.Info `json:"processes" doc:"Running engine processes"`
	Count     int            `json:"count" example:"1" doc:"Number of processes"`
}

type ProcessesResponse struct {
	Body ProcessesData
}

// Settings models
type SettingsData struct {
	SmartPlayerMode      string `json:"smart_player_mode" example:"auto" doc:"auto, binary or redirect"`
	ProxyEnableAnalytics bool   `json:"proxy_enable_analytics" doc:"Log and publish proxy access"`
	PlaceholderImageURL  string `json:"placeholder_image_url,omitempty" doc:"Fallback placeholder image"`
	StreamUserAgent      string `json:"stream_user_agent,omitempty" doc:"User agent passed to engines"`
	StreamCookiesPath    string `json:"stream_cookies_path,omitempty" doc:"Fallback cookie jar"`
	CookiesDir           string `json:"cookies_dir" doc:"Directory of per-site cookie jars"`
	PlaceholderTimezone  string `json:"placeholder_timezone" doc:"Timezone of the placeholder date"`
}

type SettingsResponse struct {
	Body SettingsData
}

// Log models
type LogEntryData struct {
	Timestamp  time.Time      `json:"timestamp" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"player" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured attributes"`
}

type LogsData struct {
	Entries []LogEntryData `json:"entries" doc:"Most recent entries, oldest first"`
	Count   int            `json:"count" example:"100" doc:"Number of entries"`
}

type LogsResponse struct {
	Body LogsData
}

type LogLevelRequest struct {
	Body struct {
		Module string `json:"module" example:"player" doc:"Module name"`
		Level  string `json:"level" example:"debug" enum:"debug,info,warn,error" doc:"New level"`
	}
}
