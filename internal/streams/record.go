package streams

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state the sync job stored for a broadcast.
type Status string

// Known statuses.
const (
	StatusLive     Status = "live"
	StatusUpcoming Status = "upcoming"
	StatusNone     Status = "none"
	StatusVOD      Status = "vod"
)

// ParseStatus normalizes s. Unknown values are returned as-is so the
// router can still treat them as not-yet-live.
func ParseStatus(s string) Status {
	return Status(strings.ToLower(strings.TrimSpace(s)))
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusLive, StatusUpcoming, StatusNone, StatusVOD:
		return true
	}
	return false
}

// Recorded reports whether the broadcast is finished or was never live.
func (s Status) Recorded() bool {
	return s == StatusNone || s == StatusVOD
}

// Record is a stored broadcast. The proxy only reads it.
type Record struct {
	VideoID        string     `toml:"video_id" json:"video_id"`
	Status         Status     `toml:"status" json:"status"`
	WatchURL       string     `toml:"watch_url" json:"watch_url"`
	ThumbnailURL   string     `toml:"thumbnail_url,omitempty" json:"thumbnail_url,omitempty"`
	Title          string     `toml:"title,omitempty" json:"title,omitempty"`
	ChannelName    string     `toml:"channel_name,omitempty" json:"channel_name,omitempty"`
	ScheduledStart *time.Time `toml:"scheduled_start,omitempty" json:"scheduled_start,omitempty"`
	ActualStart    *time.Time `toml:"actual_start,omitempty" json:"actual_start,omitempty"`
	ActualEnd      *time.Time `toml:"actual_end,omitempty" json:"actual_end,omitempty"`
}

// GenuinelyLive is true only for a live record that has started and not
// ended. It is evaluated on every call and never cached.
func (r Record) GenuinelyLive() bool {
	return r.Status == StatusLive && r.ActualStart != nil && r.ActualEnd == nil
}

// Validate checks the fields the router relies on.
func (r Record) Validate() error {
	if r.VideoID == "" {
		return NewStreamError(ErrCodeInvalidRecord, "video_id is required", nil)
	}
	if r.WatchURL == "" {
		return NewStreamError(ErrCodeInvalidRecord, fmt.Sprintf("stream %q has no watch_url", r.VideoID), nil)
	}
	return nil
}

// Store is the read side of record storage.
type Store interface {
	// GetStream returns the record for videoID or a STREAM_NOT_FOUND error.
	GetStream(ctx context.Context, videoID string) (Record, error)
	ListStreams(ctx context.Context) ([]Record, error)
	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error
	Close() error
}
