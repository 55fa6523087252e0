// Package router decides which media engine serves a record and builds
// its command line.
package router

import (
	"log/slog"
	"strings"
	"time"

	"github.com/catatau597/tubewranglerr/internal/config"
	"github.com/catatau597/tubewranglerr/internal/ffmpeg"
	"github.com/catatau597/tubewranglerr/internal/process"
	"github.com/catatau597/tubewranglerr/internal/streams"
)

// Engine is an external program that produces the media bytes.
type Engine string

// Engines.
const (
	EngineStreamlink Engine = "streamlink"
	EngineYtDlp      Engine = "yt-dlp"
	EngineFFmpeg     Engine = "ffmpeg"
)

// LiveEngines is the escalation order for genuinely live records.
var LiveEngines = []Engine{EngineStreamlink, EngineYtDlp}

// DefaultLiveEngine is tried first for genuinely live records.
const DefaultLiveEngine = EngineStreamlink

// ParseEngine accepts the engine names used on the command line.
func ParseEngine(s string) (Engine, bool) {
	switch e := Engine(strings.ToLower(strings.TrimSpace(s))); e {
	case EngineStreamlink, EngineYtDlp, EngineFFmpeg:
		return e, true
	}
	return "", false
}

// Options tunes a single routing decision.
type Options struct {
	// LiveEngine overrides DefaultLiveEngine for genuinely live records.
	LiveEngine Engine
	// UserAgent overrides the configured STREAM_USER_AGENT.
	UserAgent string
	// CookiesFile overrides host-based cookie selection.
	CookiesFile string
}

// Command is a fully resolved invocation.
type Command struct {
	Engine Engine
	Path   string
	Args   []string
}

// String renders the command for logs and the route CLI.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Path)
	for _, a := range c.Args {
		if a == "" || strings.ContainsAny(a, " \t'\"") {
			a = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// SettingsSource provides the current runtime settings.
type SettingsSource interface {
	Get() config.Settings
}

// Config wires a Router.
type Config struct {
	Settings SettingsSource
	Spawner  process.Spawner
	// Paths maps an engine to its executable. Missing entries use the
	// engine name.
	Paths  map[Engine]string
	Logger *slog.Logger
}

// Router maps records to engine commands and launches them.
type Router struct {
	settings SettingsSource
	spawner  process.Spawner
	paths    map[Engine]string
	logger   *slog.Logger
}

// New creates a Router.
func New(cfg Config) *Router {
	r := &Router{
		settings: cfg.Settings,
		spawner:  cfg.Spawner,
		paths:    make(map[Engine]string),
		logger:   cfg.Logger,
	}
	for _, e := range []Engine{EngineStreamlink, EngineYtDlp, EngineFFmpeg} {
		r.paths[e] = string(e)
		if p := cfg.Paths[e]; p != "" {
			r.paths[e] = p
		}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Command resolves the engine and argv for rec without side effects other
// than checking which cookie files exist.
func (r *Router) Command(rec streams.Record, opts Options) Command {
	s := r.settings.Get()
	ua := opts.UserAgent
	if ua == "" {
		ua = s.StreamUserAgent
	}

	switch {
	case rec.GenuinelyLive():
		engine := opts.LiveEngine
		if engine != EngineYtDlp {
			engine = EngineStreamlink
		}
		cookies := r.cookiesFor(rec.WatchURL, opts, s)
		if engine == EngineYtDlp {
			return r.command(EngineYtDlp, BuildYtDlpArgs(rec.WatchURL, true, ua, cookies))
		}
		return r.command(EngineStreamlink, BuildStreamlinkArgs(rec.WatchURL, ua, cookies))

	case rec.Status.Recorded():
		return r.command(EngineYtDlp, BuildYtDlpArgs(rec.WatchURL, false, ua, r.cookiesFor(rec.WatchURL, opts, s)))

	default:
		return r.command(EngineFFmpeg, ffmpeg.BuildPlaceholderArgs(r.placeholder(rec, ua, s)))
	}
}

// Route resolves and launches rec. It returns immediately; a child that
// fails to start comes back as a failed Handle.
func (r *Router) Route(rec streams.Record, opts Options) process.Handle {
	cmd := r.Command(rec, opts)
	r.logger.Debug("Routing stream", "video_id", rec.VideoID, "status", rec.Status, "engine", cmd.Engine)
	return r.spawner.Spawn(string(cmd.Engine), cmd.Path, cmd.Args)
}

func (r *Router) command(e Engine, args []string) Command {
	return Command{Engine: e, Path: r.paths[e], Args: args}
}

func (r *Router) cookiesFor(watchURL string, opts Options, s config.Settings) string {
	if opts.CookiesFile != "" {
		return opts.CookiesFile
	}
	return CookieFile(watchURL, s)
}

func (r *Router) placeholder(rec streams.Record, ua string, s config.Settings) ffmpeg.PlaceholderParams {
	image := rec.ThumbnailURL
	if image == "" {
		image = s.PlaceholderImageURL
	}

	loc := time.UTC
	if s.PlaceholderTimezone != "" {
		if l, err := time.LoadLocation(s.PlaceholderTimezone); err == nil {
			loc = l
		} else {
			r.logger.Warn("Invalid placeholder timezone, using UTC", "timezone", s.PlaceholderTimezone, "error", err)
		}
	}

	return ffmpeg.PlaceholderParams{
		ImageURL:  image,
		Title:     rec.Title,
		Scheduled: rec.ScheduledStart,
		Location:  loc,
		FontFile:  s.PlaceholderFont,
		UserAgent: ua,
	}
}
