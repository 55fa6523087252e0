package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/catatau597/tubewranglerr/cmd"
	"github.com/catatau597/tubewranglerr/internal/api"
	"github.com/catatau597/tubewranglerr/internal/capabilities"
	"github.com/catatau597/tubewranglerr/internal/config"
	"github.com/catatau597/tubewranglerr/internal/events"
	"github.com/catatau597/tubewranglerr/internal/logging"
	"github.com/catatau597/tubewranglerr/internal/metrics"
	"github.com/catatau597/tubewranglerr/internal/player"
	"github.com/catatau597/tubewranglerr/internal/process"
	"github.com/catatau597/tubewranglerr/internal/router"
	"github.com/catatau597/tubewranglerr/internal/supervisor"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Address to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Record store settings
	StoreBackend string `help:"Record store backend (toml, sqlite)" default:"toml" toml:"store.backend" env:"STORE_BACKEND"`
	StreamsFile  string `help:"TOML record file" default:"streams.toml" toml:"store.streams_file" env:"STORE_STREAMS_FILE"`
	DatabasePath string `help:"SQLite database written by the sync job" default:"tubewranglerr.db" toml:"store.database_path" env:"STORE_DATABASE_PATH"`

	// Runtime settings file, hot-reloaded
	SettingsFile string `help:"Runtime settings file" default:"settings.toml" toml:"settings.file" env:"SETTINGS_FILE"`

	// Player settings
	StreamTimeout   time.Duration `help:"Maximum duration of a binary session" default:"15m" toml:"player.stream_timeout" env:"PLAYER_STREAM_TIMEOUT"`
	MonitorInterval time.Duration `help:"Supervisor health poll interval" default:"5s" toml:"player.monitor_interval" env:"PLAYER_MONITOR_INTERVAL"`
	MaxRestarts     int           `help:"Restarts allowed per session (negative disables restarts)" default:"3" toml:"player.max_restarts" env:"PLAYER_MAX_RESTARTS"`
	RestartBackoff  time.Duration `help:"Base restart backoff, doubled per attempt" default:"750ms" toml:"player.restart_backoff" env:"PLAYER_RESTART_BACKOFF"`
	ShutdownGrace   time.Duration `help:"Grace period before engines are killed on shutdown" default:"5s" toml:"player.shutdown_grace" env:"PLAYER_SHUTDOWN_GRACE"`

	// Engine binaries
	FFmpegPath     string `help:"ffmpeg executable" default:"ffmpeg" toml:"engines.ffmpeg" env:"ENGINES_FFMPEG"`
	StreamlinkPath string `help:"streamlink executable" default:"streamlink" toml:"engines.streamlink" env:"ENGINES_STREAMLINK"`
	YtDlpPath      string `help:"yt-dlp executable" default:"yt-dlp" toml:"engines.yt_dlp" env:"ENGINES_YT_DLP"`
	AssumeBinaries string `help:"Comma-separated binaries to treat as installed without probing" default:"" toml:"engines.assume_binaries" env:"ENGINES_ASSUME_BINARIES"`

	// Observability settings
	MetricsEnabled bool `help:"Serve Prometheus metrics on /metrics" default:"true" toml:"obs.prometheus_enabled" env:"OBS_PROMETHEUS_ENABLED"`

	// Auth settings, disabled when either is empty
	AuthUsername string `help:"Basic auth username" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingPlayer     string `help:"Player logging level" default:"info" toml:"logging.player" env:"LOGGING_PLAYER"`
	LoggingSupervisor string `help:"Supervisor logging level" default:"info" toml:"logging.supervisor" env:"LOGGING_SUPERVISOR"`
	LoggingProcess    string `help:"Process logging level" default:"info" toml:"logging.process" env:"LOGGING_PROCESS"`
	LoggingAPI        string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingEngines    string `help:"Engine stderr logging level" default:"info" toml:"logging.engines" env:"LOGGING_ENGINES"`
}

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Warn("Failed to load .env", "error", err)
	}

	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// [logging] in config.toml may name any module; the flags below
		// cover the common ones and win over the file.
		loggingConfig := config.LoadLoggingConfig(opts.Config)
		loggingConfig.Level = opts.LoggingLevel
		loggingConfig.Format = opts.LoggingFormat
		for module, level := range map[string]string{
			"player":     opts.LoggingPlayer,
			"supervisor": opts.LoggingSupervisor,
			"process":    opts.LoggingProcess,
			"api":        opts.LoggingAPI,
			"ffmpeg":     opts.LoggingEngines,
			"streamlink": opts.LoggingEngines,
			"yt-dlp":     opts.LoggingEngines,
		} {
			loggingConfig.Modules[module] = level
		}
		logging.Initialize(loggingConfig)
		logger := logging.GetLogger("main")

		eventBus := events.New()
		logging.SetLogCallback(api.LogForwarder(eventBus))

		var unsubscribeMetrics func()
		if opts.MetricsEnabled {
			unsubscribeMetrics = metrics.Subscribe(eventBus)
		}

		// Runtime settings
		settings, err := config.LoadSettings(opts.SettingsFile)
		if err != nil {
			logger.Warn("Failed to load settings, using defaults", "error", err)
			settings = config.DefaultSettings()
		}
		settingsStore := config.NewSettingsStore(settings)
		settingsWatcher := config.NewConfigWatcher(opts.SettingsFile, config.LoadSettings, logging.GetLogger("config"),
			config.WithErrorHandler[config.Settings](func(err error) {
				logger.Warn("Settings reload failed, keeping previous values", "error", err)
			}))
		settingsWatcher.OnReload(func(s config.Settings) {
			settingsStore.Set(s)
			eventBus.Publish(events.SettingsReloadedEvent{
				Mode:      string(capabilities.ParseMode(s.SmartPlayerMode)),
				Analytics: s.ProxyEnableAnalytics,
				Timestamp: time.Now().Format(time.RFC3339),
			})
		})

		// Record store
		recordStore, storeWatcher, err := cmd.OpenStore(cmd.StoreOptions{
			Backend:      opts.StoreBackend,
			StreamsFile:  opts.StreamsFile,
			DatabasePath: opts.DatabasePath,
		}, true)
		if err != nil {
			logger.Error("Failed to open record store", "backend", opts.StoreBackend, "error", err)
			os.Exit(1)
		}

		// Capabilities
		prober := capabilities.NewProber(capabilities.Options{
			Commands: map[capabilities.Binary]string{
				capabilities.FFmpeg:     opts.FFmpegPath,
				capabilities.Streamlink: opts.StreamlinkPath,
				capabilities.YtDlp:      opts.YtDlpPath,
			},
			Logger: logging.GetLogger("capabilities"),
			OnProbe: func(c capabilities.Capabilities) {
				eventBus.Publish(events.CapabilitiesProbedEvent{
					FFmpeg:     c.FFmpeg,
					Streamlink: c.Streamlink,
					YtDlp:      c.YtDlp,
					Timestamp:  time.Now().Format(time.RFC3339),
				})
			},
		})
		if assumed := capabilities.ParseBinaries(opts.AssumeBinaries); len(assumed) > 0 {
			prober.Set(capabilities.Assume(assumed...))
			logger.Info("Using assumed capabilities", "binaries", opts.AssumeBinaries)
		}

		// Engines
		spawner := process.NewExecSpawner(process.SpawnerOptions{
			Logger: logging.GetLogger("process"),
			OnSpawn: func(engine string, spawnErr error) {
				ev := events.ProcessSpawnedEvent{
					Engine:    engine,
					Success:   spawnErr == nil,
					Timestamp: time.Now().Format(time.RFC3339),
				}
				if spawnErr != nil {
					ev.Error = spawnErr.Error()
				}
				eventBus.Publish(ev)
			},
		})
		streamRouter := router.New(router.Config{
			Settings: settingsStore,
			Spawner:  spawner,
			Paths: map[router.Engine]string{
				router.EngineFFmpeg:     opts.FFmpegPath,
				router.EngineStreamlink: opts.StreamlinkPath,
				router.EngineYtDlp:      opts.YtDlpPath,
			},
			Logger: logging.GetLogger("router"),
		})

		smartPlayer := player.New(player.Config{
			Store:    recordStore,
			Gate:     prober,
			Router:   streamRouter,
			Settings: settingsStore,
			Bus:      eventBus,
			Supervisor: supervisor.Options{
				MonitorInterval: opts.MonitorInterval,
				MaxRestarts:     opts.MaxRestarts,
				BaseBackoff:     opts.RestartBackoff,
			},
			Timeout: opts.StreamTimeout,
		})

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			Store:        recordStore,
			Player:       smartPlayer,
			Prober:       prober,
			Processes:    spawner,
			Settings:     settingsStore,
			EventBus:     eventBus,
		}
		if opts.MetricsEnabled {
			apiOpts.PrometheusHandler = metrics.Handler()
		}
		server := api.NewServer(apiOpts)

		hooks.OnStart(func() {
			if startErr := settingsWatcher.Start(); startErr != nil {
				logger.Warn("Failed to start settings watcher, hot-reload disabled", "error", startErr)
			}
			if storeWatcher != nil {
				if startErr := storeWatcher.Start(); startErr != nil {
					logger.Warn("Failed to start streams watcher, hot-reload disabled", "error", startErr)
				}
			}

			// Warm the capability memo so the first request does not pay for it.
			caps := prober.Probe(context.Background(), false)
			logger.Info("Capabilities", "ffmpeg", caps.FFmpeg, "streamlink", caps.Streamlink, "yt_dlp", caps.YtDlp,
				"mode", capabilities.ParseMode(settingsStore.Get().SmartPlayerMode))

			if startErr := server.Start(opts.Port); startErr != nil {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			ctx, cancel := context.WithTimeout(context.Background(), opts.ShutdownGrace+5*time.Second)
			defer cancel()

			// Stopping the server cancels every /stream request, which
			// terminates its engine; Shutdown catches anything left.
			if stopErr := server.Stop(ctx); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			spawner.Shutdown(ctx, opts.ShutdownGrace)

			_ = settingsWatcher.Stop()
			if storeWatcher != nil {
				_ = storeWatcher.Stop()
			}
			if unsubscribeMetrics != nil {
				unsubscribeMetrics()
			}
			if closeErr := recordStore.Close(); closeErr != nil {
				logger.Warn("Error closing record store", "error", closeErr)
			}
		})
	})

	cli.Root().Use = "tubewranglerr"
	cli.Root().AddCommand(cmd.CreateProbeCmd())
	cli.Root().AddCommand(cmd.CreateRouteCmd())
	cli.Root().AddCommand(cmd.CreateImportCmd())

	cli.Run()
}
