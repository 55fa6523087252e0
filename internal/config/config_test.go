package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

type testOptions struct {
	Config string

	Port          int           `toml:"server.port" env:"PORT"`
	StreamsSource string        `toml:"streams.source" env:"STREAMS_SOURCE"`
	Prometheus    bool          `toml:"metrics.prometheus" env:"PROMETHEUS"`
	StreamTimeout time.Duration `toml:"player.stream_timeout" env:"STREAM_TIMEOUT"`
	LiveEngines   []string      `toml:"player.live_engines" env:"LIVE_ENGINES"`
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := writeFile(t, "config.toml", `
[server]
port = 9090

[streams]
source = "sqlite"

[metrics]
prometheus = true

[player]
stream_timeout = "2m"
live_engines = ["yt-dlp", "streamlink"]
`)

	opts := &testOptions{Config: path, Port: 8888}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	want := &testOptions{
		Config:        path,
		Port:          9090,
		StreamsSource: "sqlite",
		Prometheus:    true,
		StreamTimeout: 2 * time.Minute,
		LiveEngines:   []string{"yt-dlp", "streamlink"},
	}
	if !reflect.DeepEqual(opts, want) {
		t.Errorf("got %+v\nwant %+v", opts, want)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "config.toml", "[server]\nport = 9090\n")
	t.Setenv(EnvPrefix+"PORT", "7070")
	t.Setenv(EnvPrefix+"STREAM_TIMEOUT", "30s")
	t.Setenv(EnvPrefix+"LIVE_ENGINES", "streamlink, yt-dlp")

	opts := &testOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatal(err)
	}
	if opts.Port != 7070 {
		t.Errorf("Port = %d, want 7070", opts.Port)
	}
	if opts.StreamTimeout != 30*time.Second {
		t.Errorf("StreamTimeout = %v, want 30s", opts.StreamTimeout)
	}
	if !reflect.DeepEqual(opts.LiveEngines, []string{"streamlink", "yt-dlp"}) {
		t.Errorf("LiveEngines = %v", opts.LiveEngines)
	}
}

func TestLoadConfigCLIWins(t *testing.T) {
	path := writeFile(t, "config.toml", "[server]\nport = 9090\n")
	t.Setenv(EnvPrefix+"PORT", "7070")

	opts := &testOptions{Config: path}
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().IntVar(&opts.Port, "port", 8090, "")
	if err := cmd.Flags().Set("port", "6060"); err != nil {
		t.Fatal(err)
	}

	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatal(err)
	}
	if opts.Port != 6060 {
		t.Errorf("Port = %d, want CLI value 6060", opts.Port)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &testOptions{Config: filepath.Join(t.TempDir(), "absent.toml"), Port: 8090}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}
	if opts.Port != 8090 {
		t.Errorf("Port = %d, want default", opts.Port)
	}
}

func TestLoadConfigRejectsNonPointer(t *testing.T) {
	if err := LoadConfig(testOptions{}, nil); err == nil {
		t.Error("expected error for non-pointer")
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	path := writeFile(t, "config.toml", "[server\nport = ")
	if err := LoadConfig(&testOptions{Config: path}, nil); err == nil {
		t.Error("expected parse error")
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := map[string]string{
		"Port":          "port",
		"StreamTimeout": "stream-timeout",
		"LoggingLevel":  "logging-level",
	}
	for in, want := range tests {
		if got := fieldNameToFlag(in); got != want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "TUBEWRANGLERR_DOTENV_PROBE=from-file\nSTREAM_USER_AGENT=Agent/1.0\n")
	t.Setenv("STREAM_USER_AGENT", "preset")
	t.Cleanup(func() { os.Unsetenv("TUBEWRANGLERR_DOTENV_PROBE") })

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("TUBEWRANGLERR_DOTENV_PROBE"); got != "from-file" {
		t.Errorf("probe = %q, want from-file", got)
	}
	if got := os.Getenv("STREAM_USER_AGENT"); got != "preset" {
		t.Errorf("existing env should win, got %q", got)
	}
}

func TestLoadLoggingConfig(t *testing.T) {
	path := writeFile(t, "config.toml", "[logging]\nlevel = \"debug\"\nformat = \"json\"\nsupervisor = \"warn\"\n")

	cfg := LoadLoggingConfig(path)
	if cfg.Level != "debug" || cfg.Format != "json" {
		t.Errorf("got level=%q format=%q", cfg.Level, cfg.Format)
	}
	if cfg.Modules["supervisor"] != "warn" {
		t.Errorf("supervisor level = %q, want warn", cfg.Modules["supervisor"])
	}

	if def := LoadLoggingConfig(""); def.Level != "info" || def.Format != "text" {
		t.Errorf("defaults = %+v", def)
	}
}
