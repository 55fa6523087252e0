package config

import (
	"path/filepath"
	"testing"
)

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "settings.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if s != DefaultSettings() {
		t.Errorf("got %+v, want defaults", s)
	}
	if !s.ProxyEnableAnalytics {
		t.Error("analytics should default to enabled")
	}
	if s.SmartPlayerMode != "auto" {
		t.Errorf("mode = %q, want auto", s.SmartPlayerMode)
	}
}

func TestLoadSettingsFileAndEnv(t *testing.T) {
	path := writeFile(t, "settings.toml", `
smart_player_mode = "binary"
proxy_enable_analytics = false
stream_user_agent = "FromFile/1.0"
placeholder_image_url = "https://example.com/card.png"
`)
	t.Setenv("STREAM_USER_AGENT", "FromEnv/2.0")

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.SmartPlayerMode != "binary" {
		t.Errorf("mode = %q", s.SmartPlayerMode)
	}
	if s.ProxyEnableAnalytics {
		t.Error("analytics should be disabled by file")
	}
	if s.StreamUserAgent != "FromEnv/2.0" {
		t.Errorf("user agent = %q, env should win", s.StreamUserAgent)
	}
	if s.PlaceholderImageURL != "https://example.com/card.png" {
		t.Errorf("placeholder = %q", s.PlaceholderImageURL)
	}
	if s.PlaceholderFont != DefaultPlaceholderFont {
		t.Errorf("font = %q, want default", s.PlaceholderFont)
	}
}

func TestLoadSettingsInvalid(t *testing.T) {
	path := writeFile(t, "settings.toml", "smart_player_mode = ")
	if _, err := LoadSettings(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestSettingsStoreSwap(t *testing.T) {
	store := NewSettingsStore(DefaultSettings())
	snapshot := store.Get()

	next := DefaultSettings()
	next.SmartPlayerMode = "redirect"
	store.Set(next)

	if store.Get().SmartPlayerMode != "redirect" {
		t.Error("Set did not replace snapshot")
	}
	if snapshot.SmartPlayerMode != "auto" {
		t.Error("earlier snapshot must not change")
	}
}
