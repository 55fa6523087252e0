package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"sync/atomic"

	"github.com/pelletier/go-toml/v2"
)

// Runtime defaults for the player settings.
const (
	DefaultPlaceholderFont     = "/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf"
	DefaultPlaceholderTimezone = "America/Sao_Paulo"
	DefaultCookiesDir          = "cookies"
)

// Settings are the operator-editable values read on every stream request.
// They come from settings.toml with unprefixed environment variables taking
// precedence.
type Settings struct {
	SmartPlayerMode      string `toml:"smart_player_mode" env:"SMART_PLAYER_MODE" json:"smart_player_mode"`
	ProxyEnableAnalytics bool   `toml:"proxy_enable_analytics" env:"PROXY_ENABLE_ANALYTICS" json:"proxy_enable_analytics"`
	PlaceholderImageURL  string `toml:"placeholder_image_url" env:"PLACEHOLDER_IMAGE_URL" json:"placeholder_image_url"`
	StreamUserAgent      string `toml:"stream_user_agent" env:"STREAM_USER_AGENT" json:"stream_user_agent"`
	StreamCookiesPath    string `toml:"stream_cookies_path" env:"STREAM_COOKIES_PATH" json:"stream_cookies_path"`
	CookiesDir           string `toml:"cookies_dir" env:"COOKIES_DIR" json:"cookies_dir"`
	PlaceholderTimezone  string `toml:"placeholder_timezone" env:"PLACEHOLDER_TIMEZONE" json:"placeholder_timezone"`
	PlaceholderFont      string `toml:"placeholder_font" env:"PLACEHOLDER_FONT" json:"placeholder_font"`
}

// DefaultSettings returns the values used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		SmartPlayerMode:      "auto",
		ProxyEnableAnalytics: true,
		CookiesDir:           DefaultCookiesDir,
		PlaceholderTimezone:  DefaultPlaceholderTimezone,
		PlaceholderFont:      DefaultPlaceholderFont,
	}
}

// LoadSettings reads path over the defaults and applies environment
// overrides. A missing file is not an error.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	v := reflect.ValueOf(&s).Elem()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			var doc map[string]any
			if err := toml.Unmarshal(data, &doc); err != nil {
				return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
			}
			applyTOML(v, doc, nil)
		case !errors.Is(err, fs.ErrNotExist):
			return Settings{}, fmt.Errorf("read settings %s: %w", path, err)
		}
	}

	applyEnv(v, "", nil)
	return s, nil
}

// SettingsStore holds the current Settings snapshot. Readers never block
// writers; a reload swaps the whole snapshot.
type SettingsStore struct {
	current atomic.Pointer[Settings]
}

// NewSettingsStore creates a store seeded with s.
func NewSettingsStore(s Settings) *SettingsStore {
	store := &SettingsStore{}
	store.Set(s)
	return store
}

// Get returns the current snapshot.
func (st *SettingsStore) Get() Settings {
	return *st.current.Load()
}

// Set replaces the snapshot. It has the shape of a Watcher reload handler.
func (st *SettingsStore) Set(s Settings) {
	st.current.Store(&s)
}
