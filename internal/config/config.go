package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/catatau597/tubewranglerr/internal/logging"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix namespaces the environment variables that map onto server options.
const EnvPrefix = "TUBEWRANGLERR_"

var durationType = reflect.TypeOf(time.Duration(0))

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// LoadConfig fills opts (a pointer to struct) with precedence
// CLI flags > TUBEWRANGLERR_* env > TOML file. The TOML path is read from
// the field named Config. Flags explicitly set on cmd are left alone.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: expected pointer to struct, got %T", opts)
	}
	v = v.Elem()

	changed := make(map[string]bool)
	if cmd != nil {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				changed[f.Name] = true
			}
		})
	}
	skip := func(f reflect.StructField) bool { return changed[fieldNameToFlag(f.Name)] }

	if field := v.FieldByName("Config"); field.IsValid() && field.Kind() == reflect.String && field.String() != "" {
		data, err := os.ReadFile(field.String())
		switch {
		case err == nil:
			var doc map[string]any
			if err := toml.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("parse %s: %w", field.String(), err)
			}
			applyTOML(v, doc, skip)
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("read %s: %w", field.String(), err)
		}
	}

	applyEnv(v, EnvPrefix, skip)
	return nil
}

// applyTOML copies values addressed by each field's dotted toml tag.
func applyTOML(v reflect.Value, doc map[string]any, skip func(reflect.StructField) bool) {
	t := v.Type()
	for i := range t.NumField() {
		f := t.Field(i)
		if skip != nil && skip(f) {
			continue
		}
		path := strings.Split(f.Tag.Get("toml"), ",")[0]
		if path == "" || path == "-" {
			continue
		}
		if value := lookup(doc, path); value != nil {
			setFromTOML(v.Field(i), value)
		}
	}
}

// applyEnv copies values from prefix+env-tag variables.
func applyEnv(v reflect.Value, prefix string, skip func(reflect.StructField) bool) {
	t := v.Type()
	for i := range t.NumField() {
		f := t.Field(i)
		if skip != nil && skip(f) {
			continue
		}
		key := f.Tag.Get("env")
		if key == "" {
			continue
		}
		if raw, ok := os.LookupEnv(prefix + key); ok && raw != "" {
			setFromString(v.Field(i), raw)
		}
	}
}

// fieldNameToFlag mirrors humacli's flag naming: "StreamTimeout" -> "stream-timeout".
func fieldNameToFlag(name string) string {
	var out []rune
	for i, r := range name {
		if i > 0 && unicode.IsUpper(r) {
			out = append(out, '-')
		}
		out = append(out, unicode.ToLower(r))
	}
	return string(out)
}

func lookup(doc map[string]any, path string) any {
	parts := strings.Split(path, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			return nil
		}
		cur = next
	}
	return cur[parts[len(parts)-1]]
}

func setFromTOML(field reflect.Value, value any) {
	if !field.CanSet() {
		return
	}
	if field.Type() == durationType {
		switch x := value.(type) {
		case string:
			if d, err := time.ParseDuration(x); err == nil {
				field.SetInt(int64(d))
			}
		case int64:
			field.SetInt(x * int64(time.Millisecond))
		}
		return
	}

	switch field.Kind() {
	case reflect.String:
		if s, ok := value.(string); ok {
			field.SetString(s)
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		if n, ok := value.(int64); ok {
			field.SetInt(n)
		}
	case reflect.Slice:
		items, ok := value.([]any)
		if !ok || field.Type().Elem().Kind() != reflect.String {
			return
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		field.Set(reflect.ValueOf(out))
	}
}

func setFromString(field reflect.Value, raw string) {
	if !field.CanSet() {
		return
	}
	if field.Type() == durationType {
		if d, err := time.ParseDuration(raw); err == nil {
			field.SetInt(int64(d))
		} else if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			field.SetInt(ms * int64(time.Millisecond))
		}
		return
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		if b, err := strconv.ParseBool(raw); err == nil {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			field.SetInt(n)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	}
}

// LoadLoggingConfig reads the [logging] table from path. Keys other than
// level and format are per-module levels. Defaults are returned when the
// file is missing or invalid.
func LoadLoggingConfig(path string) logging.Config {
	cfg := logging.Config{Level: "info", Format: "text", Modules: map[string]string{}}
	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	var raw struct {
		Logging map[string]string `toml:"logging"`
	}
	if toml.Unmarshal(data, &raw) != nil {
		return cfg
	}
	for key, value := range raw.Logging {
		switch key {
		case "level":
			cfg.Level = value
		case "format":
			cfg.Format = value
		default:
			cfg.Modules[key] = value
		}
	}
	return cfg
}
