// Package cmd holds the tubewranglerr subcommands and the helpers they
// share with the server entry point.
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/catatau597/tubewranglerr/internal/config"
	"github.com/catatau597/tubewranglerr/internal/logging"
	"github.com/catatau597/tubewranglerr/internal/streams"
	"github.com/catatau597/tubewranglerr/internal/streams/store"
)

// Store backends.
const (
	BackendTOML   = "toml"
	BackendSQLite = "sqlite"
)

// StoreOptions selects and locates the record store.
type StoreOptions struct {
	Backend      string
	StreamsFile  string
	DatabasePath string
}

// Watcher is a started-on-demand file watcher.
type Watcher interface {
	Start() error
	Stop() error
}

// OpenStore opens the configured backend. With watch set, a TOML store
// also gets a Watcher that reloads it when the file changes; SQLite is
// read live and never needs one.
func OpenStore(opts StoreOptions, watch bool) (streams.Store, Watcher, error) {
	switch opts.Backend {
	case BackendSQLite:
		s, err := store.NewSQLite(opts.DatabasePath, store.DefaultSQLiteConfig())
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil

	case BackendTOML, "":
		s := store.NewTOML(opts.StreamsFile)
		if err := s.Load(); err != nil {
			return nil, nil, err
		}
		if !watch {
			return s, nil, nil
		}
		logger := logging.GetLogger("streams")
		// Load keeps the previous records when the file fails to parse.
		w := config.NewConfigWatcher(s.Path(), func(string) (struct{}, error) {
			return struct{}{}, s.Load()
		}, logger, config.WithDebounce[struct{}](1500*time.Millisecond),
			config.WithErrorHandler[struct{}](func(err error) {
				logger.Warn("Streams reload failed, keeping previous records", "error", err)
			}))
		w.OnReload(func(struct{}) {
			logger.Info("Streams reloaded", "path", s.Path())
		})
		return s, w, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", opts.Backend)
}

// initLogging replaces the server's option hook for subcommands: they
// only need logging, configured from the [logging] table of --config.
func initLogging(cmd *cobra.Command, _ []string) {
	path := "config.toml"
	if f := cmd.Flag("config"); f != nil {
		path = f.Value.String()
	}
	logging.Initialize(config.LoadLoggingConfig(path))
}

// addStoreFlags registers the store selection flags shared by subcommands.
func addStoreFlags(cmd *cobra.Command, opts *StoreOptions) {
	cmd.Flags().StringVar(&opts.Backend, "store", BackendTOML, "Record store backend (toml, sqlite)")
	cmd.Flags().StringVar(&opts.StreamsFile, "streams", "streams.toml", "TOML record file")
	cmd.Flags().StringVar(&opts.DatabasePath, "database", "tubewranglerr.db", "SQLite database")
}
