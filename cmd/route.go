package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/catatau597/tubewranglerr/internal/config"
	"github.com/catatau597/tubewranglerr/internal/logging"
	"github.com/catatau597/tubewranglerr/internal/router"
)

// CreateRouteCmd creates the route command.
func CreateRouteCmd() *cobra.Command {
	var storeOpts StoreOptions
	var settingsFile string
	var engine string

	cmd := &cobra.Command{
		Use:   "route [video-id]",
		Short: "Show the engine command for a stream",
		Long: `Loads the record for video-id and prints the engine and argv the player would launch, ` +
			`without starting anything. --engine picks the live engine for genuinely live records.`,
		Args:             cobra.ExactArgs(1),
		PersistentPreRun: initLogging,
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts router.Options
			if engine != "" {
				e, ok := router.ParseEngine(engine)
				if !ok {
					return fmt.Errorf("unknown engine %q", engine)
				}
				opts.LiveEngine = e
			}

			settings, err := config.LoadSettings(settingsFile)
			if err != nil {
				return err
			}

			recordStore, _, err := OpenStore(storeOpts, false)
			if err != nil {
				return err
			}
			defer recordStore.Close()

			rec, err := recordStore.GetStream(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			r := router.New(router.Config{
				Settings: config.NewSettingsStore(settings),
				Logger:   logging.GetLogger("router"),
			})
			c := r.Command(rec, opts)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "status:  %s (genuinely live: %t)\n", rec.Status, rec.GenuinelyLive())
			fmt.Fprintf(out, "engine:  %s\n", c.Engine)
			fmt.Fprintf(out, "command: %s\n", c)
			return nil
		},
	}

	addStoreFlags(cmd, &storeOpts)
	cmd.Flags().StringVar(&settingsFile, "settings", "settings.toml", "Runtime settings file")
	cmd.Flags().StringVar(&engine, "engine", "", "Live engine (streamlink, yt-dlp)")
	return cmd
}
