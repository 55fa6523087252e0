package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/catatau597/tubewranglerr/internal/capabilities"
	"github.com/catatau597/tubewranglerr/internal/config"
	"github.com/catatau597/tubewranglerr/internal/logging"
)

// probeLookup replaces the shell lookup in tests.
var probeLookup capabilities.LookupFunc

type probeResult struct {
	capabilities.Capabilities
	Mode string `json:"mode"`
}

// CreateProbeCmd creates the probe command.
func CreateProbeCmd() *cobra.Command {
	var asJSON bool
	var settingsFile string

	cmd := &cobra.Command{
		Use:              "probe",
		Short:            "Detect installed engine binaries",
		Long:             `Checks for ffmpeg, streamlink and yt-dlp and prints which are available together with the smart player mode in effect.`,
		Args:             cobra.NoArgs,
		PersistentPreRun: initLogging,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.LoadSettings(settingsFile)
			if err != nil {
				return err
			}

			prober := capabilities.NewProber(capabilities.Options{
				Lookup: probeLookup,
				Logger: logging.GetLogger("capabilities"),
			})
			res := probeResult{
				Capabilities: prober.Probe(cmd.Context(), true),
				Mode:         string(capabilities.ParseMode(settings.SmartPlayerMode)),
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			for _, b := range capabilities.All {
				status := "missing"
				if res.Has(b) {
					status = "available"
				}
				fmt.Fprintf(out, "%-11s %s\n", b, status)
			}
			fmt.Fprintf(out, "%-11s %s\n", "mode", res.Mode)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	cmd.Flags().StringVar(&settingsFile, "settings", "settings.toml", "Runtime settings file")
	return cmd
}
