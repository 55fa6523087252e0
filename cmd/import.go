package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/catatau597/tubewranglerr/internal/streams/store"
)

// CreateImportCmd creates the import command.
func CreateImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:              "import [streams.toml] [database]",
		Short:            "Copy TOML records into a SQLite store",
		Long:             `Upserts every record of a TOML record file into the SQLite database the server reads with --store sqlite.`,
		Args:             cobra.ExactArgs(2),
		PersistentPreRun: initLogging,
		RunE: func(cmd *cobra.Command, args []string) error {
			src := store.NewTOML(args[0])
			if err := src.Load(); err != nil {
				return err
			}
			records, err := src.ListStreams(cmd.Context())
			if err != nil {
				return err
			}

			dst, err := store.NewSQLite(args[1], store.DefaultSQLiteConfig())
			if err != nil {
				return err
			}
			defer dst.Close()

			for _, rec := range records {
				if err := rec.Validate(); err != nil {
					return err
				}
				if err := dst.Upsert(cmd.Context(), rec); err != nil {
					return fmt.Errorf("import %s: %w", rec.VideoID, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d records into %s\n", len(records), args[1])
			return nil
		},
	}
	return cmd
}
