package cli

import (
	"fmt"

	"github.com/Ash-Blanc/migru/internal/config"
	"github.com/spf13/cobra"
)

func newInitCommand(options *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config with a fresh secret key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := options.configPath
			if path == "" {
				path = config.DefaultPath
			}

			cfg, err := config.WriteDefault(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote %s\n", path)
			fmt.Fprintf(out, "Database: %s\n", cfg.Storage.DBPath)
			fmt.Fprintln(out, "Keep server.secret_key private; it signs API tokens.")
			return nil
		},
	}
}
