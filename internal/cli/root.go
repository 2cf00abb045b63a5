package cli

import (
	"fmt"

	"github.com/Ash-Blanc/migru/internal/config"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	cfg        config.Config
}

func NewRootCommand(version string) *cobra.Command {
	options := &rootOptions{}

	root := &cobra.Command{
		Use:           "migru",
		Short:         "Wellness pattern detection and insight engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" || cmd.Name() == "version" {
				return nil
			}
			cfg, err := config.Load(options.configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			options.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&options.configPath, "config", "c", "", "Path to config file (default $MIGRU_CONFIG or "+config.DefaultPath+")")

	root.AddCommand(
		newServeCommand(options),
		newInitCommand(options),
		newTokenCommand(options),
		newTrimCommand(options),
		newReplayCommand(options),
		newVersionCommand(version),
	)
	return root
}

func newVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "migru %s\n", version)
		},
	}
}
