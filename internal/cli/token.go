package cli

import (
	"fmt"
	"time"

	"github.com/Ash-Blanc/migru/internal/api"
	"github.com/spf13/cobra"
)

func newTokenCommand(options *rootOptions) *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ttl <= 0 {
				ttl = options.cfg.Server.TokenTTL
			}
			token, err := api.IssueToken([]byte(options.cfg.Server.SecretKey), userID, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User id placed in the token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default server.token_ttl)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
