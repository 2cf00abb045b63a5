package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newTrimCommand(options *rootOptions) *cobra.Command {
	var (
		userID    string
		olderThan time.Duration
	)

	cmd := &cobra.Command{
		Use:   "trim",
		Short: "Delete events older than the retention horizon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, options.cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			if olderThan <= 0 {
				olderThan = options.cfg.ToAnalytics().Retention()
			}
			cutoff := time.Now().UTC().Add(-olderThan)

			users := []string{userID}
			if userID == "" {
				users, err = rt.analytics.Users(ctx)
				if err != nil {
					return fmt.Errorf("list users: %w", err)
				}
			}

			var removed int64
			for _, user := range users {
				count, err := rt.analytics.Trim(ctx, user, cutoff)
				if err != nil {
					return fmt.Errorf("trim user %s: %w", rt.tagger.Tag(user), err)
				}
				removed += count
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Trimmed %d events before %s across %d users\n", removed, cutoff.Format(time.RFC3339), len(users))
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "Only trim this user")
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Age cutoff (default analytics.retention_days)")
	return cmd
}

func newReplayCommand(options *rootOptions) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild aggregates from the event log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, options.cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			if userID != "" {
				replayed, err := rt.analytics.Rebuild(ctx, userID)
				if err != nil {
					return fmt.Errorf("replay: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Replayed %d events\n", replayed)
				return nil
			}

			users, err := rt.analytics.RebuildAll(ctx)
			if err != nil {
				return fmt.Errorf("replay: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt aggregates for %d users\n", users)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "Only rebuild this user")
	return cmd
}
