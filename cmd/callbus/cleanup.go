package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

func newCleanupCmd(opts *globalOptions) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old executions, events, and inactive tasks",
		Long: `Delete executions started before the cutoff, then events and inactive
tasks created before it that no longer have executions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			store, logger, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			cutoff := time.Now().Add(-olderThan)
			res, err := store.Cleanup(cmd.Context(), cutoff)
			if err != nil {
				return fmt.Errorf("cleanup: %w", err)
			}
			logger.Info("cleanup finished",
				slog.Time("cutoff", cutoff),
				slog.Int64("executions", res.Executions),
				slog.Int64("events", res.Events),
				slog.Int64("tasks", res.Tasks),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d executions, %d events, %d tasks\n",
				res.Executions, res.Events, res.Tasks)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "remove data older than this")
	return cmd
}
