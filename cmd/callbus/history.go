package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var (
		event  string
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent callback executions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, _, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.History(cmd.Context(), event, limit)
			if err != nil {
				return fmt.Errorf("load history: %w", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), entries)
			}

			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No executions recorded")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tEVENT\tNAMESPACE\tSTATUS\tDURATION\tERROR")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2fms\t%s\n",
					e.StartedAt.Format("2006-01-02 15:04:05"),
					e.EventName, dash(e.Namespace), e.Status, e.DurationMs, dash(e.Error))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&event, "event", "", "only show executions of this event")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of executions (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output history as JSON")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
