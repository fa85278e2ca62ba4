package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/callbus/pkg/callbus/record"
)

func newStatsCmd(opts *globalOptions) *cobra.Command {
	var (
		since  time.Duration
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show execution statistics",
		Long: `Display totals for recorded events and executions, the success rate,
average callback duration, and the busiest events and namespaces.

Totals cover everything in the store; the top lists only count events
emitted within --since.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, _, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			st, err := store.Stats(cmd.Context(), time.Now().Add(-since))
			if err != nil {
				return fmt.Errorf("load stats: %w", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			printStats(cmd, st)
			return nil
		},
	}

	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "window for top events and namespaces")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output statistics as JSON")
	return cmd
}

func printStats(cmd *cobra.Command, st record.Stats) {
	w := cmd.OutOrStdout()

	section(w, "EXECUTIONS")
	fmt.Fprintf(w, "Events:      %s\n", humanize.Comma(st.TotalEvents))
	fmt.Fprintf(w, "Executions:  %s (%s ok, %s failed, %s async)\n",
		humanize.Comma(st.TotalExecutions),
		humanize.Comma(st.SuccessfulExecutions),
		humanize.Comma(st.FailedExecutions),
		humanize.Comma(st.AsyncExecutions))
	fmt.Fprintf(w, "Success:     %.1f%%\n", st.SuccessRate)
	fmt.Fprintf(w, "Avg time:    %.2f ms\n", st.AvgDurationMs)
	fmt.Fprintf(w, "Active:      %s tasks\n", humanize.Comma(st.ActiveTasks))
	fmt.Fprintln(w)

	printTop(cmd, "TOP EVENTS (since "+humanize.Time(st.Since)+")", st.TopEvents)
	printTop(cmd, "TOP NAMESPACES", st.TopNamespaces)
}

func printTop(cmd *cobra.Command, title string, rows []record.NameCount) {
	w := cmd.OutOrStdout()
	section(w, title)
	if len(rows) == 0 {
		fmt.Fprintln(w, "(none)")
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%-36s %s\n", r.Name, humanize.Comma(r.Count))
	}
	fmt.Fprintln(w)
}
