package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newTasksCmd(opts *globalOptions) *cobra.Command {
	var (
		event     string
		namespace string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List active registrations in dispatch order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, _, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			tasks, err := store.ActiveTasks(cmd.Context(), event, namespace)
			if err != nil {
				return fmt.Errorf("load tasks: %w", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), tasks)
			}

			if len(tasks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No active tasks")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tEVENT\tNAMESPACE\tPRIORITY\tMODE\tRUNS\tLAST RUN")
			for _, t := range tasks {
				name := t.EventName
				if t.Global {
					name = "*"
				}
				mode := "sync"
				if t.Async {
					mode = "async"
				}
				if t.Once {
					mode += ",once"
				}
				last := "never"
				if !t.LastExecuted.IsZero() {
					last = humanize.Time(t.LastExecuted)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
					t.ID, name, dash(t.Namespace), t.Priority, mode, t.ExecutionCount, last)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&event, "event", "", "only show tasks for this event")
	cmd.Flags().StringVar(&namespace, "namespace", "", "only show tasks in this namespace")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output tasks as JSON")
	return cmd
}
