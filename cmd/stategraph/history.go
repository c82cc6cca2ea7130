package main

import (
	"encoding/json"
	"io"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/stategraph/pkg/stategraph/journal"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		driver  string
		dsn     string
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show journaled runs",
		Long: `Without arguments lists the runs in the journal. With a run id prints
that run's transitions. Needs a persistent journal (sqlite or redis).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openJournal(cmd, driver, dsn)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				runs, err := store.Runs(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return json.NewEncoder(out).Encode(runs)
				}
				for _, id := range runs {
					fmt.Fprintln(out, id)
				}
				return nil
			}

			entries, err := store.Entries(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return fmt.Errorf("run %q not found in journal", args[0])
			}
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			return printEntries(out, entries)
		},
	}
	cmd.Flags().StringVar(&driver, "journal", "", "Journal driver: memory, sqlite, redis")
	cmd.Flags().StringVar(&dsn, "journal-dsn", "", "Journal location (sqlite path or redis URL)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")
	return cmd
}

func printEntries(w io.Writer, entries []journal.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tNODE\tPHASE\tLABEL\tNEXT\tDETAIL")
	for _, e := range entries {
		detail := string(e.Update)
		if e.Error != "" {
			detail = e.Error
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", e.Step, e.Node, e.Phase, e.Label, e.Next, detail)
	}
	return tw.Flush()
}
