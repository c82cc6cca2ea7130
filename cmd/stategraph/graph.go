package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/stategraph/internal/render"
	"github.com/randalmurphal/stategraph/internal/server"
)

func newGraphCmd(a *app) *cobra.Command {
	var (
		runID    string
		markdown bool
	)
	cmd := &cobra.Command{
		Use:   "graph <workflow>",
		Short: "Print a workflow as a Mermaid flowchart",
		Long: `Prints the workflow graph as Mermaid. With --run the nodes a journaled
run visited are highlighted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := a.catalog(nil)
			if err != nil {
				return err
			}
			wf, err := catalog.Get(args[0])
			if err != nil {
				return err
			}

			var overlay *render.Overlay
			if runID != "" {
				store, err := a.openJournal(cmd, "", "")
				if err != nil {
					return err
				}
				defer store.Close()
				entries, err := store.Entries(cmd.Context(), runID)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					return fmt.Errorf("run %q not found in journal", runID)
				}
				overlay = server.Overlay(entries)
			}

			out := render.Mermaid(wf.Graph, overlay)
			if markdown {
				out = render.Markdown(wf.Graph, overlay)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "Highlight the path of a journaled run")
	cmd.Flags().BoolVar(&markdown, "markdown", false, "Wrap the chart in a markdown code fence")
	return cmd
}
