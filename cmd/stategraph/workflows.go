package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newWorkflowsCmd(a *app) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:     "workflows",
		Aliases: []string{"ls"},
		Short:   "List the available workflows",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := a.catalog(nil)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tINPUT\tOUTPUT\tDESCRIPTION")
			for _, wf := range catalog.List() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", wf.Name, wf.InputField, wf.OutputField, wf.Description)
				if verbose {
					fmt.Fprintf(tw, "\tnodes: %s\t\t\n", strings.Join(wf.Graph.NodeIDs(), " "))
					fmt.Fprintf(tw, "\texample: %s\t\t\n", wf.Example)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show nodes and an example request")
	return cmd
}
