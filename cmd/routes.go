package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// newRoutesCmd creates the 'routes' subcommand, which prints the adapter
// registration each URL matches without fetching it.
func newRoutesCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "routes [url...]",
		Short: "Shows which adapter handles each URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleRounded)

			if all || len(args) == 0 {
				t.AppendHeader(table.Row{"Pattern", "Kind", "Adapter", "Protected"})
				for _, reg := range appInstance.Router.Registry().Registrations() {
					t.AppendRow(table.Row{reg.Pattern.String(), reg.Kind, reg.Adapter.Name(), reg.Protected})
				}
				t.Render()
				return nil
			}

			t.AppendHeader(table.Row{"Input", "Kind", "Adapter", "Pattern", "Protected", "URL"})
			for _, input := range args {
				route, err := appInstance.Router.Classify(cmd.Context(), input)
				if err != nil {
					return fmt.Errorf("classify %q: %w", input, err)
				}
				row := table.Row{abbreviate(input, 60), route.Kind, "", "", "", ""}
				if reg := route.Registration; reg != nil {
					row[2], row[3], row[4] = reg.Adapter.Name(), reg.Pattern.String(), reg.Protected
				}
				if route.URL != nil {
					row[5] = route.URL.String()
				}
				t.AppendRow(row)
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "list every registration instead of classifying inputs")
	return cmd
}
