package cli

import (
	"github.com/spf13/cobra"

	"github.com/t77yq/nitrite-automation/internal/app"
)

func newHistoryCommand(opts *options) *cobra.Command {
	var offset, limit int

	cmd := &cobra.Command{
		Use:   "history <script-id>",
		Short: "Show recorded executions of a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app.App) error {
				records, err := a.Service.ExecutionHistory(cmd.Context(), args[0], offset, limit)
				if err != nil {
					return err
				}
				if opts.outputJSON {
					return writeJSON(cmd.OutOrStdout(), records)
				}
				return writeHistoryTable(cmd.OutOrStdout(), records)
			})
		},
	}

	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many records")
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of records")
	return cmd
}
