package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/t77yq/nitrite-automation/internal/app"
	"github.com/t77yq/nitrite-automation/internal/templates"
)

func newTemplateCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "template",
		Aliases: []string{"templates"},
		Short:   "Browse and install built-in templates",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			list := templates.Default().List()
			if opts.outputJSON {
				return writeJSON(cmd.OutOrStdout(), list)
			}
			return writeTemplatesTable(cmd.OutOrStdout(), list)
		},
	}

	show := &cobra.Command{
		Use:   "show <key>",
		Short: "Print a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tpl, err := templates.Default().Get(args[0])
			if err != nil {
				return err
			}
			if opts.outputJSON {
				return writeJSON(cmd.OutOrStdout(), tpl)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s (%s)\n# %s\n\n", tpl.Name, tpl.Language, tpl.Description)
			fmt.Fprintln(out, tpl.Code)
			return nil
		},
	}

	var name string
	install := &cobra.Command{
		Use:   "install <key>",
		Short: "Store a copy of a template as a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app.App) error {
				rec, err := a.Service.CreateFromTemplate(cmd.Context(), args[0], name)
				if err != nil {
					return err
				}
				if opts.outputJSON {
					return writeJSON(cmd.OutOrStdout(), rec)
				}
				writeScript(cmd.OutOrStdout(), rec)
				return nil
			})
		},
	}
	install.Flags().StringVarP(&name, "name", "n", "", "Script name (default template name)")

	cmd.AddCommand(list, show, install)
	return cmd
}
