package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/t77yq/nitrite-automation/internal/app"
	"github.com/t77yq/nitrite-automation/internal/model"
	"github.com/t77yq/nitrite-automation/internal/script"
)

// errExecutionFailed makes scriptctl exit non-zero after a failed run whose
// details were already printed
var errExecutionFailed = errors.New("execution did not succeed")

func newScriptCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "script",
		Aliases: []string{"scripts"},
		Short:   "Manage stored scripts",
	}
	cmd.AddCommand(
		newScriptCreateCommand(opts),
		newScriptUpdateCommand(opts),
		newScriptDeleteCommand(opts),
		newScriptGetCommand(opts),
		newScriptListCommand(opts),
		newScriptRunCommand(opts),
		newScriptAnalyzeCommand(opts),
	)
	return cmd
}

func newScriptCreateCommand(opts *options) *cobra.Command {
	var (
		name, language, code, file, description string
		tags                                    []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Validate and store a new script",
		Example: `  # Store a PowerShell script from a file
  scriptctl script create --name "Flush DNS" --file flush.ps1

  # Store a batch one-liner
  scriptctl script create --name ipconfig --language batch --code "ipconfig /all"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			lang, err := model.ParseLanguage(language)
			if err != nil {
				return err
			}
			source, err := readSource(code, file, cmd.InOrStdin())
			if err != nil {
				return err
			}

			return opts.withApp(func(a *app.App) error {
				rec, err := a.Service.CreateScript(cmd.Context(), script.CreateRequest{
					Name:        name,
					Source:      source,
					Language:    lang,
					Description: description,
					Tags:        tags,
				})
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

	cmd.Flags().StringVarP(&name, "name", "n", "", "Script name")
	cmd.Flags().StringVarP(&language, "language", "l", string(model.LanguagePowerShell), "powershell, batch or python")
	cmd.Flags().StringVar(&code, "code", "", "Script source")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read source from file (- for stdin)")
	cmd.Flags().StringVar(&description, "description", "", "Description")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "Tag (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newScriptUpdateCommand(opts *options) *cobra.Command {
	var code, file string

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace the source of a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := readSource(code, file, cmd.InOrStdin())
			if err != nil {
				return err
			}

			return opts.withApp(func(a *app.App) error {
				rec, err := a.Service.UpdateScript(cmd.Context(), args[0], source)
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

	cmd.Flags().StringVar(&code, "code", "", "New script source")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read source from file (- for stdin)")
	return cmd
}

func newScriptDeleteCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a script and its scheduled tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app.App) error {
				removed, err := a.Service.DeleteScript(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s", args[0])
				if len(removed) > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), " and %d scheduled task(s)", len(removed))
				}
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}
}

func newScriptGetCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a script and its source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app.App) error {
				s, err := a.Service.GetScript(args[0])
				if err != nil {
					return err
				}
				if opts.outputJSON {
					return writeJSON(cmd.OutOrStdout(), s)
				}
				out := cmd.OutOrStdout()
				writeScript(out, &s.ScriptRecord)
				fmt.Fprintln(out)
				fmt.Fprintln(out, s.Source)
				return nil
			})
		},
	}
}

func newScriptListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored scripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app.App) error {
				records := a.Service.ListScripts()
				if opts.outputJSON {
					return writeJSON(cmd.OutOrStdout(), records)
				}
				return writeScriptsTable(cmd.OutOrStdout(), records)
			})
		},
	}
}

func newScriptRunCommand(opts *options) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "run <id>",
		Short: "Re-validate and execute a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			return opts.withApp(func(a *app.App) error {
				out := cmd.OutOrStdout()
				var onOutput func(string)
				if !quiet && !opts.outputJSON {
					onOutput = func(line string) { fmt.Fprintln(out, line) }
				}

				result, err := a.Service.ExecuteScript(ctx, args[0], onOutput)
				if result == nil {
					return err
				}
				if opts.outputJSON {
					if jsonErr := writeJSON(out, result); jsonErr != nil {
						return jsonErr
					}
				} else {
					writeResult(out, result)
				}
				if err != nil {
					return err
				}
				if !result.Success {
					return errExecutionFailed
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not stream script output")
	return cmd
}

func newScriptAnalyzeCommand(opts *options) *cobra.Command {
	var language, code, file string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Classify a script without storing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			lang, err := model.ParseLanguage(language)
			if err != nil {
				return err
			}
			source, err := readSource(code, file, cmd.InOrStdin())
			if err != nil {
				return err
			}

			return opts.withApp(func(a *app.App) error {
				analysis := a.Service.AnalyzeScript(source, lang)
				if opts.outputJSON {
					return writeJSON(cmd.OutOrStdout(), analysis)
				}
				writeAnalysis(cmd.OutOrStdout(), analysis)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", string(model.LanguagePowerShell), "powershell, batch or python")
	cmd.Flags().StringVar(&code, "code", "", "Script source")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read source from file (- for stdin)")
	return cmd
}
