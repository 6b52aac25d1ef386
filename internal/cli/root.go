// Package cli implements scriptctl, a local command line over the script
// store, scheduler and history.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t77yq/nitrite-automation/internal/app"
	"github.com/t77yq/nitrite-automation/internal/config"
)

type options struct {
	configPath string
	dataDir    string
	outputJSON bool
	verbose    bool
	noColor    bool
}

// NewRootCommand builds the scriptctl command tree
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "scriptctl",
		Short: "Manage, validate and run maintenance scripts",
		Long: `scriptctl stores PowerShell, batch and Python maintenance scripts, checks
them for dangerous commands before saving and before every run, and
schedules them for daily, weekly or one-off execution.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default ./config/config.yaml)")
	root.PersistentFlags().StringVarP(&opts.dataDir, "data-dir", "d", "", "Override data.dir")
	root.PersistentFlags().BoolVarP(&opts.outputJSON, "json", "j", false, "Output in JSON format")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log component activity to stderr")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		newScriptCommand(opts),
		newTemplateCommand(opts),
		newTaskCommand(opts),
		newHistoryCommand(opts),
		newEventsCommand(opts),
	)
	return root
}

// Execute runs scriptctl and returns the process exit code
func Execute() int {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		printError(root.ErrOrStderr(), err)
		return 1
	}
	return 0
}

func (o *options) logger() (*zap.Logger, error) {
	if !o.verbose {
		return zap.NewNop(), nil
	}
	return app.NewLogger(config.LogConfig{Level: "debug", Development: true})
}

// withApp builds the components for one command and releases them after
func (o *options) withApp(fn func(a *app.App) error) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.dataDir != "" {
		cfg.Data.Dir = o.dataDir
	}

	logger, err := o.logger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}

// readSource takes the script body from --code, or from --file where "-"
// means stdin
func readSource(code, file string, stdin io.Reader) (string, error) {
	switch {
	case code != "" && file != "":
		return "", errors.New("use either --code or --file, not both")
	case file == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", file, err)
		}
		return string(data), nil
	default:
		return code, nil
	}
}
