package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/t77yq/nitrite-automation/internal/app"
	"github.com/t77yq/nitrite-automation/internal/model"
)

func newTaskCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "task",
		Aliases: []string{"tasks"},
		Short:   "Manage scheduled tasks",
	}

	var (
		name, scriptID, schedule, value string
		disabled                        bool
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Schedule a stored script",
		Example: `  scriptctl task add --name nightly --script script_1234 --type daily --value 02:30
  scriptctl task add --name weekly --script script_1234 --type weekly --value Monday,09:00
  scriptctl task add --name once --script script_1234 --type once --value "2025-01-01 08:00"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app.App) error {
				task, err := a.Service.AddScheduledTask(cmd.Context(), name, scriptID,
					model.ScheduleType(schedule), value, !disabled)
				if err != nil {
					return err
				}
				if opts.outputJSON {
					return writeJSON(cmd.OutOrStdout(), task)
				}
				return writeTasksTable(cmd.OutOrStdout(), []*model.ScheduledTask{task})
			})
		},
	}
	add.Flags().StringVarP(&name, "name", "n", "", "Task name")
	add.Flags().StringVarP(&scriptID, "script", "s", "", "Script id")
	add.Flags().StringVar(&schedule, "type", string(model.ScheduleDaily), "daily, weekly or once")
	add.Flags().StringVar(&value, "value", "", `"HH:MM", "Day,HH:MM" or "YYYY-MM-DD HH:MM"`)
	add.Flags().BoolVar(&disabled, "disabled", false, "Create the task disabled")
	_ = add.MarkFlagRequired("name")
	_ = add.MarkFlagRequired("script")
	_ = add.MarkFlagRequired("value")

	toggle := &cobra.Command{
		Use:   "toggle <id>",
		Short: "Enable or disable a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app.App) error {
				task, err := a.Service.ToggleScheduledTask(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if opts.outputJSON {
					return writeJSON(cmd.OutOrStdout(), task)
				}
				state := "disabled"
				if task.Enabled {
					state = "enabled"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s %s (next run %s)\n", task.ID, state, task.NextRun)
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app.App) error {
				if err := a.Service.DeleteScheduledTask(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app.App) error {
				tasks := a.Service.ListScheduledTasks()
				if opts.outputJSON {
					return writeJSON(cmd.OutOrStdout(), tasks)
				}
				return writeTasksTable(cmd.OutOrStdout(), tasks)
			})
		},
	}

	cmd.AddCommand(add, toggle, del, list)
	return cmd
}
