package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/t77yq/nitrite-automation/internal/app"
	"github.com/t77yq/nitrite-automation/internal/model"
)

func newEventsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow published script events",
	}

	var subjects []string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print new events until interrupted (requires nats.enabled)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return opts.withApp(func(a *app.App) error {
				if a.NATS == nil {
					return errors.New("events are not published: set nats.enabled")
				}

				out := cmd.OutOrStdout()
				var mu sync.Mutex
				handler := func(e *model.Event) {
					mu.Lock()
					defer mu.Unlock()
					if opts.outputJSON {
						_ = writeJSON(out, e)
						return
					}
					writeEvent(out, e)
				}
				for _, subject := range subjects {
					if err := a.NATS.Subscribe(ctx, subject, handler); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Listening on %s, press Ctrl+C to stop\n", strings.Join(subjects, ", "))
				<-ctx.Done()
				return nil
			})
		},
	}
	tail.Flags().StringSliceVar(&subjects, "subject", []string{"script.*", "task.*"}, "Subjects to follow, e.g. script.blocked")

	cmd.AddCommand(tail)
	return cmd
}
