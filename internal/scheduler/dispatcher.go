package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/t77yq/nitrite-automation/internal/model"
)

// DefaultTick fires at the start of every minute
const DefaultTick = "0 * * * * *"

// TaskRunner runs the script of a due task
type TaskRunner interface {
	RunTask(ctx context.Context, task *model.ScheduledTask) error
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}

// Dispatcher polls the TaskScheduler on a cron tick and runs due tasks
type Dispatcher struct {
	logger *zap.Logger
	tasks  *TaskScheduler
	runner TaskRunner
	cron   *cron.Cron
	spec   string
	wg     sync.WaitGroup
}

// NewDispatcher creates a new dispatcher. spec is a cron expression with a
// seconds field.
func NewDispatcher(tasks *TaskScheduler, runner TaskRunner, spec string, logger *zap.Logger) *Dispatcher {
	logger = logger.Named("dispatcher")
	cronLogger := &cronLogger{logger: logger.Named("cron")}
	cronOptions := []cron.Option{
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		cron.WithLogger(cronLogger),
	}
	if spec == "" {
		spec = DefaultTick
	}

	return &Dispatcher{
		logger: logger,
		tasks:  tasks,
		runner: runner,
		cron:   cron.New(cronOptions...),
		spec:   spec,
	}
}

// Start starts the tick loop
func (d *Dispatcher) Start(ctx context.Context) error {
	if _, err := d.cron.AddFunc(d.spec, func() { d.Tick(ctx) }); err != nil {
		return fmt.Errorf("invalid tick expression: %w", err)
	}
	d.cron.Start()
	d.logger.Info("Dispatcher started", zap.String("tick", d.spec))
	return nil
}

// Stop stops the tick loop and waits for dispatched runs to finish
func (d *Dispatcher) Stop() {
	ctx := d.cron.Stop()
	<-ctx.Done()
	d.wg.Wait()
	d.logger.Info("Dispatcher stopped")
}

// Wait blocks until every dispatched run has returned
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Tick claims every due task and runs it in the background. A task is
// claimed with MarkRun before it runs so a slow run is not dispatched twice.
// Returns the number of tasks dispatched.
func (d *Dispatcher) Tick(ctx context.Context) int {
	now := d.tasks.Now()
	dispatched := 0

	for _, task := range d.tasks.Due(now) {
		claimed, err := d.tasks.MarkRun(task.ID, now)
		if err != nil {
			d.logger.Error("Failed to claim task",
				zap.String("task_id", task.ID),
				zap.Error(err))
			continue
		}

		dispatched++
		d.wg.Add(1)
		go func(task *model.ScheduledTask) {
			defer d.wg.Done()
			d.run(ctx, task)
		}(claimed)
	}

	if dispatched > 0 {
		d.logger.Info("Dispatched due tasks", zap.Int("count", dispatched))
	}
	return dispatched
}

func (d *Dispatcher) run(ctx context.Context, task *model.ScheduledTask) {
	err := d.runner.RunTask(ctx, task)
	switch {
	case err == nil:
		d.logger.Info("Executed task",
			zap.String("task_id", task.ID),
			zap.String("script_id", task.ScriptID),
			zap.String("next_run", task.NextRun.String()))
	case errors.Is(err, ErrOrphanedTask):
		d.logger.Warn("Disabling task whose script no longer exists",
			zap.String("task_id", task.ID),
			zap.String("script_id", task.ScriptID))
		if _, err := d.tasks.SetEnabled(task.ID, false); err != nil && !errors.Is(err, ErrTaskNotFound) {
			d.logger.Error("Failed to disable orphaned task",
				zap.String("task_id", task.ID),
				zap.Error(err))
		}
	default:
		d.logger.Error("Failed to execute task",
			zap.String("task_id", task.ID),
			zap.String("script_id", task.ScriptID),
			zap.Error(err))
	}
}
