// Package automation is the caller-facing API over the script store,
// execution engine, template catalog and task scheduler.
package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/nitrite-automation/internal/events"
	"github.com/t77yq/nitrite-automation/internal/model"
	"github.com/t77yq/nitrite-automation/internal/scheduler"
	"github.com/t77yq/nitrite-automation/internal/script"
	"github.com/t77yq/nitrite-automation/internal/security"
	"github.com/t77yq/nitrite-automation/internal/storage"
	"github.com/t77yq/nitrite-automation/internal/templates"
)

// RunningLister reports in-flight executions. *executor.Engine implements it.
type RunningLister interface {
	RunningExecutions() []model.RunningExecution
}

// Deps are the collaborators of a Service. Templates, Events and Running
// are optional.
type Deps struct {
	Scripts   *script.Manager
	Tasks     *scheduler.TaskScheduler
	History   storage.ExecutionHistory
	Templates *templates.Catalog
	Events    events.Publisher
	Running   RunningLister
}

// Service implements the caller API
type Service struct {
	logger    *zap.Logger
	scripts   *script.Manager
	tasks     *scheduler.TaskScheduler
	history   storage.ExecutionHistory
	templates *templates.Catalog
	events    events.Publisher
	running   RunningLister
}

// NewService creates a new service
func NewService(deps Deps, logger *zap.Logger) *Service {
	if deps.Templates == nil {
		deps.Templates = templates.Default()
	}
	if deps.Events == nil {
		deps.Events = events.NopPublisher{}
	}

	return &Service{
		logger:    logger.Named("automation"),
		scripts:   deps.Scripts,
		tasks:     deps.Tasks,
		history:   deps.History,
		templates: deps.Templates,
		events:    deps.Events,
		running:   deps.Running,
	}
}

// CreateScript validates and stores a new script
func (s *Service) CreateScript(ctx context.Context, req script.CreateRequest) (*model.ScriptRecord, error) {
	rec, err := s.scripts.Create(req)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, &model.Event{
		Type:      model.EventScriptCreated,
		ScriptID:  rec.ID,
		RiskLevel: rec.Security.RiskLevel,
		Warnings:  rec.Security.Warnings,
	})
	return rec, nil
}

// UpdateScript replaces the source of a script
func (s *Service) UpdateScript(ctx context.Context, id, source string) (*model.ScriptRecord, error) {
	rec, err := s.scripts.Update(id, source)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, &model.Event{
		Type:      model.EventScriptUpdated,
		ScriptID:  rec.ID,
		RiskLevel: rec.Security.RiskLevel,
		Warnings:  rec.Security.Warnings,
	})
	return rec, nil
}

// DeleteScript removes a script and every scheduled task referencing it.
// Returns the ids of the removed tasks.
func (s *Service) DeleteScript(ctx context.Context, id string) ([]string, error) {
	if err := s.scripts.Delete(id); err != nil {
		return nil, err
	}
	s.publish(ctx, &model.Event{Type: model.EventScriptDeleted, ScriptID: id})

	removed, err := s.tasks.DeleteByScript(id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete tasks of script %s: %w", id, err)
	}
	for _, taskID := range removed {
		s.publish(ctx, &model.Event{Type: model.EventTaskDeleted, ScriptID: id, TaskID: taskID})
	}
	return removed, nil
}

// GetScript returns a script with its source
func (s *Service) GetScript(id string) (*model.Script, error) {
	return s.scripts.Get(id)
}

// ListScripts returns all scripts, newest first
func (s *Service) ListScripts() []*model.ScriptRecord {
	return s.scripts.List()
}

// ExecuteScript runs a script and records the attempt
func (s *Service) ExecuteScript(ctx context.Context, id string, onOutput func(line string)) (*model.ExecutionResult, error) {
	return s.execute(ctx, id, "", onOutput)
}

func (s *Service) execute(ctx context.Context, id, taskID string, onOutput func(line string)) (*model.ExecutionResult, error) {
	result, err := s.scripts.Execute(ctx, id, onOutput)
	if result == nil {
		return nil, err
	}

	s.record(ctx, taskID, result)

	eventType := model.EventScriptExecuted
	if result.SecurityBlocked {
		eventType = model.EventScriptBlocked
	}
	s.publish(ctx, &model.Event{
		Type:      eventType,
		ScriptID:  id,
		TaskID:    taskID,
		RiskLevel: result.RiskLevel,
		Warnings:  result.Warnings,
		Result:    result,
	})
	return result, err
}

// AnalyzeScript classifies source without storing it
func (s *Service) AnalyzeScript(source string, lang model.Language) security.Analysis {
	return s.scripts.Classifier().Analyze(source, lang)
}

// ListTemplates returns the template catalog
func (s *Service) ListTemplates() []templates.Template {
	return s.templates.List()
}

// GetTemplate returns one template
func (s *Service) GetTemplate(key string) (templates.Template, error) {
	return s.templates.Get(key)
}

// CreateFromTemplate stores a copy of a template. An empty name keeps the
// template name.
func (s *Service) CreateFromTemplate(ctx context.Context, key, name string) (*model.ScriptRecord, error) {
	tpl, err := s.templates.Get(key)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = tpl.Name
	}
	return s.CreateScript(ctx, script.CreateRequest{
		Name:        name,
		Source:      tpl.Code,
		Language:    tpl.Language,
		Description: tpl.Description,
		Tags:        append(tpl.Tags, "template:"+tpl.Key),
	})
}

// AddScheduledTask schedules an existing script
func (s *Service) AddScheduledTask(ctx context.Context, name, scriptID string, typ model.ScheduleType, value string, enabled bool) (*model.ScheduledTask, error) {
	if !s.scripts.Exists(scriptID) {
		return nil, fmt.Errorf("%w: %s", script.ErrNotFound, scriptID)
	}
	task, err := s.tasks.AddTask(name, scriptID, typ, value, enabled)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, &model.Event{Type: model.EventTaskCreated, ScriptID: scriptID, TaskID: task.ID})
	return task, nil
}

// ToggleScheduledTask flips the enabled flag of a task
func (s *Service) ToggleScheduledTask(ctx context.Context, id string) (*model.ScheduledTask, error) {
	task, err := s.tasks.Toggle(id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, &model.Event{Type: model.EventTaskToggled, ScriptID: task.ScriptID, TaskID: id})
	return task, nil
}

// DeleteScheduledTask removes a task
func (s *Service) DeleteScheduledTask(ctx context.Context, id string) error {
	task, err := s.tasks.Get(id)
	if err != nil {
		return err
	}
	if err := s.tasks.Delete(id); err != nil {
		return err
	}
	s.publish(ctx, &model.Event{Type: model.EventTaskDeleted, ScriptID: task.ScriptID, TaskID: id})
	return nil
}

// GetScheduledTask returns one task
func (s *Service) GetScheduledTask(id string) (*model.ScheduledTask, error) {
	return s.tasks.Get(id)
}

// ListScheduledTasks returns all tasks, newest first
func (s *Service) ListScheduledTasks() []*model.ScheduledTask {
	return s.tasks.List()
}

// RunTask implements scheduler.TaskRunner
func (s *Service) RunTask(ctx context.Context, task *model.ScheduledTask) error {
	if !s.scripts.Exists(task.ScriptID) {
		return fmt.Errorf("%w: %s", scheduler.ErrOrphanedTask, task.ScriptID)
	}

	result, err := s.execute(ctx, task.ScriptID, task.ID, nil)
	if err != nil {
		return err
	}
	if !result.Success {
		s.logger.Warn("Scheduled run did not succeed",
			zap.String("task_id", task.ID),
			zap.String("script_id", task.ScriptID),
			zap.Bool("security_blocked", result.SecurityBlocked),
			zap.Bool("timed_out", result.TimedOut),
			zap.String("error", result.Error))
	}
	return nil
}

// ExecutionHistory returns recorded attempts of a script, newest first
func (s *Service) ExecutionHistory(ctx context.Context, scriptID string, offset, limit int) ([]*model.ExecutionRecord, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.List(ctx, storage.HistoryFilter{ScriptID: scriptID}, offset, limit)
}

// PruneHistory deletes history recorded before the cutoff
func (s *Service) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	if s.history == nil {
		return 0, nil
	}
	return s.history.DeleteBefore(ctx, before)
}

// RunningExecutions lists in-flight runs
func (s *Service) RunningExecutions() []model.RunningExecution {
	if s.running == nil {
		return nil
	}
	return s.running.RunningExecutions()
}

// record appends the attempt to history. History is an audit trail, so a
// failed write is logged and does not change the execution outcome.
func (s *Service) record(ctx context.Context, taskID string, result *model.ExecutionResult) {
	if s.history == nil {
		return
	}
	rec := model.NewExecutionRecord(uuid.New().String(), taskID, result)
	if err := s.history.Store(ctx, rec); err != nil {
		s.logger.Error("Failed to store execution history",
			zap.String("script_id", result.ScriptID),
			zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, event *model.Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("type", string(event.Type)),
			zap.Error(err))
	}
}
