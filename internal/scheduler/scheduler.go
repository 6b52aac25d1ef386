package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/nitrite-automation/internal/model"
	"github.com/t77yq/nitrite-automation/internal/storage"
)

// Option customizes a TaskScheduler
type Option func(*TaskScheduler)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *TaskScheduler) {
		s.now = now
	}
}

// TaskScheduler keeps the persistent list of scheduled script runs and
// computes when each is due. It owns no timer; see Dispatcher. Like the
// script catalog it caches the index file and re-reads it under a
// cross-process lock before every change.
type TaskScheduler struct {
	logger *zap.Logger
	index  *storage.JSONIndex[*model.ScheduledTask]
	now    func() time.Time

	mu    sync.RWMutex
	tasks map[string]*model.ScheduledTask
}

// NewTaskScheduler loads the task index at indexPath
func NewTaskScheduler(indexPath string, logger *zap.Logger, opts ...Option) (*TaskScheduler, error) {
	s := &TaskScheduler{
		logger: logger.Named("scheduler"),
		index:  storage.NewJSONIndex[*model.ScheduledTask](indexPath),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	tasks, err := s.index.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load task index: %w", err)
	}
	normalize(tasks)
	s.tasks = tasks

	s.logger.Info("Task index loaded",
		zap.String("path", indexPath),
		zap.Int("tasks", len(tasks)))

	return s, nil
}

// Now returns the scheduler clock
func (s *TaskScheduler) Now() time.Time {
	return s.now()
}

// AddTask creates a task and computes its first run. A value that does not
// parse is stored with the "Error" next run.
func (s *TaskScheduler) AddTask(name, scriptID string, typ model.ScheduleType, value string, enabled bool) (*model.ScheduledTask, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScheduleType, string(typ))
	}

	now := s.now()
	task := &model.ScheduledTask{
		ID:            "task_" + uuid.New().String(),
		Name:          name,
		ScriptID:      scriptID,
		ScheduleType:  typ,
		ScheduleValue: value,
		Enabled:       enabled,
		CreatedAt:     now,
		NextRun:       ComputeNextRun(typ, value, now),
	}
	if task.NextRun.Invalid {
		s.logger.Warn("Schedule value could not be parsed",
			zap.String("task_id", task.ID),
			zap.String("schedule_type", string(typ)),
			zap.String("schedule_value", value))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.commit(func(tasks map[string]*model.ScheduledTask) error {
		tasks[task.ID] = task
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Added task",
		zap.String("task_id", task.ID),
		zap.String("script_id", scriptID),
		zap.String("next_run", task.NextRun.String()))

	return task.Clone(), nil
}

// Get returns a task by id
func (s *TaskScheduler) Get(id string) (*model.ScheduledTask, error) {
	s.sync()

	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return task.Clone(), nil
}

// List returns all tasks, newest first
func (s *TaskScheduler) List() []*model.ScheduledTask {
	s.sync()

	s.mu.RLock()
	list := make([]*model.ScheduledTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		list = append(list, task.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// Toggle flips the enabled flag
func (s *TaskScheduler) Toggle(id string) (*model.ScheduledTask, error) {
	return s.mutate(id, func(task *model.ScheduledTask) error {
		return s.setEnabled(task, !task.Enabled)
	})
}

// SetEnabled sets the enabled flag
func (s *TaskScheduler) SetEnabled(id string, enabled bool) (*model.ScheduledTask, error) {
	return s.mutate(id, func(task *model.ScheduledTask) error {
		return s.setEnabled(task, enabled)
	})
}

// setEnabled recomputes the next run of a recurring task being re-enabled,
// since the stored one may be long past. A once task that already fired at
// its instant cannot be re-enabled until it is rescheduled.
func (s *TaskScheduler) setEnabled(task *model.ScheduledTask, enabled bool) error {
	if enabled && !task.Enabled {
		if task.ScheduleType.Recurring() {
			task.NextRun = ComputeNextRun(task.ScheduleType, task.ScheduleValue, s.now())
		} else if task.LastRun != nil && task.NextRun.Valid() && !task.LastRun.Before(task.NextRun.Time) {
			return fmt.Errorf("%w: %s", ErrTaskSpent, task.ID)
		}
	}
	task.Enabled = enabled
	return nil
}

// Reschedule replaces the schedule and recomputes the next run
func (s *TaskScheduler) Reschedule(id string, typ model.ScheduleType, value string) (*model.ScheduledTask, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScheduleType, string(typ))
	}
	return s.mutate(id, func(task *model.ScheduledTask) error {
		task.ScheduleType = typ
		task.ScheduleValue = value
		task.NextRun = ComputeNextRun(typ, value, s.now())
		return nil
	})
}

// MarkRun records a dispatch at the given instant. Recurring tasks get their
// next occurrence after at; once tasks are disabled.
func (s *TaskScheduler) MarkRun(id string, at time.Time) (*model.ScheduledTask, error) {
	return s.mutate(id, func(task *model.ScheduledTask) error {
		task.LastRun = &at
		task.RunCount++
		if task.ScheduleType.Recurring() {
			task.NextRun = ComputeNextRun(task.ScheduleType, task.ScheduleValue, at)
		} else {
			task.Enabled = false
		}
		return nil
	})
}

// Due returns enabled tasks whose next run is at or before now, earliest
// first. Tasks with the "Error" next run are never due.
func (s *TaskScheduler) Due(now time.Time) []*model.ScheduledTask {
	s.sync()

	s.mu.RLock()
	var due []*model.ScheduledTask
	for _, task := range s.tasks {
		if task.Enabled && task.NextRun.Valid() && !task.NextRun.Time.After(now) {
			due = append(due, task.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(due, func(i, j int) bool {
		return due[i].NextRun.Time.Before(due[j].NextRun.Time)
	})
	return due
}

// Delete removes a task
func (s *TaskScheduler) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.commit(func(tasks map[string]*model.ScheduledTask) error {
		if _, ok := tasks[id]; !ok {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		delete(tasks, id)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Deleted task", zap.String("task_id", id))
	return nil
}

// DeleteByScript removes every task referencing scriptID and returns the
// removed ids
func (s *TaskScheduler) DeleteByScript(scriptID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	err := s.commit(func(tasks map[string]*model.ScheduledTask) error {
		for id, task := range tasks {
			if task.ScriptID == scriptID {
				removed = append(removed, id)
				delete(tasks, id)
			}
		}
		if len(removed) == 0 {
			return errNothingToDo
		}
		return nil
	})
	if errors.Is(err, errNothingToDo) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ids := removed
	sort.Strings(ids)

	s.logger.Info("Deleted tasks of script",
		zap.String("script_id", scriptID),
		zap.Strings("task_ids", ids))
	return ids, nil
}

// errNothingToDo aborts a commit without writing
var errNothingToDo = errors.New("nothing to do")

// mutate applies fn to a copy of the task and commits it if the index save
// succeeds
func (s *TaskScheduler) mutate(id string, fn func(*model.ScheduledTask) error) (*model.ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated *model.ScheduledTask
	err := s.commit(func(tasks map[string]*model.ScheduledTask) error {
		current, ok := tasks[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		updated = current.Clone()
		if err := fn(updated); err != nil {
			return err
		}
		tasks[id] = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

// commit applies fn to the freshest index under the cross-process lock and
// adopts the written result. Errors from fn are returned as is. Callers hold
// s.mu.
func (s *TaskScheduler) commit(fn func(tasks map[string]*model.ScheduledTask) error) error {
	var fnErr error
	tasks, err := s.index.Update(func(tasks map[string]*model.ScheduledTask) error {
		normalize(tasks)
		fnErr = fn(tasks)
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		s.logger.Error("Failed to update task index", zap.Error(err))
		return fmt.Errorf("failed to update task index: %w", err)
	}
	s.tasks = tasks
	return nil
}

// sync reloads the cache when another process replaced the index file
func (s *TaskScheduler) sync() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.index.Changed() {
		return
	}
	tasks, err := s.index.Load()
	if err != nil {
		s.logger.Warn("Failed to reload task index, serving cached tasks", zap.Error(err))
		return
	}
	normalize(tasks)
	s.tasks = tasks
}

// normalize drops empty entries and takes missing ids from the map key
func normalize(tasks map[string]*model.ScheduledTask) {
	for id, task := range tasks {
		if task == nil {
			delete(tasks, id)
			continue
		}
		if task.ID == "" {
			task.ID = id
		}
	}
}
