package scheduler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/nitrite-automation/internal/model"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestScheduler(t *testing.T, path string, clock *fakeClock) *TaskScheduler {
	t.Helper()

	s, err := NewTaskScheduler(path, zaptest.NewLogger(t), WithClock(clock.Now))
	require.NoError(t, err)
	return s
}

func TestTaskScheduler_AddTask(t *testing.T) {
	clock := &fakeClock{now: at("2024-01-01 10:00")}
	s := newTestScheduler(t, filepath.Join(t.TempDir(), "tasks.json"), clock)

	task, err := s.AddTask("Nightly", "script_1", model.ScheduleDaily, "09:00", true)
	require.NoError(t, err)

	assert.Regexp(t, `^task_[0-9a-f-]{36}$`, task.ID)
	assert.True(t, task.Enabled)
	assert.Equal(t, at("2024-01-02 09:00"), task.NextRun.Time)
	assert.Equal(t, at("2024-01-01 10:00"), task.CreatedAt)
	assert.Nil(t, task.LastRun)
	assert.Zero(t, task.RunCount)

	bad, err := s.AddTask("Broken", "script_1", model.ScheduleDaily, "quarter past nine", true)
	require.NoError(t, err)
	assert.True(t, bad.NextRun.Invalid)

	_, err = s.AddTask("Hourly", "script_1", "hourly", "10", true)
	assert.ErrorIs(t, err, ErrInvalidScheduleType)
	assert.Len(t, s.List(), 2)
}

func TestTaskScheduler_PersistsLosslessly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	clock := &fakeClock{now: at("2024-01-01 10:00")}
	s := newTestScheduler(t, path, clock)

	good, err := s.AddTask("Weekly", "script_1", model.ScheduleWeekly, "Monday,09:00", true)
	require.NoError(t, err)
	bad, err := s.AddTask("Broken", "script_1", model.ScheduleOnce, "someday", false)
	require.NoError(t, err)
	_, err = s.MarkRun(good.ID, at("2024-01-08 09:00"))
	require.NoError(t, err)

	reloaded := newTestScheduler(t, path, clock)

	got, err := reloaded.Get(good.ID)
	require.NoError(t, err)
	assert.Equal(t, "Monday,09:00", got.ScheduleValue)
	assert.True(t, got.NextRun.Time.Equal(at("2024-01-15 09:00")))
	require.NotNil(t, got.LastRun)
	assert.True(t, got.LastRun.Equal(at("2024-01-08 09:00")))
	assert.Equal(t, 1, got.RunCount)

	got, err = reloaded.Get(bad.ID)
	require.NoError(t, err)
	assert.True(t, got.NextRun.Invalid)
	assert.False(t, got.Enabled)
}

func TestTaskScheduler_ListNewestFirst(t *testing.T) {
	clock := &fakeClock{now: at("2024-01-01 10:00")}
	s := newTestScheduler(t, filepath.Join(t.TempDir(), "tasks.json"), clock)

	first, err := s.AddTask("first", "s", model.ScheduleDaily, "09:00", true)
	require.NoError(t, err)
	clock.now = clock.now.Add(time.Minute)
	second, err := s.AddTask("second", "s", model.ScheduleDaily, "09:00", true)
	require.NoError(t, err)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestTaskScheduler_Toggle(t *testing.T) {
	clock := &fakeClock{now: at("2024-01-01 10:00")}
	s := newTestScheduler(t, filepath.Join(t.TempDir(), "tasks.json"), clock)

	task, err := s.AddTask("Nightly", "s", model.ScheduleDaily, "09:00", true)
	require.NoError(t, err)

	toggled, err := s.Toggle(task.ID)
	require.NoError(t, err)
	assert.False(t, toggled.Enabled)

	// re-enabling a recurring task three days later recomputes from now
	clock.now = at("2024-01-04 12:00")
	toggled, err = s.Toggle(task.ID)
	require.NoError(t, err)
	assert.True(t, toggled.Enabled)
	assert.Equal(t, at("2024-01-05 09:00"), toggled.NextRun.Time)

	_, err = s.Toggle("task_missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestTaskScheduler_DueAndMarkRun(t *testing.T) {
	clock := &fakeClock{now: at("2024-01-01 08:00")}
	s := newTestScheduler(t, filepath.Join(t.TempDir(), "tasks.json"), clock)

	daily, err := s.AddTask("daily", "s", model.ScheduleDaily, "09:00", true)
	require.NoError(t, err)
	once, err := s.AddTask("once", "s", model.ScheduleOnce, "2024-01-01 08:30", true)
	require.NoError(t, err)
	_, err = s.AddTask("disabled", "s", model.ScheduleDaily, "08:15", false)
	require.NoError(t, err)
	_, err = s.AddTask("broken", "s", model.ScheduleDaily, "nope", true)
	require.NoError(t, err)

	assert.Empty(t, s.Due(at("2024-01-01 08:20")))

	due := s.Due(at("2024-01-01 09:00"))
	require.Len(t, due, 2)
	assert.Equal(t, once.ID, due[0].ID)
	assert.Equal(t, daily.ID, due[1].ID)

	ran, err := s.MarkRun(once.ID, at("2024-01-01 09:00"))
	require.NoError(t, err)
	assert.False(t, ran.Enabled)
	assert.Equal(t, 1, ran.RunCount)

	ran, err = s.MarkRun(daily.ID, at("2024-01-01 09:00"))
	require.NoError(t, err)
	assert.True(t, ran.Enabled)
	assert.Equal(t, at("2024-01-02 09:00"), ran.NextRun.Time)

	assert.Empty(t, s.Due(at("2024-01-01 09:00")))
}

func TestTaskScheduler_Reschedule(t *testing.T) {
	clock := &fakeClock{now: at("2024-01-01 10:00")}
	s := newTestScheduler(t, filepath.Join(t.TempDir(), "tasks.json"), clock)

	task, err := s.AddTask("t", "s", model.ScheduleDaily, "09:00", true)
	require.NoError(t, err)

	updated, err := s.Reschedule(task.ID, model.ScheduleWeekly, "Wednesday,20:00")
	require.NoError(t, err)
	assert.Equal(t, model.ScheduleWeekly, updated.ScheduleType)
	assert.Equal(t, at("2024-01-03 20:00"), updated.NextRun.Time)

	_, err = s.Reschedule(task.ID, "yearly", "x")
	assert.ErrorIs(t, err, ErrInvalidScheduleType)
}

func TestTaskScheduler_Delete(t *testing.T) {
	clock := &fakeClock{now: at("2024-01-01 10:00")}
	s := newTestScheduler(t, filepath.Join(t.TempDir(), "tasks.json"), clock)

	a, err := s.AddTask("a", "script_a", model.ScheduleDaily, "09:00", true)
	require.NoError(t, err)
	b, err := s.AddTask("b", "script_a", model.ScheduleDaily, "10:00", true)
	require.NoError(t, err)
	c, err := s.AddTask("c", "script_c", model.ScheduleDaily, "11:00", true)
	require.NoError(t, err)

	require.NoError(t, s.Delete(c.ID))
	assert.ErrorIs(t, s.Delete(c.ID), ErrTaskNotFound)

	ids, err := s.DeleteByScript("script_a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)
	assert.Empty(t, s.List())

	ids, err = s.DeleteByScript("script_a")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestTaskScheduler_SpentOnceTaskStaysDisabled(t *testing.T) {
	clock := &fakeClock{now: at("2024-01-01 08:00")}
	s := newTestScheduler(t, filepath.Join(t.TempDir(), "tasks.json"), clock)

	once, err := s.AddTask("once", "s", model.ScheduleOnce, "2024-01-01 08:30", true)
	require.NoError(t, err)

	_, err = s.MarkRun(once.ID, at("2024-01-01 08:30"))
	require.NoError(t, err)

	clock.now = at("2024-01-01 09:00")
	_, err = s.Toggle(once.ID)
	assert.ErrorIs(t, err, ErrTaskSpent)
	assert.Empty(t, s.Due(clock.now))

	got, err := s.Get(once.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	// a new instant makes it usable again
	_, err = s.Reschedule(once.ID, model.ScheduleOnce, "2024-01-02 08:30")
	require.NoError(t, err)
	enabled, err := s.SetEnabled(once.ID, true)
	require.NoError(t, err)
	assert.True(t, enabled.Enabled)
	assert.Empty(t, s.Due(clock.now))
}

func TestTaskScheduler_DisabledOnceTaskCanBeReenabled(t *testing.T) {
	clock := &fakeClock{now: at("2024-01-01 08:00")}
	s := newTestScheduler(t, filepath.Join(t.TempDir(), "tasks.json"), clock)

	once, err := s.AddTask("once", "s", model.ScheduleOnce, "2024-01-01 08:30", false)
	require.NoError(t, err)

	enabled, err := s.Toggle(once.ID)
	require.NoError(t, err)
	assert.True(t, enabled.Enabled)
}

func TestTaskScheduler_SharedIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	clock := &fakeClock{now: at("2024-01-01 08:00")}
	server := newTestScheduler(t, path, clock)
	cli := newTestScheduler(t, path, clock)

	daily, err := server.AddTask("daily", "s", model.ScheduleDaily, "09:00", true)
	require.NoError(t, err)

	added, err := cli.AddTask("from cli", "s", model.ScheduleDaily, "10:00", true)
	require.NoError(t, err)

	// the server's next change must not drop the task added by the cli
	_, err = server.MarkRun(daily.ID, at("2024-01-01 09:00"))
	require.NoError(t, err)

	_, err = server.Get(added.ID)
	require.NoError(t, err)

	reloaded := newTestScheduler(t, path, clock)
	assert.Len(t, reloaded.List(), 2)
	got, err := reloaded.Get(daily.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RunCount)
}

func TestTaskScheduler_LoadsLegacyIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduled_tasks.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "task_1704099600": {
    "name": "Nightly",
    "script_id": "script_1704099000",
    "schedule_type": "daily",
    "schedule_value": "09:00",
    "enabled": true,
    "created": "2024-01-01T10:00:00.123456",
    "last_run": null,
    "next_run": "2024-01-02T09:00:00",
    "runs": 0
  },
  "task_1704099601": {
    "name": "Odd",
    "script_id": "script_1704099000",
    "schedule_type": "monthly",
    "schedule_value": "1",
    "enabled": true,
    "created": "2024-01-01T10:00:01",
    "last_run": null,
    "next_run": "N/A",
    "runs": 0
  }
}`), 0o644))

	s := newTestScheduler(t, path, &fakeClock{now: at("2024-01-01 10:00")})

	task, err := s.Get("task_1704099600")
	require.NoError(t, err)
	assert.Equal(t, "task_1704099600", task.ID)
	assert.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.Local), task.NextRun.Time)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 123456000, time.Local), task.CreatedAt)
	assert.Nil(t, task.LastRun)

	odd, err := s.Get("task_1704099601")
	require.NoError(t, err)
	assert.True(t, odd.NextRun.Invalid)
}
