package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ScheduleType represents how a scheduled task recurs
type ScheduleType string

const (
	ScheduleDaily  ScheduleType = "daily"
	ScheduleWeekly ScheduleType = "weekly"
	ScheduleOnce   ScheduleType = "once"
)

// Valid reports whether the schedule type is known
func (s ScheduleType) Valid() bool {
	switch s {
	case ScheduleDaily, ScheduleWeekly, ScheduleOnce:
		return true
	}
	return false
}

// Recurring reports whether the task fires more than once
func (s ScheduleType) Recurring() bool {
	return s == ScheduleDaily || s == ScheduleWeekly
}

// NextRunErrorSentinel is the persisted next-run value of a schedule that
// could not be parsed
const NextRunErrorSentinel = "Error"

// NextRun is the derived next fire time of a task. An invalid value means the
// schedule could not be computed and must not be trusted.
type NextRun struct {
	Time    time.Time
	Invalid bool
}

// NextRunAt returns a valid next run
func NextRunAt(t time.Time) NextRun {
	return NextRun{Time: t}
}

// NextRunError returns the sentinel next run
func NextRunError() NextRun {
	return NextRun{Invalid: true}
}

// Valid reports whether the value is a usable instant
func (n NextRun) Valid() bool {
	return !n.Invalid && !n.Time.IsZero()
}

func (n NextRun) String() string {
	if n.Invalid {
		return NextRunErrorSentinel
	}
	if n.Time.IsZero() {
		return ""
	}
	return n.Time.Format(time.RFC3339)
}

// MarshalJSON writes either an RFC 3339 time or the "Error" sentinel
func (n NextRun) MarshalJSON() ([]byte, error) {
	if n.Invalid {
		return json.Marshal(NextRunErrorSentinel)
	}
	if n.Time.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(n.Time)
}

// UnmarshalJSON accepts null, the "Error" sentinel (or the "N/A" written by
// earlier releases for unknown schedule types), or a timestamp
func (n *NextRun) UnmarshalJSON(data []byte) error {
	*n = NextRun{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to decode next run: %w", err)
	}
	if s == NextRunErrorSentinel || s == "N/A" {
		n.Invalid = true
		return nil
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return fmt.Errorf("failed to parse next run: %w", err)
	}
	n.Time = t
	return nil
}

// ScheduledTask is a persisted, timed invocation of a stored script. The task
// references the script by id and does not own it.
type ScheduledTask struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	ScriptID      string       `json:"script_id"`
	ScheduleType  ScheduleType `json:"schedule_type"`
	ScheduleValue string       `json:"schedule_value"`
	Enabled       bool         `json:"enabled"`
	CreatedAt     time.Time    `json:"created"`
	LastRun       *time.Time   `json:"last_run"`
	NextRun       NextRun      `json:"next_run"`
	RunCount      int          `json:"runs"`
}

// Clone returns a deep copy of the task
func (t *ScheduledTask) Clone() *ScheduledTask {
	c := *t
	if t.LastRun != nil {
		lr := *t.LastRun
		c.LastRun = &lr
	}
	return &c
}
