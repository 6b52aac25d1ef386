package scheduler

import "errors"

var (
	// ErrTaskNotFound is returned when a task is not found
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidScheduleType is returned for a schedule type other than
	// daily, weekly or once
	ErrInvalidScheduleType = errors.New("invalid schedule type")

	// ErrInvalidScheduleValue is returned by ValidateSchedule when the value
	// does not parse for its type
	ErrInvalidScheduleValue = errors.New("invalid schedule value")

	// ErrTaskSpent is returned when enabling a once task that already fired
	ErrTaskSpent = errors.New("once task already ran")

	// ErrOrphanedTask is returned by a TaskRunner when the referenced
	// script no longer exists
	ErrOrphanedTask = errors.New("task references a missing script")
)
