package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/t77yq/nitrite-automation/internal/model"
)

const (
	clockLayout = "15:04"
	onceLayout  = "2006-01-02 15:04"
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ComputeNextRun returns the next fire time strictly after now, or the
// "Error" sentinel when the value does not parse for its type
func ComputeNextRun(typ model.ScheduleType, value string, now time.Time) model.NextRun {
	next, err := nextRun(typ, value, now)
	if err != nil {
		return model.NextRunError()
	}
	return model.NextRunAt(next)
}

// ValidateSchedule checks a schedule without computing it
func ValidateSchedule(typ model.ScheduleType, value string) error {
	if !typ.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidScheduleType, string(typ))
	}
	_, err := nextRun(typ, value, time.Now())
	return err
}

func nextRun(typ model.ScheduleType, value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)

	switch typ {
	case model.ScheduleDaily:
		h, m, err := parseClock(value)
		if err != nil {
			return time.Time{}, err
		}
		return cronNext(fmt.Sprintf("%d %d * * *", m, h), now)

	case model.ScheduleWeekly:
		day, clock, ok := strings.Cut(value, ",")
		if !ok {
			return time.Time{}, fmt.Errorf("%w: weekly value must be \"DayName,HH:MM\", got %q", ErrInvalidScheduleValue, value)
		}
		weekday, ok := weekdays[strings.ToLower(strings.TrimSpace(day))]
		if !ok {
			return time.Time{}, fmt.Errorf("%w: unknown day %q", ErrInvalidScheduleValue, day)
		}
		h, m, err := parseClock(strings.TrimSpace(clock))
		if err != nil {
			return time.Time{}, err
		}
		return cronNext(fmt.Sprintf("%d %d * * %d", m, h, int(weekday)), now)

	case model.ScheduleOnce:
		t, err := time.ParseInLocation(onceLayout, value, now.Location())
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidScheduleValue, err)
		}
		return t, nil

	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidScheduleType, string(typ))
	}
}

func parseClock(value string) (int, int, error) {
	t, err := time.Parse(clockLayout, value)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: time must be HH:MM, got %q", ErrInvalidScheduleValue, value)
	}
	return t.Hour(), t.Minute(), nil
}

// cronNext evaluates a standard cron spec in now's location
func cronNext(spec string, now time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidScheduleValue, err)
	}
	next := schedule.Next(now)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: no upcoming occurrence for %q", ErrInvalidScheduleValue, spec)
	}
	return next, nil
}
