package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/t77yq/nitrite-automation/internal/model"
)

func at(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func TestComputeNextRun(t *testing.T) {
	tests := []struct {
		name  string
		typ   model.ScheduleType
		value string
		now   string
		want  string
	}{
		{"daily time passed rolls to tomorrow", model.ScheduleDaily, "09:00", "2024-01-01 10:00", "2024-01-02 09:00"},
		{"daily time ahead fires today", model.ScheduleDaily, "09:00", "2024-01-01 08:00", "2024-01-01 09:00"},
		{"daily exactly now rolls to tomorrow", model.ScheduleDaily, "09:00", "2024-01-01 09:00", "2024-01-02 09:00"},
		{"daily crosses year", model.ScheduleDaily, "00:30", "2024-12-31 23:00", "2025-01-01 00:30"},
		{"weekly same day time passed", model.ScheduleWeekly, "Monday,09:00", "2024-01-01 10:00", "2024-01-08 09:00"},
		{"weekly same day time ahead", model.ScheduleWeekly, "Monday,09:00", "2024-01-01 08:00", "2024-01-01 09:00"},
		{"weekly later this week", model.ScheduleWeekly, "Friday,18:30", "2024-01-01 10:00", "2024-01-05 18:30"},
		{"weekly case and spaces", model.ScheduleWeekly, " sunday , 07:15", "2024-01-01 10:00", "2024-01-07 07:15"},
		{"once exact instant", model.ScheduleOnce, "2024-03-15 14:30", "2024-01-01 10:00", "2024-03-15 14:30"},
		{"once in the past is kept", model.ScheduleOnce, "2023-03-15 14:30", "2024-01-01 10:00", "2023-03-15 14:30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeNextRun(tt.typ, tt.value, at(tt.now))
			assert.True(t, got.Valid())
			assert.Equal(t, at(tt.want), got.Time)
		})
	}
}

func TestComputeNextRun_ErrorSentinel(t *testing.T) {
	now := at("2024-01-01 10:00")

	for _, tc := range []struct {
		typ   model.ScheduleType
		value string
	}{
		{model.ScheduleDaily, "9am"},
		{model.ScheduleDaily, "25:00"},
		{model.ScheduleWeekly, "Funday,09:00"},
		{model.ScheduleWeekly, "Monday"},
		{model.ScheduleWeekly, "Monday,9"},
		{model.ScheduleOnce, "2024-13-01 10:00"},
		{model.ScheduleOnce, "tomorrow"},
		{"hourly", "10"},
	} {
		got := ComputeNextRun(tc.typ, tc.value, now)
		assert.True(t, got.Invalid, "%s %q", tc.typ, tc.value)
		assert.False(t, got.Valid())
		assert.Equal(t, model.NextRunErrorSentinel, got.String())
	}
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule(model.ScheduleDaily, "09:00"))
	assert.ErrorIs(t, ValidateSchedule(model.ScheduleDaily, "nine"), ErrInvalidScheduleValue)
	assert.ErrorIs(t, ValidateSchedule("hourly", "10"), ErrInvalidScheduleType)
}
