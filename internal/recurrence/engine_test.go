package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powersched/internal/types"
)

func windowEntry(rec types.Recurrence) types.ScheduleEntry {
	return types.ScheduleEntry{
		ID:        "e1",
		Type:      types.TypeWindow,
		StartTime: "08:00",
		StopTime:  "20:00",
		Recurring: rec,
	}
}

func TestExpandMonth_Weekdays_MonthStartingSaturday(t *testing.T) {
	// June 2024 starts on a Saturday.
	days := ExpandMonth(windowEntry(types.RecurWeekdays), 2024, time.June)

	assert.NotContains(t, days, 1)
	assert.NotContains(t, days, 2)
	assert.Contains(t, days, 3) // first Monday
	assert.Contains(t, days, 28)
	assert.NotContains(t, days, 29) // Saturday
	assert.Len(t, days, 20)
}

func TestExpandMonth_Weekends(t *testing.T) {
	days := ExpandMonth(windowEntry(types.RecurWeekends), 2024, time.June)
	assert.Equal(t, []int{1, 2, 8, 9, 15, 16, 22, 23, 29, 30}, days)
}

func TestExpandMonth_Daily(t *testing.T) {
	days := ExpandMonth(windowEntry(types.RecurDaily), 2024, time.February)
	require.Len(t, days, 29) // leap year
	assert.Equal(t, 1, days[0])
	assert.Equal(t, 29, days[28])
}

func TestExpandMonth_ExplicitDates_IntersectsMonth(t *testing.T) {
	e := types.ScheduleEntry{
		Type:      types.TypeShutdown,
		Recurring: types.RecurNone,
		Dates:     []string{"2024-03-12", "2024-03-05", "2024-04-02"},
	}

	assert.Equal(t, []int{5, 12}, ExpandMonth(e, 2024, time.March))
	assert.Equal(t, []int{2}, ExpandMonth(e, 2024, time.April))
	assert.Empty(t, ExpandMonth(e, 2024, time.May))
}

func TestCronjobs_WindowWeekdays(t *testing.T) {
	jobs := Cronjobs(windowEntry(types.RecurWeekdays))
	require.Len(t, jobs, 2)

	assert.Equal(t, types.CronStartup, jobs[0].Action)
	assert.Equal(t, "0 8 * * 1-5", jobs[0].Expr)
	assert.Equal(t, types.CronShutdown, jobs[1].Action)
	assert.Equal(t, "0 20 * * 1-5", jobs[1].Expr)
}

func TestCronjobs_WindowWeekends(t *testing.T) {
	jobs := Cronjobs(windowEntry(types.RecurWeekends))
	require.Len(t, jobs, 2)
	assert.Equal(t, "0 8 * * 0,6", jobs[0].Expr)
	assert.Equal(t, "0 20 * * 0,6", jobs[1].Expr)
}

func TestCronjobs_WindowDaily_UnpaddedMinutes(t *testing.T) {
	e := windowEntry(types.RecurDaily)
	e.StartTime = "07:05"
	e.StopTime = "19:30"

	jobs := Cronjobs(e)
	require.Len(t, jobs, 2)
	assert.Equal(t, "5 7 * * *", jobs[0].Expr)
	assert.Equal(t, "30 19 * * *", jobs[1].Expr)
}

func TestCronjobs_ShutdownExplicitDates_GroupedByMonth(t *testing.T) {
	e := types.ScheduleEntry{
		Type:      types.TypeShutdown,
		Recurring: types.RecurNone,
		Dates:     []string{"2024-03-05", "2024-03-12", "2024-04-02"},
	}

	jobs := Cronjobs(e)
	require.Len(t, jobs, 2)
	assert.Equal(t, types.CronShutdown, jobs[0].Action)
	assert.Equal(t, "0 0 5,12 3 *", jobs[0].Expr)
	assert.Equal(t, "0 0 2 4 *", jobs[1].Expr)
}

func TestCronjobs_WindowExplicitDates_TwoPerMonth(t *testing.T) {
	e := types.ScheduleEntry{
		Type:      types.TypeWindow,
		StartTime: "08:00",
		StopTime:  "20:00",
		Recurring: types.RecurNone,
		Dates:     []string{"2024-12-24", "2025-01-02"},
	}

	jobs := Cronjobs(e)
	require.Len(t, jobs, 4)
	// Months ordered chronologically across the year boundary.
	assert.Equal(t, "0 8 24 12 *", jobs[0].Expr)
	assert.Equal(t, "0 20 24 12 *", jobs[1].Expr)
	assert.Equal(t, "0 8 2 1 *", jobs[2].Expr)
	assert.Equal(t, "0 20 2 1 *", jobs[3].Expr)
}

func TestCronStrings(t *testing.T) {
	exprs := CronStrings(windowEntry(types.RecurWeekdays))
	assert.Equal(t, []string{"0 8 * * 1-5", "0 20 * * 1-5"}, exprs)
}
