// Package recurrence translates schedule entries into calendar occurrences
// and cron-style expressions. All functions are pure and stateless; entries
// are assumed well-formed (the store's write path validates shape).
package recurrence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"powersched/internal/types"
)

// ExpandMonth returns the days of the given month on which the entry applies,
// in ascending order.
//
//	daily    -> every day of the month
//	weekdays -> Monday through Friday
//	weekends -> Saturday and Sunday
//	none     -> the entry's explicit dates that fall inside the month
func ExpandMonth(e types.ScheduleEntry, year int, month time.Month) []int {
	switch e.Recurring {
	case types.RecurDaily:
		return allDays(year, month)
	case types.RecurWeekdays:
		return daysMatching(year, month, func(d time.Weekday) bool {
			return d >= time.Monday && d <= time.Friday
		})
	case types.RecurWeekends:
		return daysMatching(year, month, func(d time.Weekday) bool {
			return d == time.Saturday || d == time.Sunday
		})
	default:
		var days []int
		for _, iso := range e.Dates {
			t, err := time.Parse("2006-01-02", iso)
			if err != nil {
				continue
			}
			if t.Year() == year && t.Month() == month {
				days = append(days, t.Day())
			}
		}
		sort.Ints(days)
		return days
	}
}

// Cronjobs renders the entry as cron expressions, field order
// "minute hour day-of-month month day-of-week" with unpadded integers.
//
// A window entry yields a startup expression at its start time and a shutdown
// expression at its stop time; a full-day shutdown entry yields a single
// shutdown expression anchored at midnight. Recurring entries are
// month-agnostic; explicit-dates entries produce one expression set per
// distinct calendar month, with the month's days as a day-of-month list.
func Cronjobs(e types.ScheduleEntry) []types.CronJob {
	var jobs []types.CronJob
	for _, f := range cronFields(e) {
		if e.Type == types.TypeWindow {
			sh, sm := parseClock(e.StartTime)
			eh, em := parseClock(e.StopTime)
			jobs = append(jobs,
				types.CronJob{Action: types.CronStartup, Expr: cronExpr(sm, sh, f)},
				types.CronJob{Action: types.CronShutdown, Expr: cronExpr(em, eh, f)},
			)
		} else {
			jobs = append(jobs, types.CronJob{Action: types.CronShutdown, Expr: cronExpr(0, 0, f)})
		}
	}
	return jobs
}

// CronStrings returns just the rendered expressions, the shape pushed to the
// remote store alongside each entry.
func CronStrings(e types.ScheduleEntry) []string {
	jobs := Cronjobs(e)
	exprs := make([]string, len(jobs))
	for i, j := range jobs {
		exprs[i] = j.Expr
	}
	return exprs
}

// fieldSet holds the day-of-month, month, and day-of-week cron fields shared
// by the startup and shutdown expressions of one entry.
type fieldSet struct {
	dom   string
	month string
	dow   string
}

// cronFields picks the day/month/weekday fields for the entry's recurrence.
// Day-of-week uses the 0=Sunday..6=Saturday convention.
func cronFields(e types.ScheduleEntry) []fieldSet {
	switch e.Recurring {
	case types.RecurDaily:
		return []fieldSet{{dom: "*", month: "*", dow: "*"}}
	case types.RecurWeekdays:
		return []fieldSet{{dom: "*", month: "*", dow: "1-5"}}
	case types.RecurWeekends:
		return []fieldSet{{dom: "*", month: "*", dow: "0,6"}}
	}

	// Explicit dates: group by calendar month, one field set per month.
	type yearMonth struct {
		year  int
		month time.Month
	}
	groups := make(map[yearMonth][]int)
	for _, iso := range e.Dates {
		t, err := time.Parse("2006-01-02", iso)
		if err != nil {
			continue
		}
		ym := yearMonth{t.Year(), t.Month()}
		groups[ym] = append(groups[ym], t.Day())
	}

	months := make([]yearMonth, 0, len(groups))
	for ym := range groups {
		months = append(months, ym)
	}
	sort.Slice(months, func(i, j int) bool {
		if months[i].year != months[j].year {
			return months[i].year < months[j].year
		}
		return months[i].month < months[j].month
	})

	sets := make([]fieldSet, 0, len(months))
	for _, ym := range months {
		days := groups[ym]
		sort.Ints(days)
		parts := make([]string, len(days))
		for i, d := range days {
			parts[i] = strconv.Itoa(d)
		}
		sets = append(sets, fieldSet{
			dom:   strings.Join(parts, ","),
			month: strconv.Itoa(int(ym.month)),
			dow:   "*",
		})
	}
	return sets
}

func cronExpr(minute, hour int, f fieldSet) string {
	return fmt.Sprintf("%d %d %s %s %s", minute, hour, f.dom, f.month, f.dow)
}

// parseClock splits an "HH:MM" time-of-day string. Malformed input yields
// zeroes rather than an error; shape validation happens on the write path.
func parseClock(s string) (hour, minute int) {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0
	}
	hour, _ = strconv.Atoi(h)
	minute, _ = strconv.Atoi(m)
	return hour, minute
}

func allDays(year int, month time.Month) []int {
	n := daysIn(year, month)
	days := make([]int, n)
	for i := range days {
		days[i] = i + 1
	}
	return days
}

func daysMatching(year int, month time.Month, match func(time.Weekday) bool) []int {
	var days []int
	for d := 1; d <= daysIn(year, month); d++ {
		if match(time.Date(year, month, d, 0, 0, 0, 0, time.UTC).Weekday()) {
			days = append(days, d)
		}
	}
	return days
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
