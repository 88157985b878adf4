// Package week converts between calendar dates and semester week numbers.
package week

import (
	"time"

	"timetable/internal/model"
)

// Calculator anchors week arithmetic on the first day of a semester.
//
// Week numbering:
//   - the semester start date is in week 1, start+7 days in week 2, ...
//   - dates before the start use floor division: start-1 day is week 0,
//     start-8 days is week -1.
//
// Only the calendar date of each argument is used; time of day and zone
// offsets are ignored.
type Calculator struct {
	start time.Time
}

// NewCalculator returns a Calculator for the given semester start date.
func NewCalculator(semesterStart time.Time) Calculator {
	return Calculator{start: civil(semesterStart)}
}

// Start returns the normalized semester start date (UTC midnight).
func (c Calculator) Start() time.Time {
	return c.start
}

// Week returns floor(days(start, date)/7)+1.
func (c Calculator) Week(date time.Time) int {
	return floorDiv(DaysBetween(c.start, date), 7) + 1
}

// Range returns the Monday..Sunday span of the given week. The Monday of week
// 1 is the Monday of the calendar week containing the semester start.
func (c Calculator) Range(week int) (monday, sunday time.Time) {
	monday = c.monday(week)
	return monday, monday.AddDate(0, 0, 6)
}

// DateForDayInWeek returns the date of the ISO weekday (1=Monday .. 7=Sunday)
// inside the given week.
func (c Calculator) DateForDayInWeek(week, isoWeekday int) time.Time {
	return c.monday(week).AddDate(0, 0, isoWeekday-1)
}

func (c Calculator) monday(week int) time.Time {
	offset := model.ISOWeekday(c.start.Weekday()) - 1
	return c.start.AddDate(0, 0, -offset+(week-1)*7)
}

// DaysBetween counts civil days from a to b (negative when b is earlier).
func DaysBetween(a, b time.Time) int {
	d := civil(b).Sub(civil(a))
	return int(d / (24 * time.Hour))
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
