package model

import "time"

// RawEvent is a single VEVENT as handed over by the calendar adapter.
// It is never mutated by the timetable core.
type RawEvent struct {
	Name     string
	Location string

	// Start / End carry the wall-clock date and time of the (first) occurrence.
	Start time.Time
	End   time.Time

	Description string

	// Until is the date of the last occurrence for recurring events, nil for
	// single occurrences and open-ended rules.
	Until *time.Time

	// ReminderMinutes is the alarm lead time, if the event carried one.
	ReminderMinutes *int
}

// DayOfWeek returns the ISO weekday (Monday=1 .. Sunday=7) of the event start.
func (e RawEvent) DayOfWeek() int {
	return ISOWeekday(e.Start.Weekday())
}

// ISOWeekday maps time.Weekday (Sunday=0) onto ISO numbering (Monday=1 .. Sunday=7).
func ISOWeekday(w time.Weekday) int {
	if w == time.Sunday {
		return 7
	}
	return int(w)
}

// DaySegment is the coarse bucket a period belongs to.
type DaySegment string

const (
	Morning   DaySegment = "morning"
	Afternoon DaySegment = "afternoon"
	Evening   DaySegment = "evening"
)

// SegmentFor buckets a clock time by hour: <12 morning, <18 afternoon, else evening.
func SegmentFor(c Clock) DaySegment {
	switch h := c.Hour(); {
	case h < 12:
		return Morning
	case h < 18:
		return Afternoon
	default:
		return Evening
	}
}

// PeriodSlot is one numbered class period of a day.
type PeriodSlot struct {
	Number     int        `yaml:"number" json:"number"`
	Start      Clock      `yaml:"start" json:"start"`
	End        Clock      `yaml:"end" json:"end"`
	Segment    DaySegment `yaml:"segment" json:"segment"`
	AfterLunch bool       `yaml:"after_lunch" json:"after_lunch"`
}

// Duration returns End-Start.
func (p PeriodSlot) Duration() time.Duration {
	return p.End.Sub(p.Start)
}

// BreakKind tags an irregular break between two periods.
type BreakKind string

const (
	BreakLunch  BreakKind = "lunch"
	BreakDinner BreakKind = "dinner"
	BreakOther  BreakKind = "other"
)

// BreakSlot anchors a break after the given period number.
type BreakSlot struct {
	Kind        BreakKind `yaml:"kind" json:"kind"`
	AfterPeriod int       `yaml:"after_period" json:"after_period"`
}

// ScheduleEntry is a persistable course: one weekly slot of one class.
type ScheduleEntry struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Location   string `json:"location"`
	Color      Color  `json:"color"`
	SemesterID string `json:"semester_id"`

	// DayOfWeek is ISO numbered (Monday=1 .. Sunday=7).
	DayOfWeek int   `json:"day_of_week"`
	Start     Clock `json:"start"`
	End       Clock `json:"end"`

	Weeks WeekPattern `json:"weeks"`

	ValidFrom time.Time `json:"valid_from"`
	ValidTo   time.Time `json:"valid_to"`

	// PeriodStart / PeriodEnd are both nil when the entry did not match any
	// period; IsCustomTime mirrors that.
	PeriodStart  *int `json:"period_start,omitempty"`
	PeriodEnd    *int `json:"period_end,omitempty"`
	IsCustomTime bool `json:"is_custom_time"`

	ReminderMinutes *int `json:"reminder_minutes,omitempty"`
}

// ActiveInWeek reports whether the entry takes place in the given semester week.
func (e ScheduleEntry) ActiveInWeek(week int) bool {
	return e.Weeks.Contains(week)
}

// GridPosition is the vertical placement of an entry inside the render grid.
type GridPosition struct {
	Offset float64 `json:"offset"`
	Height float64 `json:"height"`
}
