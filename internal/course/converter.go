// Package course turns raw calendar events into persistable schedule entries.
package course

import (
	"fmt"
	"image/color"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	appLog "timetable/internal/log"
	"timetable/internal/model"
	"timetable/internal/palette"
	"timetable/internal/period"
	"timetable/internal/week"
)

// Strategy selects the period table used for matching.
type Strategy int

const (
	// UseExistingPeriods matches against the user-configured table.
	UseExistingPeriods Strategy = iota
	// AutoCreatePeriods matches against a table generated from the import.
	AutoCreatePeriods
)

func (s Strategy) String() string {
	switch s {
	case UseExistingPeriods:
		return "existing"
	case AutoCreatePeriods:
		return "auto"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy accepts "existing" or "auto".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "existing", "":
		return UseExistingPeriods, nil
	case "auto":
		return AutoCreatePeriods, nil
	default:
		return 0, fmt.Errorf("course: unknown strategy %q", s)
	}
}

// Options carries everything a conversion needs besides the events.
type Options struct {
	SemesterID    string
	SemesterStart time.Time
	BaseColor     color.NRGBA
	Strategy      Strategy

	ExistingPeriods  []model.PeriodSlot
	GeneratedPeriods []model.PeriodSlot
}

func (o Options) periods() []model.PeriodSlot {
	if o.Strategy == AutoCreatePeriods {
		return o.GeneratedPeriods
	}
	return o.ExistingPeriods
}

// ToCourse converts a single event. The entry is active every week between
// the event date and its recurrence end (or the event date alone); grouped
// conversion refines the week pattern.
func ToCourse(ev model.RawEvent, opts Options, existing []model.ScheduleEntry) model.ScheduleEntry {
	start, end := model.ClockOf(ev.Start), model.ClockOf(ev.End)
	day := ev.DayOfWeek()

	e := model.ScheduleEntry{
		ID:              uuid.NewString(),
		Name:            ev.Name,
		Location:        ev.Location,
		SemesterID:      opts.SemesterID,
		DayOfWeek:       day,
		Start:           start,
		End:             end,
		Weeks:           model.AllWeeks(),
		ValidFrom:       dateOf(ev.Start),
		ValidTo:         lastDate(ev),
		ReminderMinutes: ev.ReminderMinutes,
	}

	if r, ok := period.MatchPeriod(start, end, ev.Description, opts.periods()); ok {
		e.PeriodStart, e.PeriodEnd = &r.Start, &r.End
	} else {
		e.IsCustomTime = true
		appLog.Debug("course not bound to periods", "name", ev.Name, "day", day, "start", start, "end", end)
	}

	e.Color = palette.AssignColor(existing, day, start, end, opts.BaseColor)
	return e
}

type groupKey struct {
	name     string
	start    model.Clock
	location string
	day      int
}

// GroupAndConvert merges exports that emit one VEVENT per occurrence back
// into one entry per (name, start time, location, weekday), in order of first
// appearance. The weekday is part of the key on top of the usual
// (name, start time, location) triple: an entry carries a single DayOfWeek,
// so a course held Monday and Thursday at 08:00 becomes two entries instead
// of one entry with the first occurrence's weekday.
//
// The semester weeks of every occurrence between its start and recurrence end
// are collected into one set, classified as
//   - ODD when every week is odd and there is more than one,
//   - EVEN likewise,
//   - CUSTOM with the sorted list otherwise.
//
// ALL is never produced here, even for a gapless run of weeks.
//
// Colours are assigned one entry at a time, each new entry counting as
// existing for the next.
func GroupAndConvert(events []model.RawEvent, opts Options, existing []model.ScheduleEntry) []model.ScheduleEntry {
	var order []groupKey
	groups := make(map[groupKey][]model.RawEvent)
	for _, ev := range events {
		k := groupKey{
			name:     ev.Name,
			start:    model.ClockOf(ev.Start),
			location: ev.Location,
			day:      ev.DayOfWeek(),
		}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], ev)
	}

	calc := week.NewCalculator(opts.SemesterStart)
	known := slices.Clone(existing)
	out := make([]model.ScheduleEntry, 0, len(order))

	for _, k := range order {
		occ := groups[k]
		slices.SortStableFunc(occ, func(a, b model.RawEvent) int {
			return a.Start.Compare(b.Start)
		})

		e := ToCourse(occ[0], opts, known)
		weeks := make(map[int]struct{})
		for _, ev := range occ {
			for _, w := range occurrenceWeeks(calc, ev) {
				weeks[w] = struct{}{}
			}
			if d := dateOf(ev.Start); d.Before(e.ValidFrom) {
				e.ValidFrom = d
			}
			if d := lastDate(ev); d.After(e.ValidTo) {
				e.ValidTo = d
			}
		}
		e.Weeks = classifyWeeks(weeks)

		appLog.Debug("course grouped",
			"name", e.Name,
			"day", e.DayOfWeek,
			"occurrences", len(occ),
			"weeks", e.Weeks,
		)

		known = append(known, e)
		out = append(out, e)
	}
	return out
}

// occurrenceWeeks steps weekly from the event date to its recurrence end and
// returns the semester week of each step. Weeks before the semester (< 1)
// are dropped.
func occurrenceWeeks(calc week.Calculator, ev model.RawEvent) []int {
	steps := 0
	if ev.Until != nil {
		steps = max(week.DaysBetween(ev.Start, *ev.Until)/7, 0)
	}
	out := make([]int, 0, steps+1)
	for i := 0; i <= steps; i++ {
		if w := calc.Week(ev.Start.AddDate(0, 0, 7*i)); w >= 1 {
			out = append(out, w)
		}
	}
	return out
}

// classifyWeeks never returns ALL; an empty set (every occurrence before
// week 1) yields an empty CUSTOM pattern that is active in no week.
func classifyWeeks(set map[int]struct{}) model.WeekPattern {
	if len(set) == 0 {
		return model.CustomWeeks(nil)
	}
	weeks := make([]int, 0, len(set))
	allOdd, allEven := true, true
	for w := range set {
		weeks = append(weeks, w)
		if w%2 == 0 {
			allOdd = false
		} else {
			allEven = false
		}
	}
	switch {
	case len(weeks) > 1 && allOdd:
		return model.OddWeeks()
	case len(weeks) > 1 && allEven:
		return model.EvenWeeks()
	default:
		return model.CustomWeeks(weeks)
	}
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func lastDate(ev model.RawEvent) time.Time {
	if ev.Until != nil && !ev.Until.Before(dateOf(ev.Start)) {
		return dateOf(ev.Until.In(ev.Start.Location()))
	}
	return dateOf(ev.Start)
}
