package ics

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	appLog "timetable/internal/log"
	"timetable/internal/model"
)

const defaultMaxOccurrencesPerEvent = 1000

// FlattenConfig bounds the expansion done by Flatten.
type FlattenConfig struct {
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps a single rule; zero means
	// defaultMaxOccurrencesPerEvent.
	MaxOccurrencesPerEvent int
}

// FlattenResult lists the per-occurrence events and the UIDs that hit the cap.
type FlattenResult struct {
	Events    []ParsedEvent
	Truncated []string
}

// Flatten rewrites recurring events as one non-recurring event per occurrence
// inside [RangeStart, RangeEnd], honouring EXDATE and RECURRENCE-ID
// overrides. The course converter regroups them, so skipped or moved
// instances show up as gaps in the week pattern.
func Flatten(events []ParsedEvent, cfg FlattenConfig) (FlattenResult, error) {
	var res FlattenResult
	if cfg.RangeStart.IsZero() || cfg.RangeEnd.IsZero() {
		return res, errors.New("ics: flatten needs a bounded range")
	}
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return res, errors.New("ics: flatten range ends before it starts")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	overrides := make(map[string][]ParsedEvent)
	bases := make([]ParsedEvent, 0, len(events))
	hasBase := make(map[string]bool)
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		bases = append(bases, ev)
		hasBase[ev.UID] = true
	}

	for _, ev := range bases {
		if ev.RawRRule == "" {
			res.Events = append(res.Events, applyOverride(ev, overrides[ev.UID], ev.Start))
			continue
		}

		set, _, err := ruleSet(ev)
		if err != nil {
			appLog.Error("rrule skipped; keeping first occurrence", err, "uid", ev.UID, "rrule", ev.RawRRule)
			res.Events = append(res.Events, single(ev, ev.Start))
			continue
		}

		loc := ev.Start.Location()
		starts := set.Between(cfg.RangeStart.In(loc), cfg.RangeEnd.In(loc), true)
		if len(starts) > cfg.MaxOccurrencesPerEvent {
			starts = starts[:cfg.MaxOccurrencesPerEvent]
			res.Truncated = append(res.Truncated, ev.UID)
		}
		for _, s := range starts {
			res.Events = append(res.Events, applyOverride(ev, overrides[ev.UID], s))
		}
	}

	// Overrides of rules we never saw still describe a real occurrence.
	for uid, ovs := range overrides {
		if hasBase[uid] {
			continue
		}
		for _, ov := range ovs {
			res.Events = append(res.Events, single(ov, ov.Start))
		}
	}

	if len(res.Truncated) > 0 {
		appLog.Warn("flatten truncated recurring events", "uids", res.Truncated, "cap", cfg.MaxOccurrencesPerEvent)
	}
	return res, nil
}

func applyOverride(base ParsedEvent, overrides []ParsedEvent, occStart time.Time) ParsedEvent {
	for _, ov := range overrides {
		if ov.Recurrence.In(occStart.Location()).Equal(occStart) {
			return single(ov, ov.Start)
		}
	}
	return single(base, occStart)
}

// single returns ev as a non-recurring event starting at start, keeping its
// duration.
func single(ev ParsedEvent, start time.Time) ParsedEvent {
	out := ev
	out.End = start.Add(ev.End.Sub(ev.Start))
	out.Start = start
	out.RawRRule = ""
	out.ExDates = nil
	out.Recurrence = nil
	out.IsOverride = false
	return out
}

func ruleSet(ev ParsedEvent) (*rrule.Set, *rrule.ROption, error) {
	opt, err := rrule.StrToROption(ev.RawRRule)
	if err != nil {
		return nil, nil, fmt.Errorf("parse RRULE %q: %w", ev.RawRRule, err)
	}
	opt.Dtstart = ev.Start
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, nil, fmt.Errorf("build RRULE %q: %w", ev.RawRRule, err)
	}
	set := &rrule.Set{}
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}
	return set, opt, nil
}

// RecurrenceEnd returns the start of the last occurrence of a recurring
// event. Rules bounded by UNTIL or COUNT are evaluated in full; open-ended
// rules are cut at horizon, or yield nil when horizon is zero.
func RecurrenceEnd(ev ParsedEvent, horizon time.Time) (*time.Time, error) {
	if ev.RawRRule == "" {
		return nil, nil
	}
	set, opt, err := ruleSet(ev)
	if err != nil {
		return nil, err
	}

	var last time.Time
	switch {
	case opt.Count > 0 || !opt.Until.IsZero():
		if all := set.All(); len(all) > 0 {
			last = all[len(all)-1]
		}
	case !horizon.IsZero():
		last = set.Before(horizon, true)
	}
	if last.IsZero() {
		return nil, nil
	}
	return &last, nil
}

// ConvertConfig controls ToRawEvents.
type ConvertConfig struct {
	// Location is the zone whose wall clock the timetable uses; nil keeps
	// each event's own zone.
	Location *time.Location
	// Horizon cuts open-ended rules (typically the semester end).
	Horizon time.Time
}

// ToRawEvents hands parsed events to the timetable core. All-day, cancelled
// and zero-length events are dropped.
func ToRawEvents(events []ParsedEvent, cfg ConvertConfig) []model.RawEvent {
	out := make([]model.RawEvent, 0, len(events))
	skipped := 0
	for _, ev := range events {
		if ev.AllDay || ev.Status == "CANCELLED" || !ev.End.After(ev.Start) {
			skipped++
			continue
		}

		start, end := ev.Start, ev.End
		if cfg.Location != nil {
			start, end = start.In(cfg.Location), end.In(cfg.Location)
		}
		raw := model.RawEvent{
			Name:            ev.Summary,
			Location:        ev.Location,
			Start:           start,
			End:             end,
			Description:     ev.Description,
			ReminderMinutes: ev.ReminderMinutes,
		}

		until, err := RecurrenceEnd(ev, cfg.Horizon)
		if err != nil {
			appLog.Error("recurrence ignored", err, "uid", ev.UID, "summary", ev.Summary)
		} else if until != nil {
			u := until.In(start.Location())
			raw.Until = &u
		}
		out = append(out, raw)
	}
	if skipped > 0 {
		appLog.Debug("ics events not handed to converter", "skipped", skipped)
	}
	return out
}
