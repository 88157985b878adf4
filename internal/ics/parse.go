package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "timetable/internal/log"
)

// ParsedEvent is the normalized form of one VEVENT. Recurrence is kept as the
// raw RRULE; RecurrenceEnd and Flatten interpret it.
type ParsedEvent struct {
	Source Source

	UID         string
	Summary     string
	Description string
	Location    string
	Status      string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID
	IsOverride bool

	// ReminderMinutes is the lead time of the first VALARM with a relative
	// trigger before the start.
	ReminderMinutes *int
}

// ParseICS parses one calendar payload. A VEVENT that cannot be read is
// logged and skipped; only an unreadable calendar is an error.
func ParseICS(src Source, body []byte) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("ics: empty body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse %s: %w", src.label(), err)
	}

	events := make([]ParsedEvent, 0)
	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(src, ve)
		if perr != nil {
			appLog.Error("ics vevent skipped", perr, "source", src.label())
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("ics parse completed", "source", src.label(), "event_count", len(events))
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (ParsedEvent, error) {
	out := ParsedEvent{Source: src}

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		out.Status = strings.ToUpper(strings.TrimSpace(p.Value))
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, fmt.Errorf("DTSTART of %q: %w", out.Summary, err)
	}
	end, err := ve.GetEndAt()
	if err != nil {
		// No DTEND: zero-length event, left for the converter to drop.
		end = start
	}
	out.Start, out.End = start, end

	if dt := ve.GetProperty(ical.ComponentPropertyDtStart); dt != nil {
		if vs, ok := dt.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			out.AllDay = true
		}
		if !strings.Contains(dt.Value, "T") {
			out.AllDay = true
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, start.Location()); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if rid := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); rid != nil {
		if t, err := parseICSTime(rid.Value, start.Location()); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	for _, c := range ve.Components {
		alarm, ok := c.(*ical.VAlarm)
		if !ok {
			continue
		}
		trig := alarm.GetProperty(ical.ComponentProperty("TRIGGER"))
		if trig == nil {
			continue
		}
		if m, ok := parseTrigger(trig.Value); ok {
			out.ReminderMinutes = &m
			break
		}
	}

	return out, nil
}

// parseICSTime handles the bare DATE / DATE-TIME / UTC forms used in EXDATE
// and RECURRENCE-ID values; floating values are read in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}

// parseTrigger reads a relative TRIGGER such as "-PT15M", "-PT1H30M" or
// "-P1D" and returns the lead time in minutes. Triggers after the start and
// absolute triggers are ignored.
func parseTrigger(v string) (int, bool) {
	v = strings.ToUpper(strings.TrimSpace(v))
	if !strings.HasPrefix(v, "-P") {
		return 0, false
	}
	v = v[2:]

	total := 0
	inTime := false
	num := 0
	digits := false
	for _, r := range v {
		switch {
		case r >= '0' && r <= '9':
			num = num*10 + int(r-'0')
			digits = true
		case r == 'T':
			inTime = true
		case !digits:
			return 0, false
		case r == 'W':
			total += num * 7 * 24 * 60
		case r == 'D':
			total += num * 24 * 60
		case r == 'H' && inTime:
			total += num * 60
		case r == 'M' && inTime:
			total += num
		case r == 'S' && inTime:
			total += num / 60
		default:
			return 0, false
		}
		if r < '0' || r > '9' {
			num, digits = 0, false
		}
	}
	if digits {
		return 0, false
	}
	return total, true
}

func unescapeText(s string) string {
	r := strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)
	return r.Replace(s)
}
