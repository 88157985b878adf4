// Package period builds, matches and validates tables of numbered class periods.
package period

import (
	"math"
	"slices"
	"strings"
	"time"

	appLog "timetable/internal/log"
	"timetable/internal/model"
)

const (
	duplicateTolerance  = 5 * time.Minute
	adjacencyTolerance  = 10 * time.Minute
	coursesLunchGap     = 60 * time.Minute
	coverageTolerance   = 15 * time.Minute
	eveningEstimateUnit = 55 * time.Minute
	assumedBreak        = 10 * time.Minute
	defaultDuration     = 45 * time.Minute

	// Hints above this are treated as noise rather than a real period number.
	maxHintNumber = 20
)

var eveningStart = model.NewClock(18, 0)

// GeneratePeriods steps a clock forward from s.FirstStart, inserting
// s.LunchDuration once after period s.LunchAfter and s.BreakDuration after
// every other period.
func GeneratePeriods(s Settings) []model.PeriodSlot {
	if s.TotalPeriods <= 0 {
		return nil
	}
	out := make([]model.PeriodSlot, 0, s.TotalPeriods)
	clock := s.FirstStart
	for n := 1; n <= s.TotalPeriods; n++ {
		end := clock.Add(s.PeriodDuration)
		out = append(out, model.PeriodSlot{
			Number:     n,
			Start:      clock,
			End:        end,
			Segment:    model.SegmentFor(clock),
			AfterLunch: s.LunchAfter > 0 && n > s.LunchAfter,
		})
		if n == s.LunchAfter {
			clock = end.Add(s.LunchDuration)
		} else {
			clock = end.Add(s.BreakDuration)
		}
	}
	return out
}

type interval struct {
	start, end model.Clock
}

func (iv interval) duration() time.Duration {
	return iv.end.Sub(iv.start)
}

// GeneratePeriodsFromCourses infers a table purely from event time ranges.
//
//   - ranges within 5 minutes on both ends are collapsed as duplicates;
//   - overlapping ranges, or ranges at most 10 minutes apart, are merged;
//   - the merged intervals are numbered chronologically;
//   - every period after the first gap of at least one hour is flagged as
//     following lunch.
func GeneratePeriodsFromCourses(events []model.RawEvent) []model.PeriodSlot {
	uniq := make([]interval, 0, len(events))
	for _, ev := range events {
		iv := interval{start: model.ClockOf(ev.Start), end: model.ClockOf(ev.End)}
		if !iv.end.After(iv.start) {
			continue
		}
		dup := slices.ContainsFunc(uniq, func(u interval) bool {
			return model.AbsDiff(u.start, iv.start) <= duplicateTolerance &&
				model.AbsDiff(u.end, iv.end) <= duplicateTolerance
		})
		if !dup {
			uniq = append(uniq, iv)
		}
	}
	if len(uniq) == 0 {
		return nil
	}

	slices.SortFunc(uniq, func(a, b interval) int {
		if a.start != b.start {
			return int(a.start - b.start)
		}
		return int(a.end - b.end)
	})

	merged := []interval{uniq[0]}
	for _, iv := range uniq[1:] {
		cur := &merged[len(merged)-1]
		if !iv.start.After(cur.end.Add(adjacencyTolerance)) {
			if iv.end.After(cur.end) {
				cur.end = iv.end
			}
			continue
		}
		merged = append(merged, iv)
	}

	out := make([]model.PeriodSlot, len(merged))
	afterLunch := false
	for i, iv := range merged {
		if i > 0 && iv.start.Sub(merged[i-1].end) >= coursesLunchGap {
			afterLunch = true
		}
		out[i] = model.PeriodSlot{
			Number:     i + 1,
			Start:      iv.start,
			End:        iv.end,
			Segment:    model.SegmentFor(iv.start),
			AfterLunch: afterLunch,
		}
	}
	return out
}

// samples collects observed clock values per period number.
type samples map[int][]model.Clock

func (s samples) add(n int, c model.Clock) {
	s[n] = append(s[n], c)
}

func (s samples) mode(n int) (model.Clock, bool) {
	return mode(s[n])
}

// GeneratePeriodsFromDescriptions infers a table from "第N-M节" hints.
//
// Every hinted event contributes its start as a sample of period N and its
// end as a sample of period M; each bound is resolved independently as the
// statistical mode of its samples, so a few mislabelled events do not drag
// the table. Multi-period hints also contribute estimated interior bounds,
// which are only consulted when a bound has no direct sample. Numbers missing
// between observed ones are filled with the modal duration and gap.
//
// Events without a usable hint that start at or after 18:00 and are not
// already covered by the table become new evening periods numbered after
// the current maximum (one per ~55 minutes). Such a block never starts
// before the end of the table's last period.
//
// When no event carries a hint the table is built by GeneratePeriodsFromCourses.
func GeneratePeriodsFromDescriptions(events []model.RawEvent) []model.PeriodSlot {
	starts, ends := samples{}, samples{}
	estStarts, estEnds := samples{}, samples{}
	var unhinted []model.RawEvent

	maxN := 0
	for _, ev := range events {
		r, ok := ExtractPeriodFromDescription(ev.Description)
		if !ok {
			unhinted = append(unhinted, ev)
			continue
		}
		if r.End > maxHintNumber {
			appLog.Debug("period hint ignored", "name", ev.Name, "description", ev.Description)
			unhinted = append(unhinted, ev)
			continue
		}
		s, e := model.ClockOf(ev.Start), model.ClockOf(ev.End)
		if !e.After(s) {
			continue
		}
		starts.add(r.Start, s)
		ends.add(r.End, e)
		if span := r.Len(); span > 1 {
			unit := (e.Sub(s) - time.Duration(span-1)*assumedBreak) / time.Duration(span)
			if unit >= minPeriodDuration {
				for k := 0; k < span; k++ {
					ps := s.Add(time.Duration(k) * (unit + assumedBreak))
					if k > 0 {
						estStarts.add(r.Start+k, ps)
					}
					if k < span-1 {
						estEnds.add(r.Start+k, ps.Add(unit))
					}
				}
			}
		}
		maxN = max(maxN, r.End)
	}

	if maxN == 0 {
		appLog.Debug("no period hints found; inferring periods from time ranges", "events", len(events))
		return GeneratePeriodsFromCourses(events)
	}

	periods := resolveSamples(maxN, starts, ends, estStarts, estEnds)
	periods = appendEveningPeriods(periods, unhinted)
	markSegmentsAndLunch(periods)
	return periods
}

type bound struct {
	start, end       model.Clock
	hasStart, hasEnd bool
}

func resolveSamples(maxN int, starts, ends, estStarts, estEnds samples) []model.PeriodSlot {
	bounds := make([]bound, maxN+1)
	for n := 1; n <= maxN; n++ {
		b := &bounds[n]
		if b.start, b.hasStart = starts.mode(n); !b.hasStart {
			b.start, b.hasStart = estStarts.mode(n)
		}
		if b.end, b.hasEnd = ends.mode(n); !b.hasEnd {
			b.end, b.hasEnd = estEnds.mode(n)
		}
	}

	var durations, gaps []time.Duration
	for n := 1; n <= maxN; n++ {
		b := bounds[n]
		if b.hasStart && b.hasEnd && b.end.After(b.start) {
			durations = append(durations, b.end.Sub(b.start))
		}
		if n < maxN && b.hasEnd && bounds[n+1].hasStart {
			if g := bounds[n+1].start.Sub(b.end); g >= 0 && g < lunchGapThreshold {
				gaps = append(gaps, g)
			}
		}
	}
	dur, ok := mode(durations)
	if !ok {
		dur = defaultDuration
	}
	gap, ok := mode(gaps)
	if !ok {
		gap = assumedBreak
	}

	// Half-known bounds first, then forward and backward fill.
	for n := 1; n <= maxN; n++ {
		b := &bounds[n]
		switch {
		case b.hasStart && !b.hasEnd:
			b.end, b.hasEnd = b.start.Add(dur), true
		case !b.hasStart && b.hasEnd:
			b.start, b.hasStart = b.end.Add(-dur), true
		}
	}
	for n := 2; n <= maxN; n++ {
		if b, prev := &bounds[n], bounds[n-1]; !b.hasStart && prev.hasEnd {
			b.start = prev.end.Add(gap)
			b.end = b.start.Add(dur)
			b.hasStart, b.hasEnd = true, true
		}
	}
	for n := maxN - 1; n >= 1; n-- {
		if b, next := &bounds[n], bounds[n+1]; !b.hasStart && next.hasStart {
			b.end = next.start.Add(-gap)
			b.start = b.end.Add(-dur)
			b.hasStart, b.hasEnd = true, true
		}
	}

	out := make([]model.PeriodSlot, 0, maxN)
	for n := 1; n <= maxN; n++ {
		out = append(out, model.PeriodSlot{Number: n, Start: bounds[n].start, End: bounds[n].end})
	}
	return out
}

func appendEveningPeriods(periods []model.PeriodSlot, unhinted []model.RawEvent) []model.PeriodSlot {
	slices.SortStableFunc(unhinted, func(a, b model.RawEvent) int {
		return int(model.ClockOf(a.Start) - model.ClockOf(b.Start))
	})
	for _, ev := range unhinted {
		if strings.TrimSpace(ev.Description) != "" {
			if _, ok := ExtractPeriodFromDescription(ev.Description); ok {
				continue
			}
		}
		iv := interval{start: model.ClockOf(ev.Start), end: model.ClockOf(ev.End)}
		if !iv.end.After(iv.start) || covered(iv, periods) {
			continue
		}
		if iv.start.Before(eveningStart) {
			appLog.Debug("uncovered daytime event left unmatched", "name", ev.Name, "start", iv.start, "end", iv.end)
			continue
		}
		// Appended periods must follow the table; an event overlapping the
		// last period only contributes its remainder.
		if n := len(periods); n > 0 && iv.start.Before(periods[n-1].End) {
			iv.start = periods[n-1].End
			if iv.duration() < minPeriodDuration {
				appLog.Debug("evening event overlaps the table; nothing left to append", "name", ev.Name)
				continue
			}
		}
		count := int(math.Round(float64(iv.duration()) / float64(eveningEstimateUnit)))
		count = max(count, 1)
		unit := iv.duration() / time.Duration(count)
		next := len(periods) + 1
		for k := 0; k < count; k++ {
			ps := iv.start.Add(time.Duration(k) * unit)
			periods = append(periods, model.PeriodSlot{Number: next + k, Start: ps, End: ps.Add(unit)})
		}
		appLog.Debug("evening periods appended", "name", ev.Name, "from", next, "count", count)
	}
	return periods
}

// covered reports whether both ends of iv fall on (±15 minutes) or inside
// some period of the table.
func covered(iv interval, periods []model.PeriodSlot) bool {
	startOK, endOK := false, false
	for _, p := range periods {
		inside := func(c model.Clock) bool { return !c.Before(p.Start) && !c.After(p.End) }
		if model.AbsDiff(iv.start, p.Start) <= coverageTolerance || inside(iv.start) {
			startOK = true
		}
		if model.AbsDiff(iv.end, p.End) <= coverageTolerance || inside(iv.end) {
			endOK = true
		}
	}
	return startOK && endOK
}

// markSegmentsAndLunch tags segments and flags every period after the
// largest gap of at least 30 minutes.
func markSegmentsAndLunch(periods []model.PeriodSlot) {
	gaps := make([]time.Duration, 0, len(periods))
	for i := 0; i+1 < len(periods); i++ {
		gaps = append(gaps, periods[i+1].Start.Sub(periods[i].End))
	}
	lunch := largestGap(gaps, lunchGapThreshold)
	for i := range periods {
		periods[i].Segment = model.SegmentFor(periods[i].Start)
		periods[i].AfterLunch = lunch >= 0 && i > lunch
	}
}

// Breaks derives lunch and dinner anchors from segment changes: a change into
// the afternoon is lunch, into the evening dinner. Changes into the morning
// are not breaks.
func Breaks(periods []model.PeriodSlot) []model.BreakSlot {
	var out []model.BreakSlot
	for i := 0; i+1 < len(periods); i++ {
		cur, next := periods[i], periods[i+1]
		if cur.Segment == next.Segment {
			continue
		}
		switch next.Segment {
		case model.Afternoon:
			out = append(out, model.BreakSlot{Kind: model.BreakLunch, AfterPeriod: cur.Number})
		case model.Evening:
			out = append(out, model.BreakSlot{Kind: model.BreakDinner, AfterPeriod: cur.Number})
		}
	}
	return out
}
