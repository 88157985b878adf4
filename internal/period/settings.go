package period

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"timetable/internal/model"
)

const (
	minPeriodDuration = 5 * time.Minute
	lunchGapThreshold = 30 * time.Minute
)

// Settings is the uniform description of a day: N equally long periods with
// a fixed break between them and one optional longer lunch break.
type Settings struct {
	TotalPeriods   int
	FirstStart     model.Clock
	PeriodDuration time.Duration
	BreakDuration  time.Duration
	// LunchAfter is the period number followed by the lunch break; 0 disables it.
	LunchAfter    int
	LunchDuration time.Duration
}

// DefaultSettings mirrors a common 12-period university day.
func DefaultSettings() Settings {
	return Settings{
		TotalPeriods:   12,
		FirstStart:     model.NewClock(8, 0),
		PeriodDuration: 45 * time.Minute,
		BreakDuration:  10 * time.Minute,
		LunchAfter:     4,
		LunchDuration:  2 * time.Hour,
	}
}

// Validation is the outcome of ValidatePeriods.
type Validation struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// ValidatePeriods checks numbering (exactly 1..N in order), ordering
// (end[i] <= start[i+1]) and a minimum 5-minute length per period.
func ValidatePeriods(periods []model.PeriodSlot) Validation {
	if len(periods) == 0 {
		return Validation{Valid: false, Message: "no periods defined"}
	}
	for i, p := range periods {
		if p.Number != i+1 {
			return Validation{Valid: false, Message: fmt.Sprintf("period at position %d is numbered %d, expected %d", i+1, p.Number, i+1)}
		}
		if p.Duration() < minPeriodDuration {
			return Validation{Valid: false, Message: fmt.Sprintf("period %d (%s-%s) is shorter than %d minutes", p.Number, p.Start, p.End, int(minPeriodDuration/time.Minute))}
		}
		if i+1 < len(periods) && p.End.After(periods[i+1].Start) {
			return Validation{Valid: false, Message: fmt.Sprintf("period %d ends at %s after period %d starts at %s", p.Number, p.End, periods[i+1].Number, periods[i+1].Start)}
		}
	}
	return Validation{Valid: true, Message: fmt.Sprintf("%d periods", len(periods))}
}

// ConvertToSettings summarizes a table as uniform Settings: the modal period
// length, and the modal gap once the single largest gap of at least 30
// minutes has been set aside as lunch.
func ConvertToSettings(periods []model.PeriodSlot) Settings {
	if len(periods) == 0 {
		return DefaultSettings()
	}

	out := Settings{
		TotalPeriods: len(periods),
		FirstStart:   periods[0].Start,
	}

	durations := make([]time.Duration, 0, len(periods))
	for _, p := range periods {
		durations = append(durations, p.Duration())
	}
	out.PeriodDuration, _ = mode(durations)

	gaps := make([]time.Duration, 0, len(periods))
	for i := 0; i+1 < len(periods); i++ {
		gaps = append(gaps, periods[i+1].Start.Sub(periods[i].End))
	}

	lunch := largestGap(gaps, lunchGapThreshold)
	ordinary := make([]time.Duration, 0, len(gaps))
	for i, g := range gaps {
		if i == lunch {
			out.LunchAfter = periods[i].Number
			out.LunchDuration = g
			continue
		}
		ordinary = append(ordinary, g)
	}
	if brk, ok := mode(ordinary); ok {
		out.BreakDuration = brk
	} else {
		out.BreakDuration = DefaultSettings().BreakDuration
	}
	return out
}

// largestGap returns the index of the first maximal gap that is at least
// threshold long, or -1.
func largestGap(gaps []time.Duration, threshold time.Duration) int {
	idx := -1
	for i, g := range gaps {
		if g < threshold {
			continue
		}
		if idx == -1 || g > gaps[idx] {
			idx = i
		}
	}
	return idx
}

// mode returns the most frequent value; ties go to the smallest value so the
// result does not depend on input order.
func mode[T cmp.Ordered](values []T) (T, bool) {
	var zero T
	if len(values) == 0 {
		return zero, false
	}
	counts := make(map[T]int, len(values))
	for _, v := range values {
		counts[v]++
	}
	keys := make([]T, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	best := keys[0]
	for _, k := range keys[1:] {
		if counts[k] > counts[best] {
			best = k
		}
	}
	return best, true
}
