package period

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"timetable/internal/model"
)

const (
	exactTolerance = 5 * time.Minute
	scoreWindow    = 30 * time.Minute
	minBestScore   = 0.3
)

var (
	// 第1-2节, 1~2节, 第 3－4 节, 5—6 ...
	rangeHint = regexp.MustCompile(`第?\s*(\d+)\s*[-~～－—–]\s*(\d+)\s*节?`)
	// 第7节
	singleHint = regexp.MustCompile(`第\s*(\d+)\s*节`)
)

// Range is an inclusive span of period numbers.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of periods covered.
func (r Range) Len() int {
	return r.End - r.Start + 1
}

// ExtractPeriodFromDescription looks for a "第N-M节" or "第N节" hint in free text.
// The result is not checked against any period table: imported numbering may
// legitimately differ from local settings.
func ExtractPeriodFromDescription(description string) (Range, bool) {
	if description == "" {
		return Range{}, false
	}
	// A range carrying 第 or 节 beats a bare "N-M", which is as likely to be
	// an academic year or a date. Bare ranges must also look like period
	// numbers.
	var bare *Range
	for _, m := range rangeHint.FindAllStringSubmatch(description, -1) {
		a, errA := strconv.Atoi(m[1])
		b, errB := strconv.Atoi(m[2])
		if errA != nil || errB != nil || a <= 0 || b <= 0 || a > b {
			continue
		}
		if strings.ContainsAny(m[0], "第节") {
			return Range{Start: a, End: b}, true
		}
		if bare == nil && b <= maxHintNumber {
			bare = &Range{Start: a, End: b}
		}
	}
	if bare != nil {
		return *bare, true
	}
	for _, m := range singleHint.FindAllStringSubmatch(description, -1) {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			return Range{Start: n, End: n}, true
		}
	}
	return Range{}, false
}

// MatchPeriod maps a clock range onto period numbers.
//
// Resolution order:
//   - a textual hint in description wins outright;
//   - otherwise the first (i <= j) pair whose start/end are both within 5
//     minutes of the probe;
//   - otherwise each bound is scored independently against every period and
//     the best one kept, provided both scores exceed 0.3 and start <= end.
//
// ok is false when nothing matched; the caller then treats the course as
// custom-timed.
func MatchPeriod(start, end model.Clock, description string, periods []model.PeriodSlot) (r Range, ok bool) {
	if r, ok := ExtractPeriodFromDescription(description); ok {
		return r, true
	}
	if len(periods) == 0 {
		return Range{}, false
	}

	for i := range periods {
		if model.AbsDiff(start, periods[i].Start) > exactTolerance {
			continue
		}
		for j := i; j < len(periods); j++ {
			if model.AbsDiff(end, periods[j].End) <= exactTolerance {
				return Range{Start: periods[i].Number, End: periods[j].Number}, true
			}
		}
	}

	sp, sScore := bestPeriod(start, periods)
	ep, eScore := bestPeriod(end, periods)
	if sScore > minBestScore && eScore > minBestScore && sp <= ep {
		return Range{Start: sp, End: ep}, true
	}
	return Range{}, false
}

func bestPeriod(t model.Clock, periods []model.PeriodSlot) (number int, score float64) {
	for _, p := range periods {
		if s := slotScore(t, p); s > score {
			number, score = p.Number, s
		}
	}
	return number, score
}

// slotScore is 1 at the slot start, falling linearly to 0.7 at the slot end;
// outside the slot it decays from 0.7 to 0 over scoreWindow.
func slotScore(t model.Clock, p model.PeriodSlot) float64 {
	if !t.Before(p.Start) && !t.After(p.End) {
		span := p.End.Sub(p.Start)
		if span <= 0 {
			return 1
		}
		return 1 - 0.3*float64(t.Sub(p.Start))/float64(span)
	}
	dist := t.Sub(p.End)
	if t.Before(p.Start) {
		dist = p.Start.Sub(t)
	}
	if dist > scoreWindow {
		return 0
	}
	return 0.7 * (1 - float64(dist)/float64(scoreWindow))
}
