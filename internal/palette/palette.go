// Package palette derives a 12-colour theme palette from one accent colour and
// hands out palette slots so that neighbouring courses never share a colour.
package palette

import (
	"image/color"
	"time"

	"timetable/internal/model"
)

// Size is the number of palette slots; it must fit the 4-bit index of model.Color.
const Size = 12

// verticalGap is how close two same-day courses may sit before they count as
// neighbours.
const verticalGap = 30 * time.Minute

// variants are applied to the base colour in palette order; slot 0 is the
// base itself.
var variants = [Size]struct{ dh, sMul, lMul float64 }{
	{0, 1, 1},
	{15, 1, 1},
	{-15, 1, 1},
	{30, 0.9, 1},
	{-30, 0.9, 1},
	{0, 0.8, 1},
	{0, 1.2, 1},
	{0, 1, 0.85},
	{0, 1, 1.15},
	{20, 1, 0.9},
	{-20, 1, 1.1},
	{0, 0.85, 1.1},
}

// GenerateColorPalette returns the 12 deterministic HSL variants of base.
func GenerateColorPalette(base color.NRGBA) [Size]color.NRGBA {
	var out [Size]color.NRGBA
	out[0] = base
	v := toHSL(base)
	for i := 1; i < Size; i++ {
		m := variants[i]
		out[i] = v.shift(m.dh, m.sMul, m.lMul).toNRGBA(base.A)
	}
	return out
}

// ARGB packs c as 0xAARRGGBB.
func ARGB(c color.NRGBA) uint32 {
	return uint32(c.A)<<24 | uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

// Resolve returns the current theme colour for a stored Color.
func Resolve(c model.Color, base color.NRGBA) color.NRGBA {
	idx := c.Index()
	if idx >= Size {
		idx %= Size
	}
	return GenerateColorPalette(base)[idx]
}

// AssignColor picks a palette slot for a new course on day (ISO weekday)
// spanning start..end.
//
// Slots already used by neighbours are avoided, where a neighbour is
//   - a course on the same day that overlaps or is less than 30 minutes away, or
//   - a course on another day whose clock time overlaps.
//
// The smallest free slot wins; when all 12 are taken the slot is
// (day*7 + start hour) mod 12.
func AssignColor(existing []model.ScheduleEntry, day int, start, end model.Clock, base color.NRGBA) model.Color {
	var used [Size]bool
	for _, e := range existing {
		if neighbour(e, day, start, end) {
			if idx := e.Color.Index(); idx < Size {
				used[idx] = true
			}
		}
	}

	idx := -1
	for i, taken := range used {
		if !taken {
			idx = i
			break
		}
	}
	if idx < 0 {
		idx = (day*7 + start.Hour()) % Size
	}

	return model.EncodeColor(idx, ARGB(GenerateColorPalette(base)[idx]))
}

func neighbour(e model.ScheduleEntry, day int, start, end model.Clock) bool {
	overlap := start.Before(e.End) && e.Start.Before(end)
	if e.DayOfWeek != day {
		return overlap
	}
	if overlap {
		return true
	}
	var gap time.Duration
	if !e.End.After(start) {
		gap = start.Sub(e.End)
	} else {
		gap = e.Start.Sub(end)
	}
	return gap < verticalGap
}
