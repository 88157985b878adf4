package model

import (
	"slices"
	"strconv"
	"strings"
)

// WeekKind is the recurrence rule over semester weeks.
type WeekKind string

const (
	WeeksAll    WeekKind = "ALL"
	WeeksOdd    WeekKind = "ODD"
	WeeksEven   WeekKind = "EVEN"
	WeeksCustom WeekKind = "CUSTOM"
)

// WeekPattern says in which semester weeks an entry is active. Weeks is only
// meaningful for WeeksCustom and is kept sorted.
type WeekPattern struct {
	Kind  WeekKind `json:"kind"`
	Weeks []int    `json:"weeks,omitempty"`
}

func AllWeeks() WeekPattern  { return WeekPattern{Kind: WeeksAll} }
func OddWeeks() WeekPattern  { return WeekPattern{Kind: WeeksOdd} }
func EvenWeeks() WeekPattern { return WeekPattern{Kind: WeeksEven} }

// CustomWeeks copies, sorts and de-duplicates weeks.
func CustomWeeks(weeks []int) WeekPattern {
	w := slices.Clone(weeks)
	slices.Sort(w)
	return WeekPattern{Kind: WeeksCustom, Weeks: slices.Compact(w)}
}

// Contains reports whether week is covered by the pattern.
func (p WeekPattern) Contains(week int) bool {
	switch p.Kind {
	case WeeksAll:
		return true
	case WeeksOdd:
		return week%2 != 0
	case WeeksEven:
		return week%2 == 0
	case WeeksCustom:
		_, found := slices.BinarySearch(p.Weeks, week)
		return found
	default:
		return false
	}
}

func (p WeekPattern) String() string {
	if p.Kind != WeeksCustom {
		return string(p.Kind)
	}
	parts := make([]string, len(p.Weeks))
	for i, w := range p.Weeks {
		parts[i] = strconv.Itoa(w)
	}
	return "CUSTOM[" + strings.Join(parts, ",") + "]"
}
