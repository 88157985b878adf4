// Package grid computes render rows and course geometry for the weekly view.
package grid

import (
	"timetable/internal/model"
	"timetable/internal/period"
)

// Metrics is the size of one period cell and the spacing between cells.
type Metrics struct {
	CellHeight float64 `json:"cell_height"`
	Gap        float64 `json:"gap"`
}

// CalculateCoursePosition places an entry spanning PeriodStart..PeriodEnd:
//
//	offset = cell*(start-1) + gap*(start-1)
//	height = cell*span + gap*(span-1)
//
// Custom-timed entries, inverted or non-positive ranges and empty tables get
// a single cell at the top.
func CalculateCoursePosition(entry model.ScheduleEntry, periods []model.PeriodSlot, m Metrics) model.GridPosition {
	fallback := model.GridPosition{Offset: 0, Height: m.CellHeight}
	if len(periods) == 0 || entry.PeriodStart == nil || entry.PeriodEnd == nil {
		return fallback
	}
	start, end := *entry.PeriodStart, *entry.PeriodEnd
	if start < 1 || end < start {
		return fallback
	}

	before := float64(start - 1)
	span := float64(end - start + 1)
	return model.GridPosition{
		Offset: m.CellHeight*before + m.Gap*before,
		Height: m.CellHeight*span + m.Gap*(span-1),
	}
}

// BuildGridRows emits one PeriodRow per period and a BreakRow after the last
// period before a change into the afternoon (lunch) or the evening (dinner).
func BuildGridRows(periods []model.PeriodSlot) []model.GridRow {
	breaks := make(map[int]model.BreakKind)
	for _, b := range period.Breaks(periods) {
		breaks[b.AfterPeriod] = b.Kind
	}

	rows := make([]model.GridRow, 0, len(periods)+len(breaks))
	for _, p := range periods {
		rows = append(rows, model.PeriodRow{Slot: p})
		if kind, ok := breaks[p.Number]; ok {
			rows = append(rows, model.BreakRow{Kind: kind, AfterPeriod: p.Number})
		}
	}
	return rows
}
