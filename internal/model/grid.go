package model

import "encoding/json"

// GridRow is one row of the rendered day column: either a PeriodRow or a
// BreakRow.
type GridRow interface {
	gridRow()
}

// PeriodRow renders a single period.
type PeriodRow struct {
	Slot PeriodSlot
}

// BreakRow renders a lunch/dinner marker after a period.
type BreakRow struct {
	Kind        BreakKind
	AfterPeriod int
}

func (PeriodRow) gridRow() {}
func (BreakRow) gridRow()  {}

func (r PeriodRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string     `json:"type"`
		Slot PeriodSlot `json:"slot"`
	}{"period", r.Slot})
}

func (r BreakRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type        string    `json:"type"`
		Kind        BreakKind `json:"kind"`
		AfterPeriod int       `json:"after_period"`
	}{"break", r.Kind, r.AfterPeriod})
}
