package course

import (
	"timetable/internal/grid"
	appLog "timetable/internal/log"
	"timetable/internal/model"
	"timetable/internal/period"
)

// ImportResult is everything a caller persists or renders after one import.
type ImportResult struct {
	Entries    []model.ScheduleEntry
	Periods    []model.PeriodSlot
	Breaks     []model.BreakSlot
	Settings   period.Settings
	Validation period.Validation
	Rows       []model.GridRow

	// CustomTimed counts entries that matched no period.
	CustomTimed int
}

// Import runs one batch end to end. With AutoCreatePeriods and no
// GeneratedPeriods in opts, the table is inferred from the events first.
// An invalid table is reported in Validation; conversion still runs.
func Import(events []model.RawEvent, opts Options, existing []model.ScheduleEntry) ImportResult {
	if opts.Strategy == AutoCreatePeriods && len(opts.GeneratedPeriods) == 0 {
		opts.GeneratedPeriods = period.GeneratePeriodsFromDescriptions(events)
	}
	periods := opts.periods()

	res := ImportResult{
		Periods:    periods,
		Breaks:     period.Breaks(periods),
		Settings:   period.ConvertToSettings(periods),
		Validation: period.ValidatePeriods(periods),
		Rows:       grid.BuildGridRows(periods),
		Entries:    GroupAndConvert(events, opts, existing),
	}
	for _, e := range res.Entries {
		if e.IsCustomTime {
			res.CustomTimed++
		}
	}

	if !res.Validation.Valid {
		appLog.Warn("period table failed validation", "strategy", opts.Strategy, "reason", res.Validation.Message)
	}
	appLog.Info("import completed",
		"semester", opts.SemesterID,
		"strategy", opts.Strategy,
		"events", len(events),
		"entries", len(res.Entries),
		"periods", len(periods),
		"custom_timed", res.CustomTimed,
	)
	return res
}
