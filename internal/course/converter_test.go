package course

import (
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timetable/internal/model"
	"timetable/internal/period"
)

// 2025-09-01 is a Monday.
var semesterStart = time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)

func options(strategy Strategy) Options {
	return Options{
		SemesterID:      "2025-fall",
		SemesterStart:   semesterStart,
		BaseColor:       color.NRGBA{R: 0x4A, G: 0x90, B: 0xE2, A: 0xFF},
		Strategy:        strategy,
		ExistingPeriods: period.GeneratePeriods(period.DefaultSettings()),
	}
}

// at returns the given clock time on the Monday of semester week w, shifted by
// dayOffset days.
func at(w, dayOffset int, clock string) time.Time {
	c := model.MustClock(clock)
	return c.On(semesterStart.AddDate(0, 0, 7*(w-1)+dayOffset))
}

func weekly(name string, fromWeek, toWeek int, start, end string) model.RawEvent {
	until := at(toWeek, 0, end)
	return model.RawEvent{
		Name:     name,
		Location: "A101",
		Start:    at(fromWeek, 0, start),
		End:      at(fromWeek, 0, end),
		Until:    &until,
	}
}

func single(name string, w int, start, end string) model.RawEvent {
	return model.RawEvent{
		Name:     name,
		Location: "A101",
		Start:    at(w, 0, start),
		End:      at(w, 0, end),
	}
}

func weeksRange(from, to int) []int {
	var out []int
	for w := from; w <= to; w++ {
		out = append(out, w)
	}
	return out
}

func TestGroupAndConvertEveryWeekIsCustom(t *testing.T) {
	entries := GroupAndConvert([]model.RawEvent{weekly("Calculus", 1, 16, "08:00", "09:40")}, options(UseExistingPeriods), nil)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, model.CustomWeeks(weeksRange(1, 16)), e.Weeks)
	assert.Equal(t, 1, e.DayOfWeek)
	require.NotNil(t, e.PeriodStart)
	require.NotNil(t, e.PeriodEnd)
	assert.Equal(t, 1, *e.PeriodStart)
	assert.Equal(t, 2, *e.PeriodEnd)
	assert.False(t, e.IsCustomTime)
	assert.Equal(t, semesterStart, e.ValidFrom)
	assert.Equal(t, at(16, 0, "00:00"), e.ValidTo)
	assert.Equal(t, "2025-fall", e.SemesterID)
	assert.NotEmpty(t, e.ID)
}

func TestGroupAndConvertMergesPerOccurrenceExports(t *testing.T) {
	var events []model.RawEvent
	for w := 1; w <= 16; w++ {
		events = append(events, single("Calculus", w, "08:00", "09:40"))
	}
	entries := GroupAndConvert(events, options(UseExistingPeriods), nil)
	require.Len(t, entries, 1)
	assert.Equal(t, model.CustomWeeks(weeksRange(1, 16)), entries[0].Weeks)
	assert.Equal(t, at(16, 0, "00:00"), entries[0].ValidTo)
}

func TestGroupAndConvertWeekPatterns(t *testing.T) {
	tests := []struct {
		name  string
		weeks []int
		want  model.WeekPattern
	}{
		{"odd", []int{1, 3, 5, 7}, model.OddWeeks()},
		{"even", []int{8, 2, 4}, model.EvenWeeks()},
		{"single odd week", []int{3}, model.CustomWeeks([]int{3})},
		{"mixed", []int{1, 2, 5}, model.CustomWeeks([]int{1, 2, 5})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var events []model.RawEvent
			for _, w := range tt.weeks {
				events = append(events, single("Lab", w, "14:00", "15:40"))
			}
			entries := GroupAndConvert(events, options(UseExistingPeriods), nil)
			require.Len(t, entries, 1)
			assert.Equal(t, tt.want, entries[0].Weeks)
		})
	}
}

func TestGroupAndConvertUnionsOverlappingRanges(t *testing.T) {
	events := []model.RawEvent{
		weekly("Physics", 1, 4, "10:00", "11:40"),
		weekly("Physics", 3, 6, "10:00", "11:40"),
		single("Physics", 9, "10:00", "11:40"),
	}
	entries := GroupAndConvert(events, options(UseExistingPeriods), nil)
	require.Len(t, entries, 1)
	assert.Equal(t, model.CustomWeeks([]int{1, 2, 3, 4, 5, 6, 9}), entries[0].Weeks)
	assert.Equal(t, semesterStart, entries[0].ValidFrom)
	assert.Equal(t, at(9, 0, "00:00"), entries[0].ValidTo)
}

func TestGroupAndConvertDropsWeeksBeforeSemester(t *testing.T) {
	events := []model.RawEvent{weekly("Early", -1, 2, "08:00", "08:45")}
	entries := GroupAndConvert(events, options(UseExistingPeriods), nil)
	require.Len(t, entries, 1)
	assert.Equal(t, model.CustomWeeks([]int{1, 2}), entries[0].Weeks)
}

func TestGroupAndConvertGroupBeforeSemesterIsInactive(t *testing.T) {
	events := []model.RawEvent{weekly("LastTerm", -10, -3, "08:00", "08:45")}
	entries := GroupAndConvert(events, options(UseExistingPeriods), nil)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, model.WeeksCustom, e.Weeks.Kind)
	assert.Empty(t, e.Weeks.Weeks)
	for w := 1; w <= 20; w++ {
		assert.False(t, e.ActiveInWeek(w), "week %d", w)
	}
	assert.True(t, e.ValidTo.Before(semesterStart))
}

func TestGroupAndConvertSeparatesGroups(t *testing.T) {
	tuesday := single("Calculus", 1, "08:00", "09:40")
	tuesday.Start = tuesday.Start.AddDate(0, 0, 1)
	tuesday.End = tuesday.End.AddDate(0, 0, 1)

	otherRoom := single("Calculus", 1, "08:00", "09:40")
	otherRoom.Location = "B202"

	events := []model.RawEvent{
		single("Calculus", 1, "08:00", "09:40"),
		tuesday,
		otherRoom,
		single("Calculus", 1, "10:00", "11:40"),
	}
	entries := GroupAndConvert(events, options(UseExistingPeriods), nil)
	require.Len(t, entries, 4)
	assert.Equal(t, 1, entries[0].DayOfWeek)
	assert.Equal(t, 2, entries[1].DayOfWeek)
	assert.Equal(t, "B202", entries[2].Location)
	assert.Equal(t, model.MustClock("10:00"), entries[3].Start)
}

func TestGroupAndConvertColoursSequentially(t *testing.T) {
	events := []model.RawEvent{
		single("Calculus", 1, "08:00", "09:40"),
		single("Physics", 1, "08:00", "09:40"),
		single("History", 1, "10:00", "11:40"),
	}
	entries := GroupAndConvert(events, options(UseExistingPeriods), nil)
	require.Len(t, entries, 3)
	assert.Equal(t, 0, entries[0].Color.Index())
	assert.Equal(t, 1, entries[1].Color.Index())
	assert.Equal(t, 2, entries[2].Color.Index())

	existing := []model.ScheduleEntry{{DayOfWeek: 1, Start: model.MustClock("08:00"), End: model.MustClock("09:40"), Color: model.EncodeColor(0, 0)}}
	entries = GroupAndConvert(events[:1], options(UseExistingPeriods), existing)
	assert.Equal(t, 1, entries[0].Color.Index())
}

func TestToCourse(t *testing.T) {
	ev := single("Seminar", 2, "03:00", "04:00")
	reminder := 15
	ev.ReminderMinutes = &reminder

	e := ToCourse(ev, options(UseExistingPeriods), nil)
	assert.True(t, e.IsCustomTime)
	assert.Nil(t, e.PeriodStart)
	assert.Nil(t, e.PeriodEnd)
	assert.Equal(t, model.AllWeeks(), e.Weeks)
	assert.Equal(t, e.ValidFrom, e.ValidTo)
	assert.Equal(t, at(2, 0, "00:00"), e.ValidFrom)
	assert.Equal(t, &reminder, e.ReminderMinutes)
}

func TestToCourseStrategySelectsTable(t *testing.T) {
	ev := single("Evening", 1, "19:00", "20:35")
	generated := []model.PeriodSlot{
		{Number: 1, Start: model.MustClock("19:00"), End: model.MustClock("20:35"), Segment: model.Evening},
	}

	opts := options(UseExistingPeriods)
	opts.ExistingPeriods = nil
	opts.GeneratedPeriods = generated
	assert.True(t, ToCourse(ev, opts, nil).IsCustomTime)

	opts.Strategy = AutoCreatePeriods
	e := ToCourse(ev, opts, nil)
	require.False(t, e.IsCustomTime)
	assert.Equal(t, 1, *e.PeriodStart)
	assert.Equal(t, 1, *e.PeriodEnd)
}

func TestImportAutoCreate(t *testing.T) {
	first := weekly("Calculus", 1, 16, "08:00", "09:40")
	first.Description = "第1-2节"
	second := weekly("Physics", 1, 16, "10:00", "11:40")
	second.Description = "第3-4节"
	third := weekly("Night", 1, 8, "19:00", "20:50")

	res := Import([]model.RawEvent{first, second, third}, options(AutoCreatePeriods), nil)
	require.True(t, res.Validation.Valid, res.Validation.Message)
	require.Len(t, res.Periods, 6)
	assert.Equal(t, model.MustClock("19:00"), res.Periods[4].Start)
	require.Len(t, res.Entries, 3)
	assert.Zero(t, res.CustomTimed)
	assert.Equal(t, 5, *res.Entries[2].PeriodStart)
	assert.Equal(t, 6, *res.Entries[2].PeriodEnd)
	assert.Equal(t, len(res.Periods)+len(res.Breaks), len(res.Rows))
	assert.Equal(t, 6, res.Settings.TotalPeriods)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("Auto")
	require.NoError(t, err)
	assert.Equal(t, AutoCreatePeriods, s)

	s, err = ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, UseExistingPeriods, s)

	_, err = ParseStrategy("guess")
	assert.Error(t, err)
}
