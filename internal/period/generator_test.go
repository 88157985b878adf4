package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timetable/internal/model"
)

var monday = time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)

func event(name, start, end, desc string) model.RawEvent {
	return model.RawEvent{
		Name:        name,
		Start:       clk(start).On(monday),
		End:         clk(end).On(monday),
		Description: desc,
	}
}

type span struct{ start, end string }

func assertSpans(t *testing.T, want []span, got []model.PeriodSlot) {
	t.Helper()
	require.Len(t, got, len(want))
	for i, w := range want {
		assert.Equal(t, i+1, got[i].Number)
		assert.Equal(t, w.start, got[i].Start.String(), "start of period %d", i+1)
		assert.Equal(t, w.end, got[i].End.String(), "end of period %d", i+1)
	}
}

func TestGeneratePeriods(t *testing.T) {
	s := DefaultSettings()
	periods := GeneratePeriods(s)
	require.Len(t, periods, s.TotalPeriods)

	assert.Equal(t, clk("08:00"), periods[0].Start)
	for i := 0; i+1 < len(periods); i++ {
		assert.Equal(t, s.PeriodDuration, periods[i].Duration())
		gap := s.BreakDuration
		if periods[i].Number == s.LunchAfter {
			gap = s.LunchDuration
		}
		assert.Equal(t, periods[i].End.Add(gap), periods[i+1].Start, "after period %d", periods[i].Number)
	}

	assert.False(t, periods[3].AfterLunch)
	assert.True(t, periods[4].AfterLunch)
	assert.Equal(t, clk("13:30"), periods[4].Start)

	assert.Equal(t, model.Morning, periods[0].Segment)
	assert.Equal(t, model.Afternoon, periods[4].Segment)
	assert.Equal(t, model.Afternoon, periods[8].Segment)
	assert.Equal(t, model.Evening, periods[9].Segment)
}

func TestGeneratePeriodsWithoutLunch(t *testing.T) {
	periods := GeneratePeriods(Settings{
		TotalPeriods:   3,
		FirstStart:     clk("09:00"),
		PeriodDuration: 50 * time.Minute,
		BreakDuration:  5 * time.Minute,
	})
	assertSpans(t, []span{{"09:00", "09:50"}, {"09:55", "10:45"}, {"10:50", "11:40"}}, periods)
	for _, p := range periods {
		assert.False(t, p.AfterLunch)
	}
	assert.Nil(t, GeneratePeriods(Settings{}))
}

func TestGeneratePeriodsFromCourses(t *testing.T) {
	events := []model.RawEvent{
		event("Evening", "19:00", "20:35", ""),
		event("Math", "08:00", "08:45", ""),
		event("Math dup", "08:02", "08:44", ""),
		event("Physics", "08:55", "09:40", ""),
		event("Chem", "10:00", "11:35", ""),
		event("Bio", "14:00", "15:35", ""),
		event("Broken", "12:00", "12:00", ""),
	}
	periods := GeneratePeriodsFromCourses(events)
	assertSpans(t, []span{
		{"08:00", "09:40"},
		{"10:00", "11:35"},
		{"14:00", "15:35"},
		{"19:00", "20:35"},
	}, periods)

	assert.False(t, periods[1].AfterLunch)
	assert.True(t, periods[2].AfterLunch)
	assert.True(t, periods[3].AfterLunch)
	assert.Equal(t, model.Evening, periods[3].Segment)

	assert.Nil(t, GeneratePeriodsFromCourses(nil))
}

func TestGeneratePeriodsFromDescriptions(t *testing.T) {
	events := []model.RawEvent{
		event("Math", "08:00", "09:40", "第1-2节"),
		event("Math", "08:00", "09:40", "第1-2节"),
		event("Math", "08:00", "09:40", "第1-2节"),
		event("Noisy", "08:05", "09:40", "第1-2节"),
		event("Chem", "10:00", "11:40", "第3-4节"),
		event("Chem", "10:00", "11:40", "第3-4节"),
		event("Bio", "14:00", "15:40", "第5-6节"),
		event("PE", "15:50", "16:35", "第7节"),
		event("Covered", "08:00", "09:40", ""),
		event("Lunch talk", "12:00", "12:30", ""),
		event("Night class", "18:30", "20:20", ""),
	}
	periods := GeneratePeriodsFromDescriptions(events)
	assertSpans(t, []span{
		{"08:00", "08:45"},
		{"08:55", "09:40"},
		{"10:00", "10:45"},
		{"10:55", "11:40"},
		{"14:00", "14:45"},
		{"14:55", "15:40"},
		{"15:50", "16:35"},
		{"18:30", "19:25"},
		{"19:25", "20:20"},
	}, periods)

	for i, p := range periods {
		assert.Equal(t, i >= 4, p.AfterLunch, "period %d", p.Number)
	}
	assert.Equal(t, model.Evening, periods[7].Segment)
	assert.True(t, ValidatePeriods(periods).Valid)
}

func TestGeneratePeriodsFromDescriptionsFillsMissingNumbers(t *testing.T) {
	periods := GeneratePeriodsFromDescriptions([]model.RawEvent{
		event("A", "08:00", "08:45", "第1节"),
		event("B", "09:50", "10:35", "第3节"),
	})
	assertSpans(t, []span{{"08:00", "08:45"}, {"08:55", "09:40"}, {"09:50", "10:35"}}, periods)

	periods = GeneratePeriodsFromDescriptions([]model.RawEvent{
		event("A", "08:55", "09:40", "第2节"),
	})
	assertSpans(t, []span{{"08:00", "08:45"}, {"08:55", "09:40"}}, periods)
}

func TestGeneratePeriodsFromDescriptionsFallsBack(t *testing.T) {
	events := []model.RawEvent{
		event("A", "08:00", "09:40", ""),
		event("B", "14:00", "15:40", "room 101"),
	}
	assert.Equal(t, GeneratePeriodsFromCourses(events), GeneratePeriodsFromDescriptions(events))
}

func TestBreaks(t *testing.T) {
	got := Breaks(GeneratePeriods(DefaultSettings()))
	assert.Equal(t, []model.BreakSlot{
		{Kind: model.BreakLunch, AfterPeriod: 4},
		{Kind: model.BreakDinner, AfterPeriod: 9},
	}, got)
}

func TestGeneratePeriodsFromDescriptionsClampsEveningOverlap(t *testing.T) {
	events := []model.RawEvent{
		event("Evening lab", "18:00", "19:40", "第1-2节"),
		event("Late seminar", "19:30", "21:20", ""),
	}
	periods := GeneratePeriodsFromDescriptions(events)
	assertSpans(t, []span{
		{"18:00", "18:45"},
		{"18:55", "19:40"},
		{"19:40", "20:30"},
		{"20:30", "21:20"},
	}, periods)
	assert.True(t, ValidatePeriods(periods).Valid)

	// Ends before the last period does: nothing is left to append.
	periods = GeneratePeriodsFromDescriptions([]model.RawEvent{
		event("Evening lab", "18:00", "19:40", "第1-2节"),
		event("Late lecture", "21:00", "21:45", "第3节"),
		event("Workshop", "18:20", "20:10", ""),
	})
	require.Len(t, periods, 3)
	assert.True(t, ValidatePeriods(periods).Valid)
}
