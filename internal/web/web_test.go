package web

import (
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timetable/internal/config"
	"timetable/internal/course"
	"timetable/internal/grid"
	"timetable/internal/model"
	"timetable/internal/period"
	"timetable/internal/refresh"
)

var semesterStart = time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)

func event(name string, day int, start, end string, untilWeek int) model.RawEvent {
	date := semesterStart.AddDate(0, 0, day-1)
	s, e := model.MustClock(start).On(date), model.MustClock(end).On(date)
	until := s.AddDate(0, 0, 7*(untilWeek-1))
	return model.RawEvent{Name: name, Location: "A101", Start: s, End: e, Until: &until}
}

func testStore(t *testing.T) *refresh.Store {
	t.Helper()
	base := color.NRGBA{R: 0x4A, G: 0x90, B: 0xE2, A: 0xFF}
	opts := course.Options{
		SemesterID:      "2025-fall",
		SemesterStart:   semesterStart,
		BaseColor:       base,
		Strategy:        course.UseExistingPeriods,
		ExistingPeriods: period.GeneratePeriods(period.DefaultSettings()),
	}
	events := []model.RawEvent{
		event("Calculus", 1, "08:00", "09:35", 8),
		event("Physics", 3, "14:00", "14:45", 16),
		event("Seminar", 5, "13:10", "13:50", 4),
	}
	res := course.Import(events, opts, nil)
	require.Len(t, res.Entries, 3)

	store := &refresh.Store{}
	store.Set(&refresh.Snapshot{
		Result:        res,
		SemesterID:    opts.SemesterID,
		SemesterStart: semesterStart,
		Metrics:       grid.Metrics{CellHeight: 60, Gap: 4},
		BaseColor:     base,
		UpdatedAt:     semesterStart,
	})
	return store
}

func get(t *testing.T, h http.Handler, target string, out any) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func TestHealth(t *testing.T) {
	srv := NewServer(config.DefaultConfig(), &refresh.Store{}, nil)
	rec := get(t, srv.Handler(), "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestNotImportedYet(t *testing.T) {
	srv := NewServer(config.DefaultConfig(), &refresh.Store{}, nil)
	for _, path := range []string{"/api/timetable", "/api/periods", "/api/grid"} {
		rec := get(t, srv.Handler(), path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestTimetable(t *testing.T) {
	srv := NewServer(config.DefaultConfig(), testStore(t), nil)

	var all timetableResponse
	rec := get(t, srv.Handler(), "/api/timetable", &all)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-fall", all.SemesterID)
	assert.Nil(t, all.Week)
	require.Len(t, all.Entries, 3)
	for _, e := range all.Entries {
		assert.Regexp(t, `^#[0-9A-F]{6}$`, e.ColorHex)
	}

	var week6 timetableResponse
	rec = get(t, srv.Handler(), "/api/timetable?week=6", &week6)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, week6.Week)
	assert.Equal(t, time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC), week6.Week.Start)
	assert.Equal(t, time.Date(2025, 10, 12, 0, 0, 0, 0, time.UTC), week6.Week.End)

	names := make([]string, 0, len(week6.Entries))
	for _, e := range week6.Entries {
		names = append(names, e.Name)
	}
	assert.ElementsMatch(t, []string{"Calculus", "Physics"}, names)

	rec = get(t, srv.Handler(), "/api/timetable?week=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPeriods(t *testing.T) {
	srv := NewServer(config.DefaultConfig(), testStore(t), nil)

	var resp periodsResponse
	rec := get(t, srv.Handler(), "/api/periods", &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Valid)
	assert.False(t, resp.Generated)
	assert.Len(t, resp.Periods, 12)
	assert.Equal(t, settingsDTO{
		TotalPeriods:    12,
		FirstStart:      "08:00",
		DurationMinutes: 45,
		BreakMinutes:    10,
		LunchAfter:      4,
		LunchMinutes:    120,
	}, resp.Settings)
}

func TestGrid(t *testing.T) {
	srv := NewServer(config.DefaultConfig(), testStore(t), nil)

	var resp struct {
		Metrics grid.Metrics      `json:"metrics"`
		Rows    []json.RawMessage `json:"rows"`
		Courses []gridCourse      `json:"courses"`
	}
	rec := get(t, srv.Handler(), "/api/grid", &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, resp.Rows)
	require.Len(t, resp.Courses, 3)

	byName := map[string]gridCourse{}
	for _, c := range resp.Courses {
		byName[c.Name] = c
	}
	// Periods 1-2: offset 0, two cells plus one gap.
	assert.Equal(t, model.GridPosition{Offset: 0, Height: 124}, byName["Calculus"].Position)
	// 13:10-13:50 sits inside the lunch break and matches nothing.
	assert.True(t, byName["Seminar"].IsCustomTime)
	assert.Equal(t, model.GridPosition{Offset: 0, Height: 60}, byName["Seminar"].Position)
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	h := NewServer(cfg, testStore(t), nil).Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/health", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/api/periods", nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/periods", nil)
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefresh(t *testing.T) {
	calls := 0
	fail := false
	srv := NewServer(config.DefaultConfig(), testStore(t), func(context.Context) error {
		calls++
		if fail {
			return errors.New("source down")
		}
		return nil
	})

	post := func() int {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, post())
	fail = true
	assert.Equal(t, http.StatusBadGateway, post())
	assert.Equal(t, 2, calls)

	assert.Equal(t, http.StatusMethodNotAllowed, get(t, srv.Handler(), "/api/refresh", nil).Code)

	noRefresh := NewServer(config.DefaultConfig(), testStore(t), nil)
	rec := httptest.NewRecorder()
	noRefresh.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
