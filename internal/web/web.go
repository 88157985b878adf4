// Package web serves the latest imported timetable as a read-only JSON API.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"image/color"
	"net/http"
	"strconv"
	"time"

	"timetable/internal/config"
	"timetable/internal/grid"
	appLog "timetable/internal/log"
	"timetable/internal/model"
	"timetable/internal/palette"
	"timetable/internal/refresh"
	"timetable/internal/week"
)

// SnapshotSource yields the latest import; *refresh.Store implements it.
type SnapshotSource interface {
	Latest() (*refresh.Snapshot, bool)
}

// Server provides the HTTP API.
type Server struct {
	cfg     *config.Config
	source  SnapshotSource
	refresh func(context.Context) error
	mux     *http.ServeMux
}

// NewServer constructs a new Server. refreshFn, when non-nil, backs
// POST /api/refresh.
func NewServer(cfg *config.Config, source SnapshotSource, refreshFn func(context.Context) error) *Server {
	s := &Server{
		cfg:     cfg,
		source:  source,
		refresh: refreshFn,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Timetable", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/timetable", s.handleTimetable)
	s.mux.HandleFunc("GET /api/periods", s.handlePeriods)
	s.mux.HandleFunc("GET /api/grid", s.handleGrid)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// snapshot writes 503 and returns false until the first import succeeded.
func (s *Server) snapshot(w http.ResponseWriter) (*refresh.Snapshot, bool) {
	snap, ok := s.source.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "timetable not imported yet")
		return nil, false
	}
	return snap, true
}

// entryDTO is a JSON-friendly view of a ScheduleEntry with its resolved colour.
type entryDTO struct {
	model.ScheduleEntry
	ColorHex string `json:"color_hex"`
}

type weekRange struct {
	Week  int       `json:"week"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type timetableResponse struct {
	SemesterID    string     `json:"semester_id"`
	SemesterStart time.Time  `json:"semester_start"`
	CurrentWeek   int        `json:"current_week"`
	Week          *weekRange `json:"week,omitempty"`
	Entries       []entryDTO `json:"entries"`
	Errors        []string   `json:"errors,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// handleTimetable returns the imported entries.
//
// GET /api/timetable?week=3
//   - week: only entries active in that semester week, plus the week's dates
func (s *Server) handleTimetable(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	calc := week.NewCalculator(snap.SemesterStart)

	wk, filter, err := parseWeek(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := timetableResponse{
		SemesterID:    snap.SemesterID,
		SemesterStart: snap.SemesterStart,
		CurrentWeek:   calc.Week(time.Now().In(snap.SemesterStart.Location())),
		Entries:       []entryDTO{},
		Errors:        snap.Errors,
		UpdatedAt:     snap.UpdatedAt,
	}
	if filter {
		mon, sun := calc.Range(wk)
		resp.Week = &weekRange{Week: wk, Start: mon, End: sun}
	}
	for _, e := range snap.Result.Entries {
		if filter && !e.ActiveInWeek(wk) {
			continue
		}
		resp.Entries = append(resp.Entries, entryDTO{ScheduleEntry: e, ColorHex: hex(palette.Resolve(e.Color, snap.BaseColor))})
	}
	writeJSON(w, http.StatusOK, resp)
}

type settingsDTO struct {
	TotalPeriods    int    `json:"total_periods"`
	FirstStart      string `json:"first_start"`
	DurationMinutes int    `json:"duration_minutes"`
	BreakMinutes    int    `json:"break_minutes"`
	LunchAfter      int    `json:"lunch_after"`
	LunchMinutes    int    `json:"lunch_minutes"`
}

type periodsResponse struct {
	Periods   []model.PeriodSlot `json:"periods"`
	Breaks    []model.BreakSlot  `json:"breaks"`
	Settings  settingsDTO        `json:"settings"`
	Valid     bool               `json:"valid"`
	Message   string             `json:"message,omitempty"`
	Generated bool               `json:"generated"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func (s *Server) handlePeriods(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	res := snap.Result
	st := res.Settings
	writeJSON(w, http.StatusOK, periodsResponse{
		Periods: nonNil(res.Periods),
		Breaks:  nonNil(res.Breaks),
		Settings: settingsDTO{
			TotalPeriods:    st.TotalPeriods,
			FirstStart:      st.FirstStart.String(),
			DurationMinutes: int(st.PeriodDuration / time.Minute),
			BreakMinutes:    int(st.BreakDuration / time.Minute),
			LunchAfter:      st.LunchAfter,
			LunchMinutes:    int(st.LunchDuration / time.Minute),
		},
		Valid:     res.Validation.Valid,
		Message:   res.Validation.Message,
		Generated: s.cfg != nil && s.cfg.Strategy == "auto",
		UpdatedAt: snap.UpdatedAt,
	})
}

type gridCourse struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Location     string             `json:"location"`
	DayOfWeek    int                `json:"day_of_week"`
	IsCustomTime bool               `json:"is_custom_time"`
	ColorHex     string             `json:"color_hex"`
	Position     model.GridPosition `json:"position"`
}

type gridResponse struct {
	Metrics grid.Metrics    `json:"metrics"`
	Rows    []model.GridRow `json:"rows"`
	Courses []gridCourse    `json:"courses"`
}

// handleGrid returns render rows and per-course geometry.
//
// GET /api/grid?week=3
func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	wk, filter, err := parseWeek(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := gridResponse{
		Metrics: snap.Metrics,
		Rows:    nonNil(snap.Result.Rows),
		Courses: []gridCourse{},
	}
	for _, e := range snap.Result.Entries {
		if filter && !e.ActiveInWeek(wk) {
			continue
		}
		resp.Courses = append(resp.Courses, gridCourse{
			ID:           e.ID,
			Name:         e.Name,
			Location:     e.Location,
			DayOfWeek:    e.DayOfWeek,
			IsCustomTime: e.IsCustomTime,
			ColorHex:     hex(palette.Resolve(e.Color, snap.BaseColor)),
			Position:     grid.CalculateCoursePosition(e, snap.Result.Periods, snap.Metrics),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresh == nil {
		writeError(w, http.StatusNotFound, "refresh not available")
		return
	}
	if err := s.refresh(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

// parseWeek reads the optional ?week= filter.
func parseWeek(r *http.Request) (int, bool, error) {
	v := r.URL.Query().Get("week")
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, false, fmt.Errorf("invalid week %q", v)
	}
	return n, true, nil
}

func hex(c color.NRGBA) string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

func nonNil[T any](xs []T) []T {
	if xs == nil {
		return []T{}
	}
	return xs
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
