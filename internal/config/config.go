// Package config holds the YAML configuration: semester, colours, the period
// table and the calendar sources to import.
package config

import (
	"errors"
	"fmt"
	"image/color"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"timetable/internal/course"
	"timetable/internal/grid"
	"timetable/internal/ics"
	"timetable/internal/model"
	"timetable/internal/period"
)

const dateLayout = "2006-01-02"

var validate = validator.New(validator.WithRequiredStructEnabled())

// SourceConfig is one calendar export, either a subscription URL or a local
// file.
type SourceConfig struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url,omitempty" json:"url,omitempty" validate:"omitempty,url"`
	Path string `yaml:"path,omitempty" json:"path,omitempty" validate:"required_without=URL"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username" validate:"required"`
	Password string `yaml:"password" json:"password" validate:"required"`
}

// SemesterConfig identifies the semester entries are imported into.
type SemesterConfig struct {
	ID string `yaml:"id" json:"id" validate:"required"`
	// StartDate is the first day of week 1, "YYYY-MM-DD".
	StartDate string `yaml:"start_date" json:"start_date" validate:"required,datetime=2006-01-02"`
	// Weeks bounds open-ended recurrences and flattening.
	Weeks int `yaml:"weeks" json:"weeks" validate:"gte=1,lte=60"`
}

// PeriodsConfig describes the uniform period table used by the "existing"
// strategy. Slots, when present, replaces the generated table verbatim.
type PeriodsConfig struct {
	Total           int    `yaml:"total" json:"total" validate:"gte=1,lte=20"`
	FirstStart      string `yaml:"first_start" json:"first_start" validate:"required,datetime=15:04"`
	DurationMinutes int    `yaml:"duration_minutes" json:"duration_minutes" validate:"gte=5"`
	BreakMinutes    int    `yaml:"break_minutes" json:"break_minutes" validate:"gte=0"`
	LunchAfter      int    `yaml:"lunch_after" json:"lunch_after" validate:"gte=0,ltefield=Total"`
	LunchMinutes    int    `yaml:"lunch_minutes" json:"lunch_minutes" validate:"gte=0"`

	Slots []model.PeriodSlot `yaml:"slots,omitempty" json:"slots,omitempty"`
}

// GridConfig is the render geometry.
type GridConfig struct {
	CellHeight float64 `yaml:"cell_height" json:"cell_height" validate:"gt=0"`
	Gap        float64 `yaml:"gap" json:"gap" validate:"gte=0"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen" validate:"required"`

	// Timezone is the IANA zone whose wall clock the timetable uses.
	Timezone string `yaml:"timezone" json:"timezone" validate:"required"`

	LogLevel string `yaml:"log_level" json:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// RefreshCron is a cron schedule (e.g. "0 */6 * * *") for re-importing
	// the sources in server mode. Empty disables periodic refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// CacheDir keeps the last body of every URL source.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	Semester SemesterConfig `yaml:"semester" json:"semester"`

	// BaseColor seeds the 12-colour palette, "#RRGGBB".
	BaseColor string `yaml:"base_color" json:"base_color" validate:"required,hexcolor"`

	// Strategy is "existing" (match against Periods) or "auto" (infer the
	// table from the imported events).
	Strategy string `yaml:"strategy" json:"strategy" validate:"oneof=existing auto"`

	Periods PeriodsConfig `yaml:"periods" json:"periods"`
	Grid    GridConfig    `yaml:"grid" json:"grid"`

	// ExpandRecurrences flattens RRULEs into single occurrences before
	// conversion so EXDATE and moved instances show up in week patterns.
	ExpandRecurrences bool `yaml:"expand_recurrences" json:"expand_recurrences"`

	Sources []SourceConfig `yaml:"sources" json:"sources" validate:"dive"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty" validate:"omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	s := period.DefaultSettings()
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "Asia/Shanghai",
		LogLevel:    "info",
		RefreshCron: "0 */6 * * *",
		CacheDir:    "./var/ics-cache",
		Semester: SemesterConfig{
			ID:        "default",
			StartDate: mondayOf(time.Now()).Format(dateLayout),
			Weeks:     20,
		},
		BaseColor: "#4A90E2",
		Strategy:  course.UseExistingPeriods.String(),
		Periods: PeriodsConfig{
			Total:           s.TotalPeriods,
			FirstStart:      s.FirstStart.String(),
			DurationMinutes: int(s.PeriodDuration / time.Minute),
			BreakMinutes:    int(s.BreakDuration / time.Minute),
			LunchAfter:      s.LunchAfter,
			LunchMinutes:    int(s.LunchDuration / time.Minute),
		},
		Grid:    GridConfig{CellHeight: 60, Gap: 4},
		Sources: []SourceConfig{},
	}
}

func mondayOf(t time.Time) time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return d.AddDate(0, 0, 1-model.ISOWeekday(d.Weekday()))
}

// Normalize fills in missing/zero values so that partially-filled configs
// still behave.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.Semester.ID == "" {
		c.Semester.ID = def.Semester.ID
	}
	if c.Semester.StartDate == "" {
		c.Semester.StartDate = def.Semester.StartDate
	}
	if c.Semester.Weeks <= 0 {
		c.Semester.Weeks = def.Semester.Weeks
	}
	if c.BaseColor == "" {
		c.BaseColor = def.BaseColor
	}
	c.Strategy = strings.ToLower(strings.TrimSpace(c.Strategy))
	if c.Strategy == "" {
		c.Strategy = def.Strategy
	}

	p := &c.Periods
	if p.Total <= 0 {
		p.Total = def.Periods.Total
	}
	if p.FirstStart == "" {
		p.FirstStart = def.Periods.FirstStart
	}
	if p.DurationMinutes <= 0 {
		p.DurationMinutes = def.Periods.DurationMinutes
	}
	if p.BreakMinutes < 0 {
		p.BreakMinutes = 0
	}
	if p.LunchAfter < 0 || p.LunchAfter > p.Total {
		p.LunchAfter = 0
	}
	if p.LunchMinutes < 0 {
		p.LunchMinutes = 0
	}

	if c.Grid.CellHeight <= 0 {
		c.Grid.CellHeight = def.Grid.CellHeight
	}
	if c.Grid.Gap < 0 {
		c.Grid.Gap = 0
	}
	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// Validate checks field constraints and the explicit period table.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	if len(c.Periods.Slots) > 0 {
		if v := period.ValidatePeriods(c.Periods.Slots); !v.Valid {
			return fmt.Errorf("config: periods.slots: %s", v.Message)
		}
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SemesterStart is the first day of week 1 at midnight in Timezone.
func (c *Config) SemesterStart() (time.Time, error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.ParseInLocation(dateLayout, c.Semester.StartDate, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: semester.start_date: %w", err)
	}
	return t, nil
}

// SemesterEnd is the exclusive end of the last semester week.
func (c *Config) SemesterEnd() (time.Time, error) {
	start, err := c.SemesterStart()
	if err != nil {
		return time.Time{}, err
	}
	return start.AddDate(0, 0, 7*c.Semester.Weeks), nil
}

// BaseNRGBA parses BaseColor ("#RGB" or "#RRGGBB").
func (c *Config) BaseNRGBA() (color.NRGBA, error) {
	return ParseHexColor(c.BaseColor)
}

// ParseHexColor parses "#RGB" or "#RRGGBB" into an opaque colour.
func ParseHexColor(s string) (color.NRGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.NRGBA{}, fmt.Errorf("config: colour %q: want #RRGGBB", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("config: colour %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xFF}, nil
}

// PeriodSettings converts the uniform description for the generator.
func (c *Config) PeriodSettings() (period.Settings, error) {
	first, err := model.ParseClock(c.Periods.FirstStart)
	if err != nil {
		return period.Settings{}, fmt.Errorf("config: periods.first_start: %w", err)
	}
	return period.Settings{
		TotalPeriods:   c.Periods.Total,
		FirstStart:     first,
		PeriodDuration: time.Duration(c.Periods.DurationMinutes) * time.Minute,
		BreakDuration:  time.Duration(c.Periods.BreakMinutes) * time.Minute,
		LunchAfter:     c.Periods.LunchAfter,
		LunchDuration:  time.Duration(c.Periods.LunchMinutes) * time.Minute,
	}, nil
}

// PeriodTable is the table matched by the "existing" strategy: Slots when
// configured, otherwise generated from the uniform settings.
func (c *Config) PeriodTable() ([]model.PeriodSlot, error) {
	if len(c.Periods.Slots) > 0 {
		return c.Periods.Slots, nil
	}
	s, err := c.PeriodSettings()
	if err != nil {
		return nil, err
	}
	return period.GeneratePeriods(s), nil
}

// SetPeriodTable stores an inferred table so later imports can match
// against it with the "existing" strategy.
func (c *Config) SetPeriodTable(periods []model.PeriodSlot) {
	c.Periods.Slots = periods
	if len(periods) == 0 {
		return
	}
	s := period.ConvertToSettings(periods)
	c.Periods.Total = s.TotalPeriods
	c.Periods.FirstStart = s.FirstStart.String()
	c.Periods.DurationMinutes = int(s.PeriodDuration / time.Minute)
	c.Periods.BreakMinutes = int(s.BreakDuration / time.Minute)
	c.Periods.LunchAfter = s.LunchAfter
	c.Periods.LunchMinutes = int(s.LunchDuration / time.Minute)
}

// GridMetrics returns the render geometry.
func (c *Config) GridMetrics() grid.Metrics {
	return grid.Metrics{CellHeight: c.Grid.CellHeight, Gap: c.Grid.Gap}
}

// CourseOptions assembles the converter options.
func (c *Config) CourseOptions() (course.Options, error) {
	var opts course.Options
	start, err := c.SemesterStart()
	if err != nil {
		return opts, err
	}
	base, err := c.BaseNRGBA()
	if err != nil {
		return opts, err
	}
	strategy, err := course.ParseStrategy(c.Strategy)
	if err != nil {
		return opts, fmt.Errorf("config: %w", err)
	}
	table, err := c.PeriodTable()
	if err != nil {
		return opts, err
	}
	return course.Options{
		SemesterID:      c.Semester.ID,
		SemesterStart:   start,
		BaseColor:       base,
		Strategy:        strategy,
		ExistingPeriods: table,
	}, nil
}

// ICSSources converts the configured sources; the ID falls back to the name,
// then to the path or URL.
func (c *Config) ICSSources() []ics.Source {
	out := make([]ics.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		id := s.ID
		if id == "" {
			switch {
			case s.Name != "":
				id = s.Name
			case s.Path != "":
				id = s.Path
			default:
				id = s.URL
			}
		}
		out = append(out, ics.Source{ID: id, Name: s.Name, URL: s.URL, Path: s.Path})
	}
	return out
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is unmarshalled, normalized and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return &cfg, err
	}
	return &cfg, nil
}

// Save writes cfg atomically (temp file + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".timetable-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
