// Package refresh runs the import pipeline (sources → calendar events →
// timetable) and keeps the latest result for the HTTP API.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"time"

	"timetable/internal/config"
	"timetable/internal/course"
	"timetable/internal/grid"
	"timetable/internal/ics"
	appLog "timetable/internal/log"
	"timetable/internal/model"
)

// Snapshot is one completed import together with the settings needed to
// render it.
type Snapshot struct {
	Result course.ImportResult

	SemesterID    string
	SemesterStart time.Time
	Metrics       grid.Metrics
	BaseColor     color.NRGBA

	Sources   int
	FromCache int
	Errors    []string
	UpdatedAt time.Time
}

// Pipeline imports every configured source in one pass.
type Pipeline struct {
	cfg     *config.Config
	fetcher *ics.Fetcher
	now     func() time.Time
}

// NewPipeline creates a Pipeline reading sources through a disk-cached
// fetcher rooted at cfg.CacheDir.
func NewPipeline(cfg *config.Config) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		fetcher: ics.NewFetcher(cfg.CacheDir),
		now:     time.Now,
	}
}

// Run loads, parses and converts all sources. A failing source is logged and
// reported in Snapshot.Errors; Run fails only when configuration is unusable
// or no source could be read at all.
func (p *Pipeline) Run(ctx context.Context) (*Snapshot, error) {
	opts, err := p.cfg.CourseOptions()
	if err != nil {
		return nil, err
	}
	loc, err := p.cfg.Location()
	if err != nil {
		return nil, err
	}
	end, err := p.cfg.SemesterEnd()
	if err != nil {
		return nil, err
	}

	sources := p.cfg.ICSSources()
	loaded, loadErrs := p.fetcher.LoadAll(ctx, sources)
	if len(sources) > 0 && len(loaded) == 0 {
		return nil, fmt.Errorf("refresh: no source could be loaded: %w", errors.Join(loadErrs...))
	}

	snap := &Snapshot{
		SemesterID:    opts.SemesterID,
		SemesterStart: opts.SemesterStart,
		Metrics:       p.cfg.GridMetrics(),
		BaseColor:     opts.BaseColor,
		Sources:       len(sources),
	}
	for _, e := range loadErrs {
		snap.Errors = append(snap.Errors, e.Error())
	}

	var parsed []ics.ParsedEvent
	for _, res := range loaded {
		if res.FromCache {
			snap.FromCache++
		}
		events, err := ics.ParseICS(res.Source, res.Body)
		if err != nil {
			appLog.Error("refresh: parse failed for source", err, "id", res.Source.ID)
			snap.Errors = append(snap.Errors, err.Error())
			continue
		}
		parsed = append(parsed, events...)
	}

	if p.cfg.ExpandRecurrences {
		flat, err := ics.Flatten(parsed, ics.FlattenConfig{
			RangeStart: opts.SemesterStart,
			RangeEnd:   end,
		})
		if err != nil {
			return nil, fmt.Errorf("refresh: flatten: %w", err)
		}
		parsed = flat.Events
	}

	raw := ics.ToRawEvents(parsed, ics.ConvertConfig{Location: loc, Horizon: end})
	snap.Result = course.Import(raw, opts, nil)
	snap.UpdatedAt = p.now()
	return snap, nil
}

// Events returns the raw events of all sources without converting them.
// Used by the CLI to dump what the converter would see.
func (p *Pipeline) Events(ctx context.Context) ([]model.RawEvent, error) {
	loc, err := p.cfg.Location()
	if err != nil {
		return nil, err
	}
	end, err := p.cfg.SemesterEnd()
	if err != nil {
		return nil, err
	}
	loaded, errs := p.fetcher.LoadAll(ctx, p.cfg.ICSSources())
	if len(loaded) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	var parsed []ics.ParsedEvent
	for _, res := range loaded {
		events, err := ics.ParseICS(res.Source, res.Body)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, events...)
	}
	return ics.ToRawEvents(parsed, ics.ConvertConfig{Location: loc, Horizon: end}), nil
}
