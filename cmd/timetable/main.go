package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"timetable/internal/config"
	appLog "timetable/internal/log"
	"timetable/internal/refresh"
	"timetable/internal/web"
)

type flagConfig struct {
	configPath  string
	listen      string
	once        bool
	dumpEvents  bool
	savePeriods bool
}

func main() {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		appLog.Error("failed to read .env", err)
	}

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if lvl, ok := appLog.ParseLevel(conf.LogLevel); ok {
		appLog.SetLevel(lvl)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"semester", conf.Semester.ID,
		"semester_start", conf.Semester.StartDate,
		"strategy", conf.Strategy,
		"refresh", conf.RefreshCron,
		"source_count", len(conf.Sources),
		"once", flags.once,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pipeline := refresh.NewPipeline(conf)

	switch {
	case flags.dumpEvents:
		events, err := pipeline.Events(ctx)
		if err != nil {
			appLog.Error("failed to load events", err)
			os.Exit(1)
		}
		writeStdout(events)
	case flags.once:
		if err := runOnce(ctx, pipeline, conf, flags); err != nil {
			appLog.Error("import failed", err)
			os.Exit(1)
		}
	default:
		if err := serve(ctx, pipeline, conf); err != nil {
			appLog.Error("server stopped", err)
			os.Exit(1)
		}
	}
	appLog.Info("timetable exiting")
}

func runOnce(ctx context.Context, pipeline *refresh.Pipeline, conf *config.Config, flags flagConfig) error {
	snap, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}
	res := snap.Result
	writeStdout(map[string]any{
		"semester_id": snap.SemesterID,
		"entries":     res.Entries,
		"periods":     res.Periods,
		"breaks":      res.Breaks,
		"validation":  res.Validation,
		"rows":        res.Rows,
		"errors":      snap.Errors,
	})

	if flags.savePeriods {
		if !res.Validation.Valid {
			return errors.New("refusing to save an invalid period table: " + res.Validation.Message)
		}
		conf.SetPeriodTable(res.Periods)
		conf.Strategy = "existing"
		if err := conf.Save(flags.configPath); err != nil {
			return err
		}
		appLog.Info("period table saved", "config_path", flags.configPath, "periods", len(res.Periods))
	}
	return nil
}

func serve(ctx context.Context, pipeline *refresh.Pipeline, conf *config.Config) error {
	store := &refresh.Store{}
	refresher := refresh.NewRefresher(pipeline, store)

	// The API answers 503 until an import succeeds, so a failing first run
	// is not fatal.
	_ = refresher.Refresh(ctx)

	if conf.RefreshCron != "" {
		if err := refresher.Start(ctx, conf.RefreshCron); err != nil {
			return err
		}
		defer refresher.Stop()
	}

	srv := web.NewServer(conf, store, refresher.Refresh)
	return srv.ListenAndServe(ctx)
}

func writeStdout(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		appLog.Error("failed to write output", err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", envOr("TIMETABLE_CONFIG", "./config.yaml"), "Path to config file (env TIMETABLE_CONFIG)")
	flag.StringVar(&cfg.listen, "listen", os.Getenv("TIMETABLE_LISTEN"), "HTTP listen address (overrides config if set; env TIMETABLE_LISTEN)")
	flag.BoolVar(&cfg.once, "once", false, "Run one import, print the result as JSON and exit")
	flag.BoolVar(&cfg.dumpEvents, "dump-events", false, "Print the calendar events the converter would see and exit")
	flag.BoolVar(&cfg.savePeriods, "save-periods", false, "With -once: store the resulting period table in the config file")

	flag.Parse()

	return cfg
}
