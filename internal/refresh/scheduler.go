package refresh

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"

	appLog "timetable/internal/log"
)

// Runner produces a snapshot; *Pipeline is the production implementation.
type Runner interface {
	Run(ctx context.Context) (*Snapshot, error)
}

// Store holds the latest successful snapshot.
type Store struct {
	mu   sync.RWMutex
	snap *Snapshot
}

// Latest returns the current snapshot, if any import has succeeded yet.
func (s *Store) Latest() (*Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, s.snap != nil
}

// Set replaces the current snapshot.
func (s *Store) Set(snap *Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

// Refresher runs a Runner on demand or on a cron schedule and publishes the
// result to a Store. A failed run keeps the previous snapshot.
type Refresher struct {
	runner Runner
	store  *Store

	runMu sync.Mutex
	cron  *cron.Cron
}

// NewRefresher creates a Refresher publishing into store.
func NewRefresher(runner Runner, store *Store) *Refresher {
	return &Refresher{runner: runner, store: store}
}

// Refresh runs one import. Concurrent calls are serialized.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	snap, err := r.runner.Run(ctx)
	if err != nil {
		appLog.Error("refresh failed; keeping previous snapshot", err)
		return err
	}
	r.store.Set(snap)
	appLog.Info("refresh completed",
		"entries", len(snap.Result.Entries),
		"periods", len(snap.Result.Periods),
		"source_errors", len(snap.Errors),
	)
	return nil
}

// Start schedules Refresh with a standard 5-field cron spec (descriptors such
// as "@every 1h" are accepted too). Runs that would overlap are skipped. The
// schedule stops when ctx is cancelled or Stop is called.
func (r *Refresher) Start(ctx context.Context, spec string) error {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(spec, func() {
		_ = r.Refresh(ctx)
	}); err != nil {
		return err
	}
	r.cron = c
	c.Start()
	appLog.Info("refresh scheduled", "cron", spec)

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

// cronLogger routes cron's own messages through appLog. Cron reports every
// wake-up and skipped run at Info, which is Debug noise here.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
