// Package scheduler serializes scrape runs and drives the periodic loop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
	"github.com/JakeFAU/catalog-scraper/internal/metrics"
	"github.com/JakeFAU/catalog-scraper/internal/notify"
)

// State reports whether a run is active.
type State string

// Scheduler states.
const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Fetcher collects every record of one scrape.
type Fetcher interface {
	FetchAll(ctx context.Context, runID string) ([]catalog.ProductRecord, error)
}

// Reconciler applies a scrape's records to the store.
type Reconciler interface {
	Reconcile(ctx context.Context, recs []catalog.ProductRecord) (int, error)
}

// Scheduler runs at most one scrape at a time. A trigger that arrives while
// a run is active is rejected with catalog.ErrRunInProgress.
type Scheduler struct {
	fetcher     Fetcher
	reconciler  Reconciler
	broadcaster catalog.Broadcaster
	ids         catalog.IDGenerator
	clock       catalog.Clock
	logger      *zap.Logger

	running atomic.Bool

	mu   sync.Mutex
	idle chan struct{} // closed when the active run ends; nil when idle
}

// New wires a Scheduler.
func New(
	fetcher Fetcher,
	reconciler Reconciler,
	broadcaster catalog.Broadcaster,
	ids catalog.IDGenerator,
	clock catalog.Clock,
	logger *zap.Logger,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		fetcher:     fetcher,
		reconciler:  reconciler,
		broadcaster: broadcaster,
		ids:         ids,
		clock:       clock,
		logger:      logger.Named("scheduler"),
	}
}

// State returns the current run state.
func (s *Scheduler) State() State {
	if s.running.Load() {
		return StateRunning
	}
	return StateIdle
}

// RunOnce fetches and reconciles the whole catalog and broadcasts exactly one
// outcome event. It returns the number of records processed. The run lock is
// released before the outcome is broadcast.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	done, ok := s.acquire()
	if !ok {
		return 0, catalog.ErrRunInProgress
	}

	start := s.clock.Now()
	runID, n, err := func() (string, int, error) {
		defer s.markIdle(done)
		return s.run(ctx)
	}()
	return n, s.finish(ctx, runID, start, n, err)
}

func (s *Scheduler) run(ctx context.Context) (string, int, error) {
	runID, err := s.ids.NewID()
	if err != nil {
		return "", 0, fmt.Errorf("generate run id: %w", err)
	}
	s.logger.Info("scrape run started", zap.String("run_id", runID))

	recs, err := s.fetcher.FetchAll(ctx, runID)
	if err != nil {
		return runID, 0, fmt.Errorf("fetch catalog: %w", err)
	}
	n, err := s.reconciler.Reconcile(ctx, recs)
	if err != nil {
		return runID, 0, err
	}
	return runID, n, nil
}

func (s *Scheduler) acquire() (chan struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idle != nil {
		return nil, false
	}
	s.idle = make(chan struct{})
	s.running.Store(true)
	return s.idle, true
}

func (s *Scheduler) markIdle(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idle = nil
	s.running.Store(false)
	close(done)
}

// Wait blocks until no run is active or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.idle
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for active run: %w", ctx.Err())
	}
}

func (s *Scheduler) finish(ctx context.Context, runID string, start time.Time, n int, runErr error) error {
	dur := s.clock.Now().Sub(start)
	evt := notify.Event{RunID: runID, TS: s.clock.Now()}
	logger := s.logger.With(zap.String("run_id", runID), zap.Duration("duration", dur))
	if runErr != nil {
		evt.Kind = notify.KindScrapeFailed
		evt.Error = runErr.Error()
		metrics.ObserveScrapeRun("error", 0, dur)
		logger.Error("scrape run failed", zap.Error(runErr))
	} else {
		evt.Kind = notify.KindScrapeCompleted
		evt.Count = &n
		metrics.ObserveScrapeRun("ok", n, dur)
		logger.Info("scrape run completed", zap.Int("records", n))
	}
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(context.WithoutCancel(ctx), evt.Encode())
	}
	return runErr
}

// Start waits interval, runs once, and repeats until ctx is done. Failed runs
// are logged and never stop the loop.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %s", interval)
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		s.tick(ctx)
		timer.Reset(interval)
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	n, err := s.RunOnce(ctx)
	switch {
	case errors.Is(err, catalog.ErrRunInProgress):
		s.logger.Info("periodic run skipped; a run is already in progress")
	case err != nil:
		// Already logged and broadcast by RunOnce.
	default:
		s.logger.Debug("periodic run finished", zap.Int("records", n))
	}
}
