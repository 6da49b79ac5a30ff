/*
scheduler.go - Interval-driven payroll sync

PURPOSE:
  Runs a batch at a fixed interval while the status server is up, so the
  server can replace the external cron entry.

DESIGN:
  - Runs a background goroutine with configurable interval
  - Runs once immediately on start
  - Shares the Runner guard with POST /api/runs; a tick that finds a run
    in progress is skipped, not queued

CONFIGURATION:
  - Interval: How often to run (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewSyncScheduler(runner, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - runner.go: Guarded run + publish
  - handlers.go: TriggerRun endpoint (manual run)
*/
package api

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/warp/payroll-sync/payroll"
)

// SyncScheduler runs payroll syncs on a ticker.
type SyncScheduler struct {
	Trigger  Trigger
	Interval time.Duration
	Enabled  bool

	logger *zap.Logger
	ticker *time.Ticker
	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	// next is the UnixNano of the coming tick, zero while stopped.
	next atomic.Int64
}

// NewSyncScheduler creates a new scheduler.
func NewSyncScheduler(trigger Trigger, logger *zap.Logger) *SyncScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncScheduler{
		Trigger:  trigger,
		Interval: time.Hour,
		Enabled:  true,
		logger:   logger.Named("scheduler"),
	}
}

// Start begins the scheduler. Starting twice is a no-op.
func (s *SyncScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.logger.Info("scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.next.Store(time.Now().Add(s.Interval).UnixNano())
	s.stop = make(chan struct{})
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(1)

	go s.run()

	s.logger.Info("scheduler started", zap.Duration("interval", s.Interval))
}

// Stop cancels an in-flight run and waits for the goroutine to exit.
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	s.cancel()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.next.Store(0)
	s.logger.Info("scheduler stopped")
}

func (s *SyncScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.runOnce(s.ctx)

	for {
		select {
		case tick := <-s.ticker.C:
			s.next.Store(tick.Add(s.Interval).UnixNano())
			s.runOnce(s.ctx)
		case <-s.stop:
			return
		}
	}
}

func (s *SyncScheduler) runOnce(ctx context.Context) {
	summary, err := s.Trigger.Trigger(ctx)
	switch {
	case errors.Is(err, payroll.ErrRunInProgress):
		s.logger.Info("run already in progress, skipping tick")
	case err != nil && summary == nil:
		s.logger.Error("scheduled run did not start", zap.Error(err))
	case err != nil:
		s.logger.Error("scheduled run failed", zap.String("run_id", summary.RunID), zap.Error(err))
	}
}

// RunNow triggers an immediate run on the caller's goroutine.
func (s *SyncScheduler) RunNow(ctx context.Context) {
	s.runOnce(ctx)
}

// NextRunTime returns when the next tick is due, or the zero time when the
// scheduler is not running.
func (s *SyncScheduler) NextRunTime() time.Time {
	n := s.next.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
