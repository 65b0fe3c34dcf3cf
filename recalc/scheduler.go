/*
scheduler.go - Unattended sweep scheduler

PURPOSE:
  Periodically recalculates the recent past so punches, leave and
  corrections that arrived late end up in the stored records without an
  operator asking for it.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Each tick sweeps [today - LookbackDays, today - 1] in the engine location
  - Today is never swept; the day is still in progress
  - When a Locker is configured only one replica sweeps per tick

CONFIGURATION:
  - Interval: How often to sweep (default: 1 hour)
  - LookbackDays: How many finished days to revisit (default: 2)
  - Enabled: Whether the scheduler is active (default: true)

USAGE:
  scheduler := recalc.NewScheduler(driver, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - sweep.go: Driver.Sweep
  - lock/redis.go: Redis implementation of Locker
*/
package recalc

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/attendance-engine/attendance"
)

// Locker grants exclusive ownership of key for at most ttl. ok is false when
// another holder owns the key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

const sweepLockKey = "attendance:sweep"

type Scheduler struct {
	Driver       *Driver
	Locker       Locker
	Logger       *zap.Logger
	Interval     time.Duration
	LookbackDays int
	LockTTL      time.Duration
	Enabled      bool

	ticker *time.Ticker
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewScheduler(driver *Driver, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		Driver:       driver,
		Logger:       logger.Named("scheduler"),
		Interval:     time.Hour,
		LookbackDays: 2,
		LockTTL:      30 * time.Minute,
		Enabled:      true,
	}
}

// Start begins the scheduler. The first sweep runs immediately.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stop = make(chan struct{})
	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)

	go s.run(ctx)

	s.Logger.Info("started", zap.Duration("interval", s.Interval), zap.Int("lookback_days", s.LookbackDays))
}

// Stop cancels a sweep in progress and waits for it to wind down.
func (s *Scheduler) Stop() {
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
	s.Logger.Info("stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	s.sweep(ctx)

	for {
		select {
		case <-s.ticker.C:
			s.sweep(ctx)
		case <-s.stop:
			return
		}
	}
}

// RunNow triggers an immediate sweep and returns its run. ran is false when
// another replica held the lock.
func (s *Scheduler) RunNow(ctx context.Context) (run attendance.SweepRun, ran bool, err error) {
	return s.sweepOnce(ctx)
}

// LookbackRange is the range a sweep starting at now covers.
func (s *Scheduler) LookbackRange(now time.Time) attendance.DateRange {
	today := attendance.DateIn(now, s.Driver.Config.Location)
	days := s.LookbackDays
	if days < 1 {
		days = 1
	}
	return attendance.DateRange{From: today.AddDays(-days), To: today.AddDays(-1)}
}

// NextRunTime returns when the next scheduled sweep will occur.
func (s *Scheduler) NextRunTime() time.Time {
	return s.Driver.Now().Add(s.Interval)
}

func (s *Scheduler) sweep(ctx context.Context) {
	if _, _, err := s.sweepOnce(ctx); err != nil && ctx.Err() == nil {
		s.Logger.Error("scheduled sweep failed", zap.Error(err))
	}
}

func (s *Scheduler) sweepOnce(ctx context.Context) (attendance.SweepRun, bool, error) {
	if s.Locker != nil {
		release, ok, err := s.Locker.TryLock(ctx, sweepLockKey, s.LockTTL)
		if err != nil {
			return attendance.SweepRun{}, false, err
		}
		if !ok {
			s.Logger.Debug("sweep lock held elsewhere, skipping")
			return attendance.SweepRun{}, false, nil
		}
		defer release()
	}

	run, err := s.Driver.Sweep(ctx, SweepRequest{
		Range:   s.LookbackRange(s.Driver.Now()),
		Trigger: attendance.TriggerScheduled,
	})
	return run, true, err
}
