// Package scheduler drives the archive loop: sync the catalog once per
// broadcast day, prune expired days, match keywords, and feed the pool.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radikoarchive/radiko-archiver/internal/broadcast"
	"github.com/radikoarchive/radiko-archiver/internal/catalog"
	"github.com/radikoarchive/radiko-archiver/internal/dispatcher"
)

// DefaultInterval is the pause between loop iterations.
const DefaultInterval = 180 * time.Second

// Synchronizer keeps the catalog in step with upstream.
type Synchronizer interface {
	Sync(ctx context.Context, now time.Time) error
	Prune(ctx context.Context, now time.Time) error
}

// Matcher finds programs to archive.
type Matcher interface {
	FindArchivable(ctx context.Context, keywords []string) ([]catalog.Program, error)
}

// Submitter hands programs to the worker pool.
type Submitter interface {
	Submit(ctx context.Context, p catalog.Program) error
}

// Config controls the loop.
type Config struct {
	Keywords []string
	Interval time.Duration
}

// Scheduler is the long-running control loop.
type Scheduler struct {
	sync      Synchronizer
	matcher   Matcher
	submitter Submitter
	clock     catalog.Clock
	cfg       Config
	logger    *zap.Logger

	mu       sync.RWMutex
	lastSync time.Time
}

// New wires a Scheduler.
func New(
	syncer Synchronizer,
	matcher Matcher,
	submitter Submitter,
	clock catalog.Clock,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		sync:      syncer,
		matcher:   matcher,
		submitter: submitter,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.Named("scheduler"),
	}
}

// Run loops until ctx is canceled or the pool stops, and returns why.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		if err := s.Tick(ctx); err != nil {
			return err
		}
		timer.Reset(s.cfg.Interval)
	}
}

// Tick runs one iteration. It returns only cancellation or a stopped pool;
// sync and store failures are logged and retried on the next iteration.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.clock.Now()
	if s.shouldSync(now) {
		if err := s.syncCatalog(ctx, now); err != nil {
			return err
		}
	} else {
		s.logger.Debug("catalog sync skipped", zap.Stringer("day", broadcast.DayOf(now)))
	}

	programs, err := s.matcher.FindArchivable(ctx, s.cfg.Keywords)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Error("match programs failed", zap.Error(err))
		return nil
	}

	submitted := 0
	for _, p := range programs {
		err := s.submitter.Submit(ctx, p)
		switch {
		case err == nil:
			submitted++
		case errors.Is(err, dispatcher.ErrInFlight):
			continue
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return fmt.Errorf("submit program %d: %w", p.ID, err)
		}
	}
	if len(programs) > 0 {
		s.logger.Info("programs submitted", zap.Int("matched", len(programs)), zap.Int("submitted", submitted))
	}
	return nil
}

func (s *Scheduler) syncCatalog(ctx context.Context, now time.Time) error {
	syncErr := s.sync.Sync(ctx, now)
	if syncErr != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if err := s.sync.Prune(ctx, now); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Error("prune failed", zap.Error(err))
	}
	if syncErr != nil {
		s.logger.Error("sync failed, retrying next iteration", zap.Error(syncErr))
		return nil
	}
	s.mu.Lock()
	s.lastSync = now
	s.mu.Unlock()
	s.logger.Info("catalog synced", zap.Stringer("day", broadcast.DayOf(now)))
	return nil
}

// shouldSync is false only when the last successful sync happened on the
// current broadcast day and now is past the post-rollover grace window.
// Inside the window every tick syncs, so listings published late for the
// day that just completed are picked up.
func (s *Scheduler) shouldSync(now time.Time) bool {
	last := s.LastSync()
	return last.IsZero() || !broadcast.SameDay(last, now) || broadcast.InGraceWindow(now)
}

// LastSync returns the instant of the last successful sync.
func (s *Scheduler) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}
