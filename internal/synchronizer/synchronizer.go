// Package synchronizer mirrors the upstream program listing into the catalog
// store and prunes days that fell out of the retention window.
package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/radikoarchive/radiko-archiver/internal/broadcast"
	"github.com/radikoarchive/radiko-archiver/internal/catalog"
	"github.com/radikoarchive/radiko-archiver/internal/listing"
	"github.com/radikoarchive/radiko-archiver/internal/metrics"
	"github.com/radikoarchive/radiko-archiver/internal/radiko"
	"github.com/radikoarchive/radiko-archiver/internal/telemetry"
)

// Synchronizer fetches per-day listings for one area.
type Synchronizer struct {
	store     catalog.Store
	fetcher   catalog.Fetcher
	endpoints radiko.Endpoints
	areaID    string
	ids       catalog.IDGenerator
	logger    *zap.Logger
}

// New wires a Synchronizer. ids may be nil.
func New(
	store catalog.Store,
	fetcher catalog.Fetcher,
	endpoints radiko.Endpoints,
	areaID string,
	ids catalog.IDGenerator,
	logger *zap.Logger,
) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Synchronizer{
		store:     store,
		fetcher:   fetcher,
		endpoints: endpoints,
		areaID:    areaID,
		ids:       ids,
		logger:    logger.Named("synchronizer"),
	}
}

// EnsureStations loads the area's station list when the store has none.
func (s *Synchronizer) EnsureStations(ctx context.Context) error {
	empty, err := s.store.StationsEmpty(ctx)
	if err != nil {
		return err
	}
	if !empty {
		return nil
	}
	resp, err := s.fetcher.Fetch(ctx, catalog.Request{URL: s.endpoints.StationList(s.areaID)})
	if err != nil {
		return fmt.Errorf("fetch station list: %w", err)
	}
	entries, err := listing.ParseStations(resp.Body)
	if err != nil {
		return err
	}
	stations, rejected := listing.ToStations(entries)
	for _, r := range rejected {
		s.logger.Warn("station dropped", zap.Error(r))
	}
	if err := s.store.SaveStations(ctx, stations); err != nil {
		return fmt.Errorf("save stations: %w", err)
	}
	s.logger.Info("stations loaded", zap.String("area_id", s.areaID), zap.Int("count", len(stations)))
	return nil
}

// Sync fetches every day of the retention window that has no stored
// programs. A failing day does not stop later days; all failures are
// returned together. Cancellation stops the run immediately.
func (s *Synchronizer) Sync(ctx context.Context, now time.Time) error {
	start := time.Now()
	logger := s.logger.With(zap.String("sync_id", s.runID()))
	var errs []error
	for _, day := range broadcast.Window(now) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.tracedSyncDay(ctx, logger, day); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			metrics.ObserveSyncDay(metrics.DayFailed, 0, 0)
			logger.Error("sync day failed", zap.Stringer("date", day), zap.Error(err))
			errs = append(errs, err)
		}
	}
	metrics.ObserveSync(time.Since(start))
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return nil
}

func (s *Synchronizer) tracedSyncDay(ctx context.Context, logger *zap.Logger, day broadcast.Date) error {
	ctx, span := telemetry.Tracer().Start(ctx, "catalog.sync_day", trace.WithAttributes(
		attribute.String("date", day.String()),
		attribute.String("area_id", s.areaID),
	))
	defer span.End()
	err := s.syncDay(ctx, logger, day)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *Synchronizer) syncDay(ctx context.Context, logger *zap.Logger, day broadcast.Date) error {
	count, err := s.store.CountPrograms(ctx, day)
	if err != nil {
		return err
	}
	if count > 0 {
		metrics.ObserveSyncDay(metrics.DaySkipped, 0, 0)
		logger.Debug("day already stored", zap.Stringer("date", day), zap.Int("programs", count))
		return nil
	}
	resp, err := s.fetcher.Fetch(ctx, catalog.Request{URL: s.endpoints.ProgramListing(day, s.areaID)})
	if err != nil {
		return fmt.Errorf("fetch listing %s: %w", day, err)
	}
	entries, err := listing.ParsePrograms(resp.Body)
	if err != nil {
		return fmt.Errorf("listing %s: %w", day, err)
	}
	converted := listing.ToDay(entries, day, s.areaID)
	for _, r := range converted.Rejected {
		logger.Warn("listing entry dropped", zap.Stringer("date", day), zap.Error(r))
	}
	if err := s.store.SaveDay(ctx, day, converted.Stations, converted.Programs); err != nil {
		return err
	}
	metrics.ObserveSyncDay(metrics.DaySynced, len(converted.Programs), len(converted.Rejected))
	logger.Info("day synced",
		zap.Stringer("date", day),
		zap.Int("programs", len(converted.Programs)),
		zap.Int("rejected", len(converted.Rejected)),
	)
	return nil
}

// Prune deletes programs from days before the oldest fetchable day.
func (s *Synchronizer) Prune(ctx context.Context, now time.Time) error {
	boundary := broadcast.OldestFetchableDate(now)
	deleted, err := s.store.DeleteBefore(ctx, boundary)
	if err != nil {
		return fmt.Errorf("prune: %w", err)
	}
	metrics.ObservePrune(deleted)
	if deleted > 0 {
		s.logger.Info("pruned programs", zap.Stringer("before", boundary), zap.Int64("deleted", deleted))
	}
	return nil
}

func (s *Synchronizer) runID() string {
	if s.ids == nil {
		return ""
	}
	id, err := s.ids.NewID()
	if err != nil {
		s.logger.Warn("generate sync id failed", zap.Error(err))
		return ""
	}
	return id
}
