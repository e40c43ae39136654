// Package app builds the archiver's object graph from configuration and runs
// its long-lived components together.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radikoarchive/radiko-archiver/internal/api"
	"github.com/radikoarchive/radiko-archiver/internal/archiver"
	"github.com/radikoarchive/radiko-archiver/internal/capture"
	"github.com/radikoarchive/radiko-archiver/internal/catalog"
	"github.com/radikoarchive/radiko-archiver/internal/clock/system"
	"github.com/radikoarchive/radiko-archiver/internal/config"
	"github.com/radikoarchive/radiko-archiver/internal/dispatcher"
	collyfetcher "github.com/radikoarchive/radiko-archiver/internal/fetcher/colly"
	"github.com/radikoarchive/radiko-archiver/internal/id/uuid"
	"github.com/radikoarchive/radiko-archiver/internal/policy/ratelimit"
	memorypublisher "github.com/radikoarchive/radiko-archiver/internal/publisher/memory"
	pubsubpublisher "github.com/radikoarchive/radiko-archiver/internal/publisher/pubsub"
	queuememory "github.com/radikoarchive/radiko-archiver/internal/queue/memory"
	"github.com/radikoarchive/radiko-archiver/internal/radiko"
	"github.com/radikoarchive/radiko-archiver/internal/scheduler"
	"github.com/radikoarchive/radiko-archiver/internal/storage/gcs"
	"github.com/radikoarchive/radiko-archiver/internal/storage/local"
	memorystore "github.com/radikoarchive/radiko-archiver/internal/storage/memory"
	"github.com/radikoarchive/radiko-archiver/internal/storage/postgres"
	"github.com/radikoarchive/radiko-archiver/internal/synchronizer"
	"github.com/radikoarchive/radiko-archiver/internal/telemetry"
)

const (
	defaultTopic    = "archives"
	shutdownTimeout = 10 * time.Second
)

// App holds the long-lived services of one archiver process.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store    catalog.Store
	clock    catalog.Clock
	recent   *memorypublisher.Publisher
	syncer   *synchronizer.Synchronizer
	dispatch *dispatcher.Dispatcher
	sched    *scheduler.Scheduler
	server   *http.Server

	closers []func() error
}

// OpenStore returns the configured catalog store with its schema applied.
// The returned close function releases it.
func OpenStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (catalog.Store, func(), error) {
	switch cfg.DB.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory catalog store; state is lost on exit")
		return memorystore.NewCatalogStore(), func() {}, nil
	case config.DriverPostgres:
		store, err := postgres.NewCatalogStore(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("migrate catalog schema: %w", err)
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown db driver %q", cfg.DB.Driver)
	}
}

// New builds every component described by cfg. Close must be called to
// release the resources it opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}

	store, closeStore, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open catalog store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, func() error { closeStore(); return nil })

	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: cfg.Tracing.ServiceName,
		ProjectID:   cfg.Tracing.ProjectID,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return tp.Shutdown(shutdownCtx)
	})

	endpoints, err := radiko.NewEndpoints(cfg.Radiko.BaseURL)
	if err != nil {
		a.Close()
		return nil, err
	}
	clock := system.New()
	a.clock = clock
	ids := uuid.New()
	fetcher := ratelimit.NewFetcher(collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.HTTPTimeout(),
	}), ratelimit.New(ratelimit.Config{RPS: cfg.HTTP.RequestsPerSecond}))

	a.syncer = synchronizer.New(store, fetcher, endpoints, cfg.Radiko.AreaID, ids, logger)

	auth := radiko.NewAuthenticator(endpoints, fetcher, clock, logger)
	capturer := capture.New(capture.Config{
		FFmpegPath: cfg.Archiver.FFmpegPath,
		OutputDir:  cfg.Archiver.OutputDir,
		Grace:      cfg.Archiver.TimeToForceTermination,
	}, logger)

	opts, err := a.sinks(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	opts = append(opts, archiver.WithIDGenerator(ids))
	topic := cfg.PubSub.TopicName
	if topic == "" {
		topic = defaultTopic
	}
	arch := archiver.New(store, radiko.NewPlaylistResolver(endpoints, auth), capturer, archiver.Config{
		StopIfFileExists: cfg.Archiver.StopIfFileExists,
		ObjectPrefix:     cfg.Storage.Prefix,
		Topic:            topic,
	}, logger, opts...)

	a.dispatch = dispatcher.New(queuememory.NewQueue(0), arch, dispatcher.Config{
		Concurrency: cfg.Archiver.Concurrency,
		Fatal:       IsFatal,
	}, logger)

	a.sched = scheduler.New(a.syncer, store, a.dispatch, clock, scheduler.Config{
		Keywords: cfg.Archiver.Keywords,
		Interval: cfg.Archiver.Interval,
	}, logger)

	if cfg.Server.Port > 0 {
		srv := api.NewServer(store, a.recent, api.Config{APIKey: cfg.Server.APIKey}, logger)
		a.server = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return a, nil
}

// sinks opens the configured archive blob store and publishers.
func (a *App) sinks(ctx context.Context) ([]archiver.Option, error) {
	a.recent = memorypublisher.New(memorypublisher.DefaultCapacity)
	opts := []archiver.Option{archiver.WithPublisher(a.recent)}

	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		blobs, err := gcs.Open(ctx, gcs.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("open gcs bucket: %w", err)
		}
		a.closers = append(a.closers, blobs.Close)
		opts = append(opts, archiver.WithBlobStore(blobs))
	case config.BackendLocal:
		blobs, err := local.New(local.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("open local archive store: %w", err)
		}
		opts = append(opts, archiver.WithBlobStore(blobs))
	}

	if a.cfg.PubSub.ProjectID != "" {
		pub, err := pubsubpublisher.Open(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("open pubsub publisher: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		opts = append(opts, archiver.WithPublisher(pub))
	}
	return opts, nil
}

// IsFatal reports whether an archive error must stop the whole process.
func IsFatal(err error) bool {
	return errors.Is(err, archiver.ErrStopOnExisting)
}

// Store exposes the catalog store.
func (a *App) Store() catalog.Store {
	return a.store
}

// Run loads the station list if needed and then runs the worker pool, the
// scheduler, and the ops server until ctx is canceled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	if err := a.syncer.EnsureStations(ctx); err != nil {
		return fmt.Errorf("load stations: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.dispatch.Run(gctx)
	})
	g.Go(func() error {
		return a.sched.Run(gctx)
	})
	if a.server != nil {
		g.Go(func() error {
			a.logger.Info("ops server started", zap.String("addr", a.server.Addr))
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("ops server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("ops server shutdown failed", zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}

// SyncOnce loads stations if needed, synchronizes the retention window, and
// prunes expired programs, without starting the scheduler or workers.
func (a *App) SyncOnce(ctx context.Context) error {
	if err := a.syncer.EnsureStations(ctx); err != nil {
		return fmt.Errorf("load stations: %w", err)
	}
	now := a.clock.Now()
	syncErr := a.syncer.Sync(ctx, now)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.Join(syncErr, a.syncer.Prune(ctx, now))
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}

// Recover re-marks a program ARCHIVABLE and returns the status it replaced.
func Recover(ctx context.Context, store catalog.Store, id int64) (catalog.Status, error) {
	from, err := store.Transition(ctx, id, catalog.StatusArchivable)
	if err != nil {
		return 0, fmt.Errorf("recover program %d: %w", id, err)
	}
	return from, nil
}
