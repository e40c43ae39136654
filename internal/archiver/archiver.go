// Package archiver runs one archival attempt for a program and drives its
// status through the catalog state machine.
package archiver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/radikoarchive/radiko-archiver/internal/capture"
	"github.com/radikoarchive/radiko-archiver/internal/catalog"
	"github.com/radikoarchive/radiko-archiver/internal/hash/sha256"
	"github.com/radikoarchive/radiko-archiver/internal/metrics"
	"github.com/radikoarchive/radiko-archiver/internal/radiko"
	"github.com/radikoarchive/radiko-archiver/internal/telemetry"
)

// ErrStopOnExisting is returned when the output already exists and the
// configured policy is to stop. The program is left ARCHIVING.
var ErrStopOnExisting = errors.New("archive output exists, stopping")

// Outcome labels for archive metrics.
const (
	outcomeSkipped     = "SKIPPED"
	outcomeError       = "ERROR"
	archiveContentType = "audio/mp4"
)

// Resolver turns a program into a capture source.
type Resolver interface {
	Resolve(ctx context.Context, p catalog.Program) (radiko.Source, error)
}

// Capturer records a source into a local file.
type Capturer interface {
	Capture(ctx context.Context, src radiko.Source, p catalog.Program) (string, error)
}

// Config holds the archive policy and optional sink settings.
type Config struct {
	// StopIfFileExists makes an existing output fatal instead of FAILED.
	StopIfFileExists bool
	// ObjectPrefix is prepended to uploaded object names.
	ObjectPrefix string
	// Topic receives ArchivedEvent payloads.
	Topic string
}

// Archiver archives single programs. It is safe for concurrent use.
type Archiver struct {
	store      catalog.Store
	resolver   Resolver
	capturer   Capturer
	blobs      catalog.BlobStore
	publishers []catalog.Publisher
	ids        catalog.IDGenerator
	cfg        Config
	logger     *zap.Logger
}

// Option customizes an Archiver.
type Option func(*Archiver)

// WithBlobStore uploads every finished archive to blobs.
func WithBlobStore(blobs catalog.BlobStore) Option {
	return func(a *Archiver) { a.blobs = blobs }
}

// WithPublisher adds a publisher that receives an ArchivedEvent for every
// finished archive.
func WithPublisher(p catalog.Publisher) Option {
	return func(a *Archiver) { a.publishers = append(a.publishers, p) }
}

// WithIDGenerator tags each attempt with a generated id.
func WithIDGenerator(ids catalog.IDGenerator) Option {
	return func(a *Archiver) { a.ids = ids }
}

// New wires an Archiver.
func New(store catalog.Store, resolver Resolver, capturer Capturer, cfg Config, logger *zap.Logger, opts ...Option) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &Archiver{
		store:    store,
		resolver: resolver,
		capturer: capturer,
		cfg:      cfg,
		logger:   logger.Named("archiver"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Archive claims p, captures it, and records the outcome.
//
// A program that is no longer ARCHIVABLE is skipped without error.
// Cancellation marks the program SUSPENDED and returns the context error.
// An existing output marks it FAILED, or returns ErrStopOnExisting when the
// stop policy is set. Any other failure is returned with the program left
// ARCHIVING.
func (a *Archiver) Archive(ctx context.Context, p catalog.Program) error {
	ctx, span := telemetry.Tracer().Start(ctx, "archive", trace.WithAttributes(
		attribute.Int64("program_id", p.ID),
		attribute.String("station_id", p.StationID),
	))
	defer span.End()
	err := a.archive(ctx, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (a *Archiver) archive(ctx context.Context, p catalog.Program) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	attemptID := a.attemptID()
	logger := a.logger.With(
		zap.Int64("program_id", p.ID),
		zap.String("station_id", p.StationID),
		zap.String("title", p.Title),
		zap.String("attempt_id", attemptID),
	)

	if _, err := a.store.Transition(ctx, p.ID, catalog.StatusArchiving); err != nil {
		if errors.Is(err, catalog.ErrIllegalTransition) {
			metrics.ObserveArchive(outcomeSkipped)
			logger.Info("program already claimed, skipping", zap.Error(err))
			return nil
		}
		metrics.ObserveArchive(outcomeError)
		return fmt.Errorf("claim program %d: %w", p.ID, err)
	}

	metrics.IncActiveArchivers()
	out, err := a.record(ctx, p)
	metrics.DecActiveArchivers()

	switch {
	case err == nil:
		if err := a.finish(ctx, p.ID, catalog.StatusArchived); err != nil {
			return err
		}
		logger.Info("program archived", zap.String("output", out))
		a.publishArchive(ctx, logger, attemptID, p, out)
		return nil

	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		if serr := a.finish(ctx, p.ID, catalog.StatusSuspended); serr != nil {
			logger.Error("mark suspended failed", zap.Error(serr))
		}
		logger.Warn("archive interrupted", zap.Error(err))
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return fmt.Errorf("archive program %d: %w", p.ID, errors.Join(ctxErr, err))
		}
		return fmt.Errorf("archive program %d: %w", p.ID, err)

	case errors.Is(err, capture.ErrOutputExists):
		if a.cfg.StopIfFileExists {
			metrics.ObserveArchive(outcomeError)
			logger.Error("output exists, stopping", zap.String("output", out))
			return fmt.Errorf("%w: %w", ErrStopOnExisting, err)
		}
		if err := a.finish(ctx, p.ID, catalog.StatusFailed); err != nil {
			return err
		}
		logger.Warn("output exists, marked failed", zap.String("output", out))
		return nil

	default:
		metrics.ObserveArchive(outcomeError)
		logger.Error("archive failed, left archiving", zap.Error(err))
		return fmt.Errorf("archive program %d: %w", p.ID, err)
	}
}

func (a *Archiver) record(ctx context.Context, p catalog.Program) (string, error) {
	src, err := a.resolver.Resolve(ctx, p)
	if err != nil {
		return "", err
	}
	return a.capturer.Capture(ctx, src, p)
}

// finish writes a terminal status even when ctx is already canceled.
func (a *Archiver) finish(ctx context.Context, id int64, to catalog.Status) error {
	if _, err := a.store.Transition(context.WithoutCancel(ctx), id, to); err != nil {
		metrics.ObserveArchive(outcomeError)
		return fmt.Errorf("mark program %d %s: %w", id, to, err)
	}
	metrics.ObserveArchive(to.String())
	return nil
}

// publishArchive runs the optional sinks. Failures are logged only.
func (a *Archiver) publishArchive(ctx context.Context, logger *zap.Logger, attemptID string, p catalog.Program, out string) {
	if ctx.Err() != nil {
		return
	}
	event := catalog.ArchivedEvent{
		AttemptID:   attemptID,
		ProgramID:   p.ID,
		BroadcastID: p.BroadcastID,
		StationID:   p.StationID,
		Title:       p.Title,
		Start:       p.Start,
		End:         p.End,
		Path:        out,
	}
	if digest, size, err := sha256.File(out); err != nil {
		logger.Warn("archive checksum failed", zap.Error(err))
	} else {
		event.SHA256, event.Size = digest, size
	}
	if a.blobs != nil {
		uri, err := a.upload(ctx, out)
		if err != nil {
			logger.Error("archive upload failed", zap.Error(err))
		} else {
			event.ObjectURI = uri
			logger.Info("archive uploaded", zap.String("uri", uri))
		}
	}
	for _, pub := range a.publishers {
		id, err := pub.Publish(ctx, a.cfg.Topic, event)
		if err != nil {
			logger.Error("archive notification failed", zap.Error(err))
			continue
		}
		logger.Debug("archive notification published", zap.String("message_id", id))
	}
}

func (a *Archiver) upload(ctx context.Context, out string) (string, error) {
	f, err := os.Open(out)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	name := path.Join(a.cfg.ObjectPrefix, filepath.Base(out))
	return a.blobs.PutObject(ctx, name, archiveContentType, f)
}

func (a *Archiver) attemptID() string {
	if a.ids == nil {
		return ""
	}
	id, err := a.ids.NewID()
	if err != nil {
		a.logger.Warn("generate attempt id failed", zap.Error(err))
		return ""
	}
	return id
}
