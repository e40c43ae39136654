// Package worker implements the archive task execution loop.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/radikoarchive/radiko-archiver/internal/catalog"
)

// Queue supplies archive tasks.
type Queue interface {
	Dequeue(ctx context.Context) (catalog.Program, error)
}

// Handler archives one program.
type Handler interface {
	Archive(ctx context.Context, p catalog.Program) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, p catalog.Program) error

// Archive calls f.
func (f HandlerFunc) Archive(ctx context.Context, p catalog.Program) error {
	return f(ctx, p)
}

// Config controls Worker behavior.
type Config struct {
	// Fatal reports whether a handler error must stop the whole pool.
	Fatal func(error) bool
}

// Worker consumes programs from a queue and archives them one at a time.
type Worker struct {
	id      int
	queue   Queue
	handler Handler
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Worker.
func New(id int, queue Queue, handler Handler, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Fatal == nil {
		cfg.Fatal = func(error) bool { return false }
	}
	return &Worker{
		id:      id,
		queue:   queue,
		handler: handler,
		cfg:     cfg,
		logger:  logger.Named("worker").With(zap.Int("worker_id", id)),
	}
}

// Run blocks, consuming tasks until the context finishes or the queue
// closes. It returns the first fatal handler error.
func (w *Worker) Run(ctx context.Context) error {
	for {
		p, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Debug("queue drained", zap.Error(err))
			return nil
		}
		w.logger.Debug("dequeued program", zap.Int64("program_id", p.ID))
		if err := w.handler.Archive(ctx, p); err != nil {
			switch {
			case errors.Is(err, context.Canceled) || ctx.Err() != nil:
				return nil
			case w.cfg.Fatal(err):
				w.logger.Error("fatal archive error", zap.Int64("program_id", p.ID), zap.Error(err))
				return err
			default:
				w.logger.Error("archive failed", zap.Int64("program_id", p.ID), zap.Error(err))
			}
		}
	}
}
