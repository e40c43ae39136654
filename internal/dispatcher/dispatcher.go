// Package dispatcher runs a fixed pool of archive workers over a bounded
// queue and tears the pool down on cancellation or a fatal task error.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/radikoarchive/radiko-archiver/internal/catalog"
	"github.com/radikoarchive/radiko-archiver/internal/worker"
)

var (
	// ErrInFlight is returned by Submit for a program already queued or running.
	ErrInFlight = errors.New("program already in flight")
	// ErrStopped is returned by Submit once the pool has shut down.
	ErrStopped = errors.New("dispatcher stopped")
)

// Queue is the task channel shared by Submit and the workers.
type Queue interface {
	worker.Queue
	Enqueue(ctx context.Context, p catalog.Program) error
}

// Config controls the pool.
type Config struct {
	Concurrency int
	// Fatal reports whether a task error must stop the pool.
	Fatal func(error) bool
}

// Dispatcher fans out queued programs to a pool of workers.
type Dispatcher struct {
	queue   Queue
	handler worker.Handler
	cfg     Config
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc

	mu       sync.Mutex
	inFlight map[int64]struct{}
}

// New creates a Dispatcher. Concurrency below one is treated as one.
func New(queue Queue, handler worker.Handler, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Dispatcher{
		queue:    queue,
		handler:  handler,
		cfg:      cfg,
		logger:   logger.Named("dispatcher"),
		ctx:      ctx,
		cancel:   cancel,
		inFlight: make(map[int64]struct{}),
	}
}

// Run starts all workers and blocks until ctx finishes or a worker reports
// a fatal error. It returns that error, or ctx's error on cancellation.
func (d *Dispatcher) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { d.cancel(ctx.Err()) })
	defer stop()

	handler := worker.HandlerFunc(d.track)
	var wg sync.WaitGroup
	for i := 1; i <= d.cfg.Concurrency; i++ {
		w := worker.New(i, d.queue, handler, worker.Config{Fatal: d.cfg.Fatal}, d.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(d.ctx); err != nil {
				d.cancel(err)
			}
		}()
	}
	<-d.ctx.Done()
	wg.Wait()
	d.logger.Info("worker pool stopped", zap.Error(context.Cause(d.ctx)))
	return context.Cause(d.ctx)
}

// Submit enqueues p, blocking while every worker is busy. Programs already
// queued or running are rejected with ErrInFlight.
func (d *Dispatcher) Submit(ctx context.Context, p catalog.Program) error {
	if err := d.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStopped, context.Cause(d.ctx))
	}
	if !d.claim(p.ID) {
		return ErrInFlight
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(d.ctx, cancel)
	defer stop()
	if err := d.queue.Enqueue(ctx, p); err != nil {
		d.release(p.ID)
		if d.ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrStopped, context.Cause(d.ctx))
		}
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// InFlight reports how many programs are queued or running.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inFlight)
}

func (d *Dispatcher) track(ctx context.Context, p catalog.Program) error {
	defer d.release(p.ID)
	return d.handler.Archive(ctx, p)
}

func (d *Dispatcher) claim(id int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.inFlight[id]; ok {
		return false
	}
	d.inFlight[id] = struct{}{}
	return true
}

func (d *Dispatcher) release(id int64) {
	d.mu.Lock()
	delete(d.inFlight, id)
	d.mu.Unlock()
}
