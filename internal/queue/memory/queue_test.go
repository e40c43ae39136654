package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/radikoarchive/radiko-archiver/internal/catalog"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(0)
	result := make(chan catalog.Program, 1)
	errCh := make(chan error, 1)

	go func() {
		p, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- p
	}()

	require.NoError(t, q.Enqueue(context.Background(), catalog.Program{ID: 1}))
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		require.Equal(t, int64(1), got.ID)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return program")
	}
}

func TestQueueUnbufferedEnqueueBlocksUntilCanceled(t *testing.T) {
	t.Parallel()

	q := NewQueue(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.Enqueue(ctx, catalog.Program{ID: 1})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewQueue(1).Dequeue(ctx)
	require.EqualError(t, err, "dequeue canceled: context canceled")

	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), catalog.Program{ID: 1}))
	require.EqualError(t, q.Enqueue(ctx, catalog.Program{ID: 2}), "enqueue canceled: context canceled")
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), catalog.Program{ID: 1}))
	q.Close()
	q.Close()

	p, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), p.ID)

	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}
