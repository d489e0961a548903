package queue_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/cutsync/pkg/queue"
)

type rewardPayload struct {
	UserID string `json:"user_id"`
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T, h queue.Handler, opts ...queue.WorkerOption) (*queue.MemoryStorage, *queue.Enqueuer, *queue.Worker) {
	t.Helper()
	storage := queue.NewMemoryStorage()
	e, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)
	w, err := queue.NewWorker(storage, append([]queue.WorkerOption{queue.WithWorkerLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	if h != nil {
		require.NoError(t, w.RegisterHandler(h))
	}
	return storage, e, w
}

func TestWorkerProcessesTask(t *testing.T) {
	t.Parallel()

	var got string
	h := queue.NewTaskHandler(func(_ context.Context, p rewardPayload) error {
		got = p.UserID
		return nil
	})
	storage, e, w := setup(t, h)

	task, err := e.Enqueue(t.Context(), rewardPayload{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, h.Name(), task.Name)

	claimed, err := w.ProcessNext(t.Context())
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, "u1", got)

	tasks := storage.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, queue.TaskStatusCompleted, tasks[0].Status)

	claimed, err = w.ProcessNext(t.Context())
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestWorkerRetriesThenBuries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	h := queue.NewTaskHandler(func(context.Context, rewardPayload) error {
		calls.Add(1)
		return errors.New("loyalty service down")
	})
	storage, e, w := setup(t, h, queue.WithRetryBackoff(time.Millisecond))

	_, err := e.Enqueue(t.Context(), rewardPayload{UserID: "u1"}, queue.WithMaxAttempts(2))
	require.NoError(t, err)

	_, err = w.ProcessNext(t.Context())
	require.NoError(t, err)
	tasks := storage.Tasks()
	assert.Equal(t, queue.TaskStatusPending, tasks[0].Status)
	assert.Equal(t, 1, tasks[0].Attempts)
	assert.Equal(t, "loyalty service down", tasks[0].LastError)

	require.Eventually(t, func() bool {
		claimed, err := w.ProcessNext(t.Context())
		return err == nil && claimed
	}, time.Second, 5*time.Millisecond)

	tasks = storage.Tasks()
	assert.Equal(t, queue.TaskStatusDead, tasks[0].Status)
	assert.Equal(t, 2, tasks[0].Attempts)
	assert.EqualValues(t, 2, calls.Load())
}

func TestWorkerBuriesUnknownTask(t *testing.T) {
	t.Parallel()

	storage, e, w := setup(t, queue.NewTaskHandler(func(context.Context, rewardPayload) error { return nil }))

	_, err := e.Enqueue(t.Context(), struct{ X int }{1}, queue.WithTaskName("unknown"))
	require.NoError(t, err)

	_, err = w.ProcessNext(t.Context())
	assert.ErrorIs(t, err, queue.ErrHandlerNotFound)
	assert.Equal(t, queue.TaskStatusDead, storage.Tasks()[0].Status)
}

func TestWorkerRecoversPanic(t *testing.T) {
	t.Parallel()

	storage, e, w := setup(t, queue.NewTaskHandler(func(context.Context, rewardPayload) error {
		panic("boom")
	}))
	_, err := e.Enqueue(t.Context(), rewardPayload{}, queue.WithMaxAttempts(1))
	require.NoError(t, err)

	_, err = w.ProcessNext(t.Context())
	require.NoError(t, err)
	task := storage.Tasks()[0]
	assert.Equal(t, queue.TaskStatusDead, task.Status)
	assert.Contains(t, task.LastError, "panic in handler")
}

func TestWorkerDelayedTaskNotClaimed(t *testing.T) {
	t.Parallel()

	_, e, w := setup(t, queue.NewTaskHandler(func(context.Context, rewardPayload) error { return nil }))
	_, err := e.Enqueue(t.Context(), rewardPayload{}, queue.WithDelay(time.Hour))
	require.NoError(t, err)

	claimed, err := w.ProcessNext(t.Context())
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestWorkerRun(t *testing.T) {
	t.Parallel()

	done := make(chan string, 1)
	_, e, w := setup(t, queue.NewTaskHandler(func(_ context.Context, p rewardPayload) error {
		done <- p.UserID
		return nil
	}), queue.WithPullInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(t.Context())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(w.Run(gctx))

	_, err := e.Enqueue(t.Context(), rewardPayload{UserID: "u2"})
	require.NoError(t, err)

	select {
	case id := <-done:
		assert.Equal(t, "u2", id)
	case <-time.After(2 * time.Second):
		t.Fatal("task was not processed")
	}

	cancel()
	assert.NoError(t, g.Wait())
}

func TestWorkerRunWithoutHandlers(t *testing.T) {
	t.Parallel()

	_, _, w := setup(t, nil)
	assert.ErrorIs(t, w.Run(t.Context())(), queue.ErrNoHandlers)
}

func TestNewEnqueuerNilStorage(t *testing.T) {
	t.Parallel()

	_, err := queue.NewEnqueuer(nil)
	assert.ErrorIs(t, err, queue.ErrStorageNil)

	storage := queue.NewMemoryStorage()
	e, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)
	_, err = e.Enqueue(t.Context(), nil)
	assert.ErrorIs(t, err, queue.ErrPayloadNil)
}
