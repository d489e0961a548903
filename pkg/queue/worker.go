package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Worker polls a Storage and runs due tasks through registered handlers.
type Worker struct {
	storage  Storage
	handlers map[string]Handler
	mu       sync.RWMutex

	queues       []string
	pullInterval time.Duration
	lockTimeout  time.Duration
	backoff      time.Duration
	concurrency  int
	logger       *slog.Logger

	running sync.Mutex
}

type WorkerOption func(*Worker)

func WithQueues(queues ...string) WorkerOption {
	return func(w *Worker) {
		if len(queues) > 0 {
			w.queues = queues
		}
	}
}

func WithPullInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pullInterval = d
		}
	}
}

func WithLockTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.lockTimeout = d
		}
	}
}

// WithRetryBackoff sets the base delay; attempt n waits n*base.
func WithRetryBackoff(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.backoff = d
		}
	}
}

func WithMaxConcurrentTasks(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithConfig applies env-driven settings.
func WithConfig(cfg Config) WorkerOption {
	return func(w *Worker) {
		for _, opt := range []WorkerOption{
			WithPullInterval(cfg.PollInterval),
			WithLockTimeout(cfg.LockTimeout),
			WithRetryBackoff(cfg.RetryBackoff),
			WithMaxConcurrentTasks(cfg.MaxConcurrentTasks),
		} {
			opt(w)
		}
	}
}

func NewWorker(storage Storage, opts ...WorkerOption) (*Worker, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}
	w := &Worker{
		storage:      storage,
		handlers:     make(map[string]Handler),
		queues:       []string{DefaultQueueName},
		pullInterval: 2 * time.Second,
		lockTimeout:  time.Minute,
		backoff:      30 * time.Second,
		concurrency:  1,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func (w *Worker) RegisterHandler(handlers ...Handler) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, h := range handlers {
		if h != nil {
			w.handlers[h.Name()] = h
		}
	}
	return nil
}

// Run returns a blocking function suitable for errgroup.Group.Go. It stops
// claiming when ctx is done and waits for in-flight tasks.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if !w.running.TryLock() {
			return ErrWorkerStarted
		}
		defer w.running.Unlock()

		w.mu.RLock()
		n := len(w.handlers)
		w.mu.RUnlock()
		if n == 0 {
			return ErrNoHandlers
		}

		w.logger.InfoContext(ctx, "queue worker started",
			slog.Any("queues", w.queues),
			slog.Int("concurrency", w.concurrency))

		var wg sync.WaitGroup
		sem := make(chan struct{}, w.concurrency)
		ticker := time.NewTicker(w.pullInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				wg.Wait()
				w.logger.Info("queue worker stopped")
				return nil
			case <-ticker.C:
			}

			select {
			case sem <- struct{}{}:
			default:
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				if _, err := w.ProcessNext(ctx); err != nil && !errors.Is(err, ErrHandlerNotFound) {
					w.logger.ErrorContext(ctx, "queue task processing failed", slog.String("error", err.Error()))
				}
			}()
		}
	}
}

// ProcessNext claims and runs at most one task. It reports whether a task
// was claimed.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	task, err := w.storage.Claim(ctx, w.queues, w.lockTimeout)
	if err != nil {
		if errors.Is(err, ErrNoTaskToClaim) {
			return false, nil
		}
		return false, fmt.Errorf("claim task: %w", err)
	}
	return true, w.process(task)
}

func (w *Worker) process(task *Task) (retErr error) {
	start := time.Now()
	log := w.logger.With(
		slog.String("task_id", task.ID.String()),
		slog.String("task_name", task.Name),
		slog.Int("attempt", task.Attempts+1))

	w.mu.RLock()
	h, ok := w.handlers[task.Name]
	w.mu.RUnlock()
	if !ok {
		log.Error("no handler registered for task")
		if err := w.storage.Bury(context.Background(), task.ID, ErrHandlerNotFound.Error()); err != nil {
			return fmt.Errorf("bury task %s: %w", task.ID, err)
		}
		return ErrHandlerNotFound
	}

	defer func() {
		if r := recover(); r != nil {
			retErr = w.fail(log, task, fmt.Errorf("panic in handler: %v", r))
		}
	}()

	// Detached from the worker context so shutdown lets the task finish.
	ctx, cancel := context.WithTimeout(context.Background(), w.lockTimeout)
	defer cancel()

	if err := h.Handle(ctx, task.Payload); err != nil {
		return w.fail(log, task, err)
	}

	if err := w.storage.Complete(ctx, task.ID); err != nil {
		return fmt.Errorf("complete task %s: %w", task.ID, err)
	}
	log.Info("task completed", slog.Duration("duration", time.Since(start)))
	return nil
}

func (w *Worker) fail(log *slog.Logger, task *Task, cause error) error {
	ctx := context.Background()
	attempts := task.Attempts + 1
	if attempts >= task.MaxAttempts {
		log.Warn("task exhausted attempts, burying", slog.String("error", cause.Error()))
		if err := w.storage.Bury(ctx, task.ID, cause.Error()); err != nil {
			return fmt.Errorf("bury task %s: %w", task.ID, err)
		}
		return nil
	}

	runAt := time.Now().Add(time.Duration(attempts) * w.backoff)
	log.Error("task failed, scheduling retry",
		slog.String("error", cause.Error()),
		slog.Time("run_at", runAt))
	if err := w.storage.Retry(ctx, task.ID, cause.Error(), runAt); err != nil {
		return fmt.Errorf("retry task %s: %w", task.ID, err)
	}
	return nil
}
