package pgstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/cutsync/pkg/pg"
	"github.com/dmitrymomot/cutsync/pkg/queue"
)

// QueueStorage implements queue.Storage on the queue_tasks table. Claims use
// FOR UPDATE SKIP LOCKED so workers in several processes never share a task.
type QueueStorage struct {
	pool *pgxpool.Pool
}

var _ queue.Storage = (*QueueStorage)(nil)

func NewQueueStorage(pool *pgxpool.Pool) *QueueStorage {
	return &QueueStorage{pool: pool}
}

func (q *QueueStorage) Push(ctx context.Context, task *queue.Task) error {
	if task == nil {
		return queue.ErrPayloadNil
	}
	_, err := q.pool.Exec(ctx, `
		INSERT INTO queue_tasks (id, queue, name, payload, status, attempts, max_attempts, run_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		task.ID, task.Queue, task.Name, task.Payload, string(task.Status),
		task.Attempts, task.MaxAttempts, task.RunAt, task.CreatedAt)
	return err
}

func (q *QueueStorage) Claim(ctx context.Context, queues []string, lock time.Duration) (*queue.Task, error) {
	now := time.Now()
	var (
		t      queue.Task
		status string
	)
	err := q.pool.QueryRow(ctx, `
		UPDATE queue_tasks SET status = 'processing', locked_until = $3
		WHERE id = (
			SELECT id FROM queue_tasks
			WHERE queue = ANY($1)
				AND run_at <= $2
				AND (status = 'pending' OR (status = 'processing' AND locked_until < $2))
			ORDER BY run_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, queue, name, payload, status, attempts, max_attempts, run_at, locked_until, last_error, created_at`,
		queues, now, now.Add(lock),
	).Scan(&t.ID, &t.Queue, &t.Name, &t.Payload, &status, &t.Attempts, &t.MaxAttempts,
		&t.RunAt, &t.LockedUntil, &t.LastError, &t.CreatedAt)
	if pg.IsNotFoundError(err) {
		return nil, queue.ErrNoTaskToClaim
	}
	if err != nil {
		return nil, err
	}
	t.Status = queue.TaskStatus(status)
	return &t, nil
}

func (q *QueueStorage) Complete(ctx context.Context, id uuid.UUID) error {
	return q.exec(ctx, `UPDATE queue_tasks SET status = 'completed', locked_until = NULL WHERE id = $1`, id)
}

func (q *QueueStorage) Retry(ctx context.Context, id uuid.UUID, errMsg string, runAt time.Time) error {
	return q.exec(ctx, `
		UPDATE queue_tasks SET status = 'pending', attempts = attempts + 1, last_error = $2,
			run_at = $3, locked_until = NULL
		WHERE id = $1`, id, errMsg, runAt)
}

func (q *QueueStorage) Bury(ctx context.Context, id uuid.UUID, errMsg string) error {
	return q.exec(ctx, `
		UPDATE queue_tasks SET status = 'dead', attempts = attempts + 1, last_error = $2, locked_until = NULL
		WHERE id = $1`, id, errMsg)
}

func (q *QueueStorage) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := q.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return queue.ErrTaskNotFound
	}
	return nil
}
