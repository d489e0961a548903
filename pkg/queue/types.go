package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const DefaultQueueName = "default"

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusDead       TaskStatus = "dead"
)

// Task is a unit of work persisted by a Storage.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	Queue       string     `json:"queue"`
	Name        string     `json:"name"`
	Payload     []byte     `json:"payload,omitempty"`
	Status      TaskStatus `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	RunAt       time.Time  `json:"run_at"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Storage persists tasks. Claim must be atomic across concurrent workers and
// return ErrNoTaskToClaim when nothing is due.
type Storage interface {
	Push(ctx context.Context, task *Task) error
	Claim(ctx context.Context, queues []string, lock time.Duration) (*Task, error)
	Complete(ctx context.Context, id uuid.UUID) error
	Retry(ctx context.Context, id uuid.UUID, errMsg string, runAt time.Time) error
	Bury(ctx context.Context, id uuid.UUID, errMsg string) error
}
