package queue

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage keeps tasks in a map. Expired locks become claimable again
// on the next Claim.
type MemoryStorage struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*Task
	now   func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{tasks: make(map[uuid.UUID]*Task), now: time.Now}
}

func (s *MemoryStorage) Push(_ context.Context, task *Task) error {
	if task == nil {
		return ErrPayloadNil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; ok {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	t := *task
	s.tasks[t.ID] = &t
	return nil
}

func (s *MemoryStorage) Claim(_ context.Context, queues []string, lock time.Duration) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var best *Task
	for _, t := range s.tasks {
		if !slices.Contains(queues, t.Queue) || t.RunAt.After(now) {
			continue
		}
		claimable := t.Status == TaskStatusPending ||
			(t.Status == TaskStatusProcessing && t.LockedUntil != nil && t.LockedUntil.Before(now))
		if !claimable {
			continue
		}
		if best == nil || t.RunAt.Before(best.RunAt) {
			best = t
		}
	}
	if best == nil {
		return nil, ErrNoTaskToClaim
	}

	until := now.Add(lock)
	best.Status = TaskStatusProcessing
	best.LockedUntil = &until
	t := *best
	return &t, nil
}

func (s *MemoryStorage) Complete(_ context.Context, id uuid.UUID) error {
	return s.update(id, func(t *Task) {
		t.Status = TaskStatusCompleted
		t.LockedUntil = nil
	})
}

func (s *MemoryStorage) Retry(_ context.Context, id uuid.UUID, errMsg string, runAt time.Time) error {
	return s.update(id, func(t *Task) {
		t.Attempts++
		t.Status = TaskStatusPending
		t.LastError = errMsg
		t.RunAt = runAt
		t.LockedUntil = nil
	})
}

func (s *MemoryStorage) Bury(_ context.Context, id uuid.UUID, errMsg string) error {
	return s.update(id, func(t *Task) {
		t.Attempts++
		t.Status = TaskStatusDead
		t.LastError = errMsg
		t.LockedUntil = nil
	})
}

// Tasks returns copies of all stored tasks, oldest first.
func (s *MemoryStorage) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	slices.SortFunc(out, func(a, b Task) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

func (s *MemoryStorage) update(id uuid.UUID, fn func(*Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	fn(t)
	return nil
}
