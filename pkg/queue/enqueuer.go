package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Enqueuer struct {
	storage      Storage
	defaultQueue string
	maxAttempts  int
}

type EnqueuerOption func(*Enqueuer)

func WithDefaultQueue(name string) EnqueuerOption {
	return func(e *Enqueuer) {
		if name != "" {
			e.defaultQueue = name
		}
	}
}

func WithDefaultMaxAttempts(n int) EnqueuerOption {
	return func(e *Enqueuer) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

func NewEnqueuer(storage Storage, opts ...EnqueuerOption) (*Enqueuer, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}
	e := &Enqueuer{storage: storage, defaultQueue: DefaultQueueName, maxAttempts: 3}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	queue       string
	name        string
	delay       time.Duration
	maxAttempts int
}

func WithQueue(name string) EnqueueOption {
	return func(o *enqueueOptions) {
		if name != "" {
			o.queue = name
		}
	}
}

func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if d > 0 {
			o.delay = d
		}
	}
}

func WithMaxAttempts(n int) EnqueueOption {
	return func(o *enqueueOptions) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

func WithTaskName(name string) EnqueueOption {
	return func(o *enqueueOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// Enqueue stores payload as a pending task. The task name defaults to the
// payload's type name so it matches NewTaskHandler for the same type.
func (e *Enqueuer) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) (*Task, error) {
	if payload == nil {
		return nil, ErrPayloadNil
	}

	o := &enqueueOptions{queue: e.defaultQueue, maxAttempts: e.maxAttempts}
	for _, opt := range opts {
		opt(o)
	}
	if o.name == "" {
		o.name = TaskName(payload)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %T payload: %w", payload, err)
	}

	now := time.Now()
	task := &Task{
		ID:          uuid.New(),
		Queue:       o.queue,
		Name:        o.name,
		Payload:     raw,
		Status:      TaskStatusPending,
		MaxAttempts: o.maxAttempts,
		RunAt:       now.Add(o.delay),
		CreatedAt:   now,
	}
	if err := e.storage.Push(ctx, task); err != nil {
		return nil, fmt.Errorf("push task %q to queue %q: %w", task.Name, task.Queue, err)
	}
	return task, nil
}
