package queue

import "errors"

var (
	ErrStorageNil      = errors.New("queue storage cannot be nil")
	ErrPayloadNil      = errors.New("payload cannot be nil")
	ErrNoTaskToClaim   = errors.New("no task to claim")
	ErrTaskNotFound    = errors.New("task not found")
	ErrHandlerNotFound = errors.New("no handler registered for task")
	ErrNoHandlers      = errors.New("no task handlers registered")
	ErrWorkerStarted   = errors.New("worker already started")
)
