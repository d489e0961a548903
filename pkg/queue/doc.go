// Package queue is a small storage-agnostic task queue used for side effects
// that must survive a failed attempt, such as delivering loyalty rewards.
//
// An Enqueuer serialises a payload into a Task and hands it to a Storage. A
// Worker claims due tasks, dispatches them by name to a registered Handler and
// either completes them, schedules a retry with linear backoff, or buries them
// once attempts are exhausted. MemoryStorage backs tests and local runs; a
// PostgreSQL implementation lives next to the billing store.
//
//	type RewardTask struct{ UserID string }
//
//	w, _ := queue.NewWorker(storage, queue.WithWorkerLogger(log))
//	_ = w.RegisterHandler(queue.NewTaskHandler(func(ctx context.Context, t RewardTask) error {
//		return deliver(ctx, t)
//	}))
//	g.Go(w.Run(ctx))
//
//	e, _ := queue.NewEnqueuer(storage)
//	_ = e.Enqueue(ctx, RewardTask{UserID: id})
package queue
