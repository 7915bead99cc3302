package taskqueue

import "context"

// InMemoryQueue delivers job tasks through a buffered channel. It is safe
// for concurrent producers and consumers, but tasks do not survive the
// process; durable deployments use SQLiteQueue instead.
//
// NotBefore is ignored: local development has no use for delayed jobs.
type InMemoryQueue struct {
	tasks chan Task
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a queue holding at most capacity pending tasks.
// A non-positive capacity falls back to 1024, plenty for local runs.
func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &InMemoryQueue{tasks: make(chan Task, capacity)}
}

// Enqueue adds the task, blocking while the queue is full.
func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	select {
	case q.tasks <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until a task is available or ctx is cancelled.
func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	select {
	case t := <-q.tasks:
		t.Attempts++
		return &t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *InMemoryQueue) Len() int {
	return len(q.tasks)
}
