package adapter

import "context"

// Task is a unit of background work; ctx is cancelled when the queue stops.
type Task func(ctx context.Context) error

// TaskQueue accepts work without blocking. A full queue returns
// domain.ErrQueueFull.
type TaskQueue interface {
	Submit(task Task) error
}
