// Package resultq provides the multi-producer, single-consumer queues workers use to hand
// results back to the scheduler.
package resultq

import "context"

// DefaultCapacity is the buffer size used when a queue is created with a non-positive capacity.
const DefaultCapacity = 256

// Queue is a buffered MPSC queue. Any goroutine may Push. Only the owning goroutine may
// Drain or receive from Ready.
type Queue[T any] struct {
	ch chan T
}

// New returns a queue buffering up to capacity items before Push blocks.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// PushContext enqueues v, giving up when ctx is done.
func (q *Queue[T]) PushContext(ctx context.Context, v T) error {
	select {
	case q.ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Push enqueues v. It blocks while the buffer is full.
func (q *Queue[T]) Push(v T) {
	q.ch <- v
}

// TryPush enqueues v unless the buffer is full.
func (q *Queue[T]) TryPush(v T) bool {
	select {
	case q.ch <- v:
		return true
	default:
		return false
	}
}

// Drain returns everything currently queued, in arrival order, without blocking.
func (q *Queue[T]) Drain() []T {
	var out []T
	for {
		select {
		case v := <-q.ch:
			out = append(out, v)
		default:
			return out
		}
	}
}

// Ready exposes the receive side so the consumer can select on arrivals.
func (q *Queue[T]) Ready() <-chan T {
	return q.ch
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}
