// Package queue provides bounded FIFO queues with blocking, timed and
// context-aware put and get.
//
// Queue[T] stores values of any type. Bytes stores fixed-size byte records
// copied in and out of a single backing slab, for callers that want the
// queue to own the memory of what it holds.
//
// Every blocking call takes a timeout: primitive.NoWait tries once,
// primitive.Forever (or any negative duration) waits indefinitely. An
// elapsed timeout is reported as primitive.ErrTimedOut.
package queue

import (
	"context"
	"time"
)

// Queue is a bounded FIFO of T, safe for any number of producers and
// consumers.
type Queue[T any] struct {
	r     *ring
	slots []T
}

// New creates an empty queue holding at most capacity items.
// Returns primitive.ErrBadParameter when capacity <= 0.
func New[T any](capacity int) (*Queue[T], error) {
	r, err := newRing(capacity)
	if err != nil {
		return nil, err
	}
	return &Queue[T]{r: r, slots: make([]T, capacity)}, nil
}

// Put appends item, waiting up to timeout for a free slot.
func (q *Queue[T]) Put(item T, timeout time.Duration) error {
	return q.PutContext(context.Background(), item, timeout)
}

// PutContext is Put that also returns ctx.Err() when ctx ends first.
func (q *Queue[T]) PutContext(ctx context.Context, item T, timeout time.Duration) error {
	return q.r.put(ctx, timeout, false, func(slot int) {
		q.slots[slot] = item
	})
}

// PutFront inserts item at the head so it is the next one returned by Get.
// It is used to hand an item back to a queue it was just taken from.
func (q *Queue[T]) PutFront(item T, timeout time.Duration) error {
	return q.PutFrontContext(context.Background(), item, timeout)
}

// PutFrontContext is PutFront bounded by ctx.
func (q *Queue[T]) PutFrontContext(ctx context.Context, item T, timeout time.Duration) error {
	return q.r.put(ctx, timeout, true, func(slot int) {
		q.slots[slot] = item
	})
}

// Get removes and returns the oldest item, waiting up to timeout for one.
func (q *Queue[T]) Get(timeout time.Duration) (T, error) {
	return q.GetContext(context.Background(), timeout)
}

// GetContext is Get bounded by ctx.
func (q *Queue[T]) GetContext(ctx context.Context, timeout time.Duration) (T, error) {
	var item T
	err := q.r.get(ctx, timeout, func(slot int) {
		var zero T
		item = q.slots[slot]
		q.slots[slot] = zero
	})
	return item, err
}

// TryGet removes the oldest item if one is queued.
func (q *Queue[T]) TryGet() (T, bool) {
	item, err := q.GetContext(context.Background(), 0)
	return item, err == nil
}

// Peek returns the oldest item without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	var item T
	ok := q.r.peek(func(slot int) {
		item = q.slots[slot]
	})
	return item, ok
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return q.r.count()
}

// Cap returns the capacity given to New.
func (q *Queue[T]) Cap() int {
	return q.r.capacity
}

// Destroy drops the storage and fails current and future waiters with an
// error matching primitive.ErrClosed. Items still queued are discarded
// without any release; their count is returned so owners can detect leaks.
func (q *Queue[T]) Destroy() int {
	return q.r.destroy(func() {
		clear(q.slots)
	})
}
