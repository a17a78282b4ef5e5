package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/wjhtinger/NV-samples-sub002/internal/debuglog"
	"github.com/wjhtinger/NV-samples-sub002/primitive"
)

// ring holds the slot bookkeeping shared by Queue and Bytes. Storage lives
// in the wrapping type and is touched only through the slot callbacks,
// which run with the ring mutex held.
//
// free counts empty slots and filled counts occupied ones; their sum is
// the capacity whenever no put or get is in flight.
type ring struct {
	capacity int
	nextGet  int
	nextPut  int
	items    int

	free   *primitive.Semaphore
	filled *primitive.Semaphore
	mu     *primitive.Mutex

	destroyed atomic.Bool
}

func newRing(capacity int) (*ring, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("queue capacity %d: %w", capacity, primitive.ErrBadParameter)
	}

	free, err := primitive.NewSemaphore(capacity, capacity)
	if err != nil {
		return nil, err
	}
	filled, err := primitive.NewSemaphore(0, capacity)
	if err != nil {
		return nil, err
	}

	return &ring{
		capacity: capacity,
		free:     free,
		filled:   filled,
		mu:       primitive.NewMutex(),
	}, nil
}

// put reserves a free slot and hands its index to write. With front set the
// item becomes the next one returned by get.
func (r *ring) put(ctx context.Context, timeout time.Duration, front bool, write func(slot int)) error {
	if r.destroyed.Load() {
		return errDestroyed
	}
	if err := r.free.DecrementContext(ctx, timeout); err != nil {
		return mapWaitErr(err)
	}

	r.mu.Acquire()
	if r.destroyed.Load() {
		r.mu.Release()
		return errDestroyed
	}

	var slot int
	if front {
		r.nextGet = (r.nextGet + r.capacity - 1) % r.capacity
		slot = r.nextGet
	} else {
		slot = r.nextPut
		r.nextPut = (r.nextPut + 1) % r.capacity
	}
	write(slot)
	r.items++
	r.mu.Release()

	r.filled.Increment()
	return nil
}

// get claims the oldest occupied slot and hands its index to read.
func (r *ring) get(ctx context.Context, timeout time.Duration, read func(slot int)) error {
	if r.destroyed.Load() {
		return errDestroyed
	}
	if err := r.filled.DecrementContext(ctx, timeout); err != nil {
		return mapWaitErr(err)
	}

	r.mu.Acquire()
	if r.destroyed.Load() {
		r.mu.Release()
		return errDestroyed
	}

	slot := r.nextGet
	r.nextGet = (r.nextGet + 1) % r.capacity
	read(slot)
	r.items--
	r.mu.Release()

	r.free.Increment()
	return nil
}

// peek reads the head slot without removing it.
func (r *ring) peek(read func(slot int)) bool {
	r.mu.Acquire()
	defer r.mu.Release()

	if r.destroyed.Load() || r.items == 0 {
		return false
	}
	read(r.nextGet)
	return true
}

func (r *ring) count() int {
	r.mu.Acquire()
	defer r.mu.Release()
	return r.items
}

// destroy fails every waiter, lets clear wipe the storage and returns how
// many items were still queued.
func (r *ring) destroy(clear func()) int {
	if !r.destroyed.CompareAndSwap(false, true) {
		return 0
	}
	r.free.Close()
	r.filled.Close()

	r.mu.Acquire()
	left := r.items
	r.items = 0
	clear()
	r.mu.Release()

	debuglog.Printf("queue", "destroyed ring cap=%d with %d items left", r.capacity, left)
	return left
}

var errDestroyed = fmt.Errorf("queue destroyed: %w", primitive.ErrClosed)

func mapWaitErr(err error) error {
	if errors.Is(err, primitive.ErrClosed) {
		return errDestroyed
	}
	return err
}
