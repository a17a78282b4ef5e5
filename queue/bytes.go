package queue

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/wjhtinger/NV-samples-sub002/primitive"
)

// Bytes is a bounded FIFO of fixed-size byte records. Put copies the
// caller's record into the queue's slab and Get copies it out again, so
// callers never share memory with the queue.
type Bytes struct {
	r        *ring
	itemSize int
	data     []byte
}

// NewBytes creates a queue of capacity records of itemSize bytes each.
//
// Returns:
//   - primitive.ErrBadParameter when capacity or itemSize is not positive
//   - primitive.ErrOutOfMemory when capacity*itemSize overflows
func NewBytes(capacity, itemSize int) (*Bytes, error) {
	if itemSize <= 0 {
		return nil, fmt.Errorf("queue item size %d: %w", itemSize, primitive.ErrBadParameter)
	}
	r, err := newRing(capacity)
	if err != nil {
		return nil, err
	}
	if itemSize > math.MaxInt/capacity {
		return nil, fmt.Errorf("queue %d x %d bytes: %w", capacity, itemSize, primitive.ErrOutOfMemory)
	}

	return &Bytes{
		r:        r,
		itemSize: itemSize,
		data:     make([]byte, capacity*itemSize),
	}, nil
}

func (b *Bytes) record(slot int) []byte {
	off := slot * b.itemSize
	return b.data[off : off+b.itemSize]
}

func (b *Bytes) checkLen(n int) error {
	if n != b.itemSize {
		return fmt.Errorf("record of %d bytes, queue holds %d: %w", n, b.itemSize, primitive.ErrBadParameter)
	}
	return nil
}

// Put copies item to the tail. len(item) must equal ItemSize.
func (b *Bytes) Put(item []byte, timeout time.Duration) error {
	return b.PutContext(context.Background(), item, timeout)
}

// PutContext is Put bounded by ctx.
func (b *Bytes) PutContext(ctx context.Context, item []byte, timeout time.Duration) error {
	if err := b.checkLen(len(item)); err != nil {
		return err
	}
	return b.r.put(ctx, timeout, false, func(slot int) {
		copy(b.record(slot), item)
	})
}

// PutFront copies item to the head.
func (b *Bytes) PutFront(item []byte, timeout time.Duration) error {
	return b.PutFrontContext(context.Background(), item, timeout)
}

// PutFrontContext is PutFront bounded by ctx.
func (b *Bytes) PutFrontContext(ctx context.Context, item []byte, timeout time.Duration) error {
	if err := b.checkLen(len(item)); err != nil {
		return err
	}
	return b.r.put(ctx, timeout, true, func(slot int) {
		copy(b.record(slot), item)
	})
}

// Get copies the oldest record into dst and removes it. len(dst) must
// equal ItemSize.
func (b *Bytes) Get(dst []byte, timeout time.Duration) error {
	return b.GetContext(context.Background(), dst, timeout)
}

// GetContext is Get bounded by ctx.
func (b *Bytes) GetContext(ctx context.Context, dst []byte, timeout time.Duration) error {
	if err := b.checkLen(len(dst)); err != nil {
		return err
	}
	return b.r.get(ctx, timeout, func(slot int) {
		copy(dst, b.record(slot))
	})
}

// Peek copies the oldest record into dst without removing it and reports
// whether there was one.
func (b *Bytes) Peek(dst []byte) (bool, error) {
	if err := b.checkLen(len(dst)); err != nil {
		return false, err
	}
	return b.r.peek(func(slot int) {
		copy(dst, b.record(slot))
	}), nil
}

// Len returns the number of queued records.
func (b *Bytes) Len() int {
	return b.r.count()
}

// Cap returns the capacity in records.
func (b *Bytes) Cap() int {
	return b.r.capacity
}

// ItemSize returns the record size in bytes.
func (b *Bytes) ItemSize() int {
	return b.itemSize
}

// Destroy releases the slab and fails all waiters. It returns the number
// of records that were still queued.
func (b *Bytes) Destroy() int {
	return b.r.destroy(func() {
		b.data = nil
	})
}
