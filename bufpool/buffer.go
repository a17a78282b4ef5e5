package bufpool

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/wjhtinger/NV-samples-sub002/primitive"
)

// Buffer is a pooled resource handle. It remembers the pool it came from
// so it can be sent home from any stage, and counts references so a stage
// can pass it along and still release its own hold.
type Buffer[R any] struct {
	// Value is the pooled resource.
	Value R

	id   int
	home *Pool[R]
	refs atomic.Int32

	start atomic.Int64
	end   atomic.Int64

	freed atomic.Bool
}

// ID returns the index of the buffer within its pool, 0..Cap-1.
func (b *Buffer[R]) ID() int {
	return b.id
}

// Home returns the pool the buffer belongs to. The buffer does not keep
// the pool alive in any sense beyond routing releases.
func (b *Buffer[R]) Home() *Pool[R] {
	return b.home
}

// Refs returns the current reference count. A buffer sitting in its pool
// has zero references.
func (b *Buffer[R]) Refs() int {
	return int(b.refs.Load())
}

// AddRef takes another reference on a held buffer. Calling it on a buffer
// that is back in its pool is a bug and fails with ErrBadParameter.
func (b *Buffer[R]) AddRef() error {
	for {
		n := b.refs.Load()
		if n <= 0 {
			return fmt.Errorf("bufpool %s: addref on free buffer %d: %w", b.home.name, b.id, primitive.ErrBadParameter)
		}
		if b.refs.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Release drops one reference. The last release sends the buffer back to
// its home pool.
func (b *Buffer[R]) Release() error {
	for {
		n := b.refs.Load()
		if n <= 0 {
			return fmt.Errorf("bufpool %s: release of free buffer %d: %w", b.home.name, b.id, primitive.ErrBadParameter)
		}
		if b.refs.CompareAndSwap(n, n-1) {
			if n == 1 {
				return b.home.put(b)
			}
			return nil
		}
	}
}

// MarkStart records the start of processing.
func (b *Buffer[R]) MarkStart() {
	b.start.Store(time.Now().UnixNano())
}

// MarkEnd records the end of processing.
func (b *Buffer[R]) MarkEnd() {
	b.end.Store(time.Now().UnixNano())
}

// Elapsed returns the time between MarkStart and MarkEnd, or zero if
// either is missing.
func (b *Buffer[R]) Elapsed() time.Duration {
	s, e := b.start.Load(), b.end.Load()
	if s == 0 || e < s {
		return 0
	}
	return time.Duration(e - s)
}

func (b *Buffer[R]) resetTimes() {
	b.start.Store(0)
	b.end.Store(0)
}
