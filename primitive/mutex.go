package primitive

import (
	"context"
	"time"
)

// Mutex is a non-recursive lock whose acquire can be bounded by a timeout
// or cancelled by a context, which sync.Mutex cannot.
//
// The zero value is not usable; create one with NewMutex.
type Mutex struct {
	ch chan struct{}
}

// NewMutex returns an unlocked Mutex.
func NewMutex() *Mutex {
	return &Mutex{ch: make(chan struct{}, 1)}
}

// Acquire blocks until the lock is held.
func (m *Mutex) Acquire() {
	m.ch <- struct{}{}
}

// TryAcquire takes the lock if it is free and reports whether it did.
func (m *Mutex) TryAcquire() bool {
	select {
	case m.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// AcquireTimeout waits up to timeout for the lock. It returns ErrTimedOut
// when the budget runs out.
func (m *Mutex) AcquireTimeout(timeout time.Duration) error {
	return m.AcquireContext(context.Background(), timeout)
}

// AcquireContext is AcquireTimeout that also gives up when ctx is done,
// returning ctx.Err().
func (m *Mutex) AcquireContext(ctx context.Context, timeout time.Duration) error {
	if m.TryAcquire() {
		return nil
	}
	if timeout == NoWait {
		return ErrTimedOut
	}

	expired, stop := deadline(timeout)
	defer stop()

	select {
	case m.ch <- struct{}{}:
		return nil
	case <-expired:
		return ErrTimedOut
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release unlocks the mutex. Releasing an unlocked mutex panics.
func (m *Mutex) Release() {
	select {
	case <-m.ch:
	default:
		panic("primitive: release of unlocked mutex")
	}
}
