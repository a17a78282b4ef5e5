package primitive

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Semaphore is a counting semaphore with a ceiling. Increment past the
// ceiling is silently ignored, which lets a producer signal "one more
// item" without tracking whether a consumer already saw it.
type Semaphore struct {
	mu     sync.Mutex
	count  int
	max    int
	closed bool

	// wake is closed and replaced whenever count grows, releasing every
	// waiter to recheck.
	wake chan struct{}
}

// NewSemaphore creates a semaphore holding initial permits, capped at max.
//
// Parameters:
//   - initial: starting count; values above max are clamped to max
//   - max: ceiling, must be positive
//
// Returns ErrBadParameter when max <= 0 or initial < 0.
func NewSemaphore(initial, max int) (*Semaphore, error) {
	if max <= 0 || initial < 0 {
		return nil, fmt.Errorf("semaphore initial=%d max=%d: %w", initial, max, ErrBadParameter)
	}

	return &Semaphore{
		count: min(initial, max),
		max:   max,
		wake:  make(chan struct{}),
	}, nil
}

// Increment adds one permit unless the count already sits at the ceiling.
// Waiters are woken only when the count actually grew.
func (s *Semaphore) Increment() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.count >= s.max {
		return
	}
	s.count++
	close(s.wake)
	s.wake = make(chan struct{})
}

// Decrement takes one permit, waiting up to timeout for it.
func (s *Semaphore) Decrement(timeout time.Duration) error {
	return s.DecrementContext(context.Background(), timeout)
}

// DecrementContext takes one permit, waiting up to timeout or until ctx is
// done.
//
// Returns:
//   - nil when a permit was taken
//   - ErrTimedOut when the budget elapsed (immediately for NoWait)
//   - ErrClosed when the semaphore was closed
//   - ctx.Err() when the context ended first
func (s *Semaphore) DecrementContext(ctx context.Context, timeout time.Duration) error {
	var (
		expired <-chan time.Time
		stop    func()
	)

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ErrClosed
		}
		if s.count > 0 {
			s.count--
			s.mu.Unlock()
			if stop != nil {
				stop()
			}
			return nil
		}
		if timeout == NoWait {
			s.mu.Unlock()
			return ErrTimedOut
		}
		wake := s.wake
		s.mu.Unlock()

		if stop == nil {
			expired, stop = deadline(timeout)
		}

		select {
		case <-wake:
		case <-expired:
			stop()
			return ErrTimedOut
		case <-ctx.Done():
			stop()
			return ctx.Err()
		}
	}
}

// Count returns the current number of permits.
func (s *Semaphore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Max returns the ceiling.
func (s *Semaphore) Max() int {
	return s.max
}

// Close fails all current and future waiters with ErrClosed. Closing twice
// is a no-op.
func (s *Semaphore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.wake)
}
