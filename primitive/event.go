package primitive

import (
	"context"
	"sync"
	"time"
)

// Event is a binary signal. A manual-reset event stays set until Reset;
// an auto-reset event is consumed by the first waiter that observes it.
type Event struct {
	mu     sync.Mutex
	manual bool
	set    bool
	wake   chan struct{}
}

// NewEvent creates an event with the given reset mode and initial state.
func NewEvent(manual, set bool) *Event {
	return &Event{
		manual: manual,
		set:    set,
		wake:   make(chan struct{}),
	}
}

// Set signals the event and wakes every waiter. With auto-reset only one
// of them consumes it; the others go back to waiting.
func (e *Event) Set() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.set {
		return
	}
	e.set = true
	close(e.wake)
	e.wake = make(chan struct{})
}

// Reset clears the event.
func (e *Event) Reset() {
	e.mu.Lock()
	e.set = false
	e.mu.Unlock()
}

// IsSet reports the state without consuming an auto-reset event.
func (e *Event) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.set
}

// Wait blocks until the event is set or timeout elapses.
func (e *Event) Wait(timeout time.Duration) error {
	return e.WaitContext(context.Background(), timeout)
}

// WaitContext blocks until the event is set, timeout elapses (ErrTimedOut)
// or ctx is done (ctx.Err()).
func (e *Event) WaitContext(ctx context.Context, timeout time.Duration) error {
	var (
		expired <-chan time.Time
		stop    func()
	)

	for {
		e.mu.Lock()
		if e.set {
			if !e.manual {
				e.set = false
			}
			e.mu.Unlock()
			if stop != nil {
				stop()
			}
			return nil
		}
		if timeout == NoWait {
			e.mu.Unlock()
			return ErrTimedOut
		}
		wake := e.wake
		e.mu.Unlock()

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
