package bufpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wjhtinger/NV-samples-sub002/primitive"
)

func TestNew_Validation(t *testing.T) {
	alloc := func(i int) (int, error) { return i, nil }

	tests := []struct {
		name     string
		capacity int
		alloc    func(int) (int, error)
		opts     []Option
	}{
		{name: "zero capacity", capacity: 0, alloc: alloc},
		{name: "over max", capacity: MaxCapacity + 1, alloc: alloc},
		{name: "nil alloc", capacity: 2, alloc: nil},
		{name: "mismatched destroy", capacity: 2, alloc: alloc, opts: []Option{WithDestroy(func(string) error { return nil })}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.capacity, tt.alloc, tt.opts...); !errors.Is(err, primitive.ErrBadParameter) {
				t.Errorf("expected ErrBadParameter, got %v", err)
			}
		})
	}

	t.Run("max capacity accepted", func(t *testing.T) {
		p, err := New(MaxCapacity, alloc)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Available() != MaxCapacity {
			t.Errorf("expected %d available, got %d", MaxCapacity, p.Available())
		}
		_ = p.Close()
	})
}

func TestNew_AllocFailureDestroysBuilt(t *testing.T) {
	tr := newTracker()
	boom := errors.New("no device memory")

	_, err := New(5, func(i int) (int, error) {
		if i == 3 {
			return 0, boom
		}
		return tr.alloc(i)
	}, WithDestroy(tr.destroy))

	if !errors.Is(err, boom) || !errors.Is(err, primitive.ErrFailed) {
		t.Fatalf("expected wrapped constructor error, got %v", err)
	}
	for i := range 3 {
		if n := tr.destroyCount(i); n != 1 {
			t.Errorf("resource %d destroyed %d times, expected 1", i, n)
		}
	}
}

func TestPool_AcquireRelease(t *testing.T) {
	p, _ := newTestPool(t, 3)
	defer p.Close()

	b, err := p.AcquireTimeout(primitive.NoWait)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if b.Refs() != 1 {
		t.Errorf("expected 1 ref on fresh buffer, got %d", b.Refs())
	}
	if b.Home() != p {
		t.Error("expected buffer home to be its pool")
	}
	if p.Available() != 2 || p.Outstanding() != 1 {
		t.Errorf("expected 2 available 1 outstanding, got %d %d", p.Available(), p.Outstanding())
	}

	if err := b.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if p.Available() != 3 {
		t.Errorf("expected occupancy restored to 3, got %d", p.Available())
	}

	if err := b.Release(); !errors.Is(err, primitive.ErrBadParameter) {
		t.Errorf("expected ErrBadParameter on double release, got %v", err)
	}
	if err := b.AddRef(); !errors.Is(err, primitive.ErrBadParameter) {
		t.Errorf("expected ErrBadParameter on AddRef of free buffer, got %v", err)
	}
}

func TestPool_Exhaustion(t *testing.T) {
	p, _ := newTestPool(t, 2, WithTimeout(20*time.Millisecond))
	defer p.Close()

	a, _ := p.Acquire()
	b, _ := p.Acquire()
	if a.ID() == b.ID() {
		t.Fatalf("same buffer %d issued twice", a.ID())
	}

	start := time.Now()
	if _, err := p.Acquire(); !errors.Is(err, primitive.ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut on empty pool, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("expected pool timeout to be honored, returned after %v", elapsed)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = a.Release()
	}()
	c, err := p.AcquireTimeout(primitive.Forever)
	if err != nil {
		t.Fatalf("expected buffer after release, got %v", err)
	}
	if c.ID() != a.ID() {
		t.Errorf("expected released buffer %d, got %d", a.ID(), c.ID())
	}
	_ = b.Release()
	_ = c.Release()
}

func TestPool_AcquireContext(t *testing.T) {
	p, _ := newTestPool(t, 1)
	defer p.Close()

	b, _ := p.Acquire()
	defer b.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.AcquireContext(ctx, primitive.Forever); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestPool_RefCounting(t *testing.T) {
	p, _ := newTestPool(t, 1)
	defer p.Close()

	b, _ := p.Acquire()
	if err := b.AddRef(); err != nil {
		t.Fatalf("AddRef failed: %v", err)
	}

	_ = b.Release()
	if p.Available() != 0 {
		t.Fatal("buffer returned home while a reference was still held")
	}
	_ = b.Release()
	if p.Available() != 1 {
		t.Fatal("buffer not returned home after last release")
	}
}

func TestPool_ReleaseForeign(t *testing.T) {
	p1, _ := newTestPool(t, 1)
	p2, _ := newTestPool(t, 1)
	defer p1.Close()
	defer p2.Close()

	b, _ := p1.Acquire()
	defer b.Release()

	if err := p2.Release(b); !errors.Is(err, primitive.ErrBadParameter) {
		t.Errorf("expected ErrBadParameter for foreign buffer, got %v", err)
	}
	if err := p2.Release(nil); !errors.Is(err, primitive.ErrBadParameter) {
		t.Errorf("expected ErrBadParameter for nil buffer, got %v", err)
	}
	if p1.Available() != 0 || p2.Available() != 1 {
		t.Error("rejected release changed pool occupancy")
	}
}

func TestPool_Timestamps(t *testing.T) {
	p, _ := newTestPool(t, 1)
	defer p.Close()

	b, _ := p.Acquire()
	if b.Elapsed() != 0 {
		t.Error("expected zero elapsed before marks")
	}
	b.MarkStart()
	time.Sleep(5 * time.Millisecond)
	b.MarkEnd()
	if b.Elapsed() < 5*time.Millisecond {
		t.Errorf("expected at least 5ms elapsed, got %v", b.Elapsed())
	}
	_ = b.Release()

	b, _ = p.Acquire()
	if b.Elapsed() != 0 {
		t.Error("expected timestamps reset on acquire")
	}
	_ = b.Release()
}

func TestPool_Do(t *testing.T) {
	p, _ := newTestPool(t, 4)
	defer p.Close()

	t.Run("visits every buffer once", func(t *testing.T) {
		seen := make(map[int]int)
		err := p.Do(func(b *Buffer[int]) error {
			seen[b.ID()]++
			return nil
		})
		if err != nil {
			t.Fatalf("Do failed: %v", err)
		}
		for i := range 4 {
			if seen[i] != 1 {
				t.Errorf("buffer %d visited %d times", i, seen[i])
			}
		}
		if p.Available() != 4 {
			t.Errorf("expected all buffers home after Do, got %d", p.Available())
		}
	})

	t.Run("stops on action error", func(t *testing.T) {
		boom := errors.New("register failed")
		calls := 0
		err := p.Do(func(*Buffer[int]) error {
			calls++
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected action error, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
		if p.Available() != 4 {
			t.Errorf("expected buffer put back after failed action, got %d available", p.Available())
		}
	})

	t.Run("requires all buffers home", func(t *testing.T) {
		b, _ := p.Acquire()
		defer b.Release()
		if err := p.Do(func(*Buffer[int]) error { return nil }); !errors.Is(err, primitive.ErrTimedOut) {
			t.Errorf("expected ErrTimedOut with a buffer outstanding, got %v", err)
		}
	})
}

func TestPool_Close(t *testing.T) {
	t.Run("destroys every resource once", func(t *testing.T) {
		p, tr := newTestPool(t, 5)
		b, _ := p.Acquire()
		_ = b.Release()

		if err := p.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		for i := range 5 {
			if n := tr.destroyCount(i); n != 1 {
				t.Errorf("resource %d destroyed %d times", i, n)
			}
		}
		if err := p.Close(); !errors.Is(err, primitive.ErrClosed) {
			t.Errorf("expected ErrClosed on second Close, got %v", err)
		}
		if _, err := p.Acquire(); !errors.Is(err, primitive.ErrClosed) {
			t.Errorf("expected ErrClosed on acquire after Close, got %v", err)
		}
	})

	t.Run("waits for outstanding buffer", func(t *testing.T) {
		p, tr := newTestPool(t, 2, WithCleanupTimeout(time.Second))
		b, _ := p.Acquire()

		go func() {
			time.Sleep(20 * time.Millisecond)
			_ = b.Release()
		}()
		if err := p.Close(); err != nil {
			t.Fatalf("expected clean close once buffer returned, got %v", err)
		}
		if tr.destroyCount(b.Value) != 1 {
			t.Error("returned buffer not destroyed")
		}
	})

	t.Run("reports leaked buffer and frees it on late release", func(t *testing.T) {
		p, tr := newTestPool(t, 2, WithCleanupTimeout(10*time.Millisecond))
		b, _ := p.Acquire()

		err := p.Close()
		if !errors.Is(err, primitive.ErrTimedOut) {
			t.Fatalf("expected ErrTimedOut for leaked buffer, got %v", err)
		}
		if tr.destroyCount(b.Value) != 0 {
			t.Fatal("held buffer destroyed while still in use")
		}

		if err := b.Release(); err != nil {
			t.Fatalf("late release failed: %v", err)
		}
		if tr.destroyCount(b.Value) != 1 {
			t.Error("late-released buffer not destroyed")
		}
	})
}

// An acquirer already waiting when Close starts must not walk away with a
// buffer from the closing pool.
func TestPool_CloseWithBlockedAcquirer(t *testing.T) {
	for i := range 10 {
		t.Run(fmt.Sprintf("run %d", i), func(t *testing.T) {
			p, tr := newTestPool(t, 1, WithCleanupTimeout(time.Second))
			held, err := p.Acquire()
			if err != nil {
				t.Fatalf("Acquire failed: %v", err)
			}

			acquired := make(chan error, 1)
			go func() {
				b, err := p.AcquireTimeout(primitive.Forever)
				if err == nil {
					_ = b.Release()
				}
				acquired <- err
			}()
			time.Sleep(10 * time.Millisecond)

			closed := make(chan error, 1)
			go func() { closed <- p.Close() }()
			time.Sleep(10 * time.Millisecond)

			if err := held.Release(); err != nil {
				t.Fatalf("Release failed: %v", err)
			}

			select {
			case err := <-acquired:
				if !errors.Is(err, primitive.ErrClosed) {
					t.Errorf("expected ErrClosed for waiting acquirer, got %v", err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("waiting acquirer never returned")
			}

			if err := <-closed; err != nil {
				t.Errorf("expected clean close, got %v", err)
			}
			if n := tr.destroyCount(held.Value); n != 1 {
				t.Errorf("buffer destroyed %d times, expected 1", n)
			}
		})
	}
}

// Concurrent consumers never hold more than capacity buffers and never
// share one.
func TestPool_ConcurrentNoDoubleIssue(t *testing.T) {
	const capacity = 4
	p, _ := newTestPool(t, capacity)
	defer p.Close()

	var (
		held    [capacity]atomic.Int32
		inUse   atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
		errMu   sync.Mutex
		errs    []error
	)

	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				b, err := p.AcquireTimeout(time.Second)
				if err != nil {
					errMu.Lock()
					errs = append(errs, fmt.Errorf("worker %d: %w", w, err))
					errMu.Unlock()
					return
				}
				if held[b.ID()].Add(1) != 1 {
					errMu.Lock()
					errs = append(errs, fmt.Errorf("buffer %d issued twice", b.ID()))
					errMu.Unlock()
				}
				n := inUse.Add(1)
				for {
					m := maxSeen.Load()
					if n <= m || maxSeen.CompareAndSwap(m, n) {
						break
					}
				}
				primitive.Yield()
				inUse.Add(-1)
				held[b.ID()].Add(-1)
				_ = b.Release()
			}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		t.Error(err)
	}
	if maxSeen.Load() > capacity {
		t.Errorf("observed %d buffers outstanding, capacity %d", maxSeen.Load(), capacity)
	}
	if p.Available() != capacity {
		t.Errorf("expected all %d buffers home, got %d", capacity, p.Available())
	}
}
