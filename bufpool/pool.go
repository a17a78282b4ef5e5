// Package bufpool implements a fixed set of pre-built resources handed out
// and returned through a bounded queue.
//
// All resources are constructed by New before it returns; none are created
// or freed while the pool is in use. A consumer that finds the pool empty
// waits (up to its timeout) for another consumer to release a buffer,
// which bounds memory and makes back-pressure explicit.
//
// Basic usage:
//
//	pool, err := bufpool.New(6, func(int) ([]byte, error) {
//	    return make([]byte, frameSize), nil
//	}, bufpool.WithName("raw"))
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	buf, err := pool.AcquireTimeout(100 * time.Millisecond)
//	if err != nil {
//	    return err
//	}
//	defer buf.Release()
package bufpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wjhtinger/NV-samples-sub002/internal/debuglog"
	"github.com/wjhtinger/NV-samples-sub002/primitive"
	"github.com/wjhtinger/NV-samples-sub002/queue"
)

// MaxCapacity is the largest number of buffers a pool may hold.
const MaxCapacity = 600

// Pool owns capacity resources of type R. Buffers not currently held by
// a consumer sit in the pool's queue.
type Pool[R any] struct {
	name    string
	timeout time.Duration
	cleanup time.Duration
	destroy func(R) error
	logger  *zap.Logger

	free    *queue.Queue[*Buffer[R]]
	buffers []*Buffer[R]

	closed atomic.Bool
	// mu orders late releases against queue teardown in Close.
	mu        sync.RWMutex
	torndown  bool
	destroyed atomic.Int32
}

// New builds a pool of capacity resources, calling alloc once per slot in
// index order. If alloc fails, every resource already built is destroyed
// and the error is returned wrapped with primitive.ErrFailed.
//
// Parameters:
//   - capacity: number of buffers, 1..MaxCapacity
//   - alloc: constructs resource i
//   - opts: WithName, WithTimeout, WithCleanupTimeout, WithDestroy, WithLogger
//
// Returns primitive.ErrBadParameter for an out-of-range capacity, a nil
// alloc, or a WithDestroy function whose type does not match R.
func New[R any](capacity int, alloc func(i int) (R, error), opts ...Option) (*Pool[R], error) {
	cfg := createConfig(opts...)

	if capacity <= 0 || capacity > MaxCapacity {
		return nil, fmt.Errorf("bufpool %s: capacity %d not in 1..%d: %w", cfg.name, capacity, MaxCapacity, primitive.ErrBadParameter)
	}
	if alloc == nil {
		return nil, fmt.Errorf("bufpool %s: nil constructor: %w", cfg.name, primitive.ErrBadParameter)
	}

	var destroy func(R) error
	if cfg.destroy != nil {
		fn, ok := cfg.destroy.(func(R) error)
		if !ok {
			return nil, fmt.Errorf("bufpool %s: destroy is %T, want func(%T) error: %w",
				cfg.name, cfg.destroy, *new(R), primitive.ErrBadParameter)
		}
		destroy = fn
	}

	free, err := queue.New[*Buffer[R]](capacity)
	if err != nil {
		return nil, err
	}

	p := &Pool[R]{
		name:    cfg.name,
		timeout: cfg.timeout,
		cleanup: cfg.cleanupTimeout,
		destroy: destroy,
		logger:  cfg.logger.With(zap.String("pool", cfg.name)),
		free:    free,
		buffers: make([]*Buffer[R], 0, capacity),
	}

	for i := range capacity {
		v, err := alloc(i)
		if err != nil {
			p.logger.Error("buffer allocation failed", zap.Int("index", i), zap.Error(err))
			if cerr := p.Close(); cerr != nil {
				err = errors.Join(err, cerr)
			}
			return nil, fmt.Errorf("bufpool %s: allocate buffer %d: %w: %w", cfg.name, i, primitive.ErrFailed, err)
		}

		b := &Buffer[R]{Value: v, id: i, home: p}
		p.buffers = append(p.buffers, b)
		if err := free.Put(b, primitive.NoWait); err != nil {
			return nil, fmt.Errorf("bufpool %s: seed buffer %d: %w", cfg.name, i, err)
		}
	}

	p.logger.Debug("pool created", zap.Int("capacity", capacity))
	return p, nil
}

// Acquire takes a buffer, waiting up to the pool's configured timeout.
func (p *Pool[R]) Acquire() (*Buffer[R], error) {
	return p.AcquireContext(context.Background(), p.timeout)
}

// AcquireTimeout takes a buffer, waiting up to timeout.
func (p *Pool[R]) AcquireTimeout(timeout time.Duration) (*Buffer[R], error) {
	return p.AcquireContext(context.Background(), timeout)
}

// AcquireContext takes a buffer, waiting up to timeout or until ctx ends.
// The returned buffer carries one reference.
//
// Returns an error matching primitive.ErrTimedOut when no buffer came home
// in time, and primitive.ErrClosed once the pool is closing.
func (p *Pool[R]) AcquireContext(ctx context.Context, timeout time.Duration) (*Buffer[R], error) {
	if p.closed.Load() {
		return nil, fmt.Errorf("bufpool %s: acquire: %w", p.name, primitive.ErrClosed)
	}

	b, err := p.free.GetContext(ctx, timeout)
	if err != nil {
		return nil, fmt.Errorf("bufpool %s: acquire: %w", p.name, err)
	}
	if p.closed.Load() {
		// Close began while we waited; the buffer belongs to its drain.
		if err := p.giveBack(b); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("bufpool %s: acquire: %w", p.name, primitive.ErrClosed)
	}

	b.resetTimes()
	b.refs.Store(1)
	return b, nil
}

// Release drops the caller's reference on b. It rejects nil buffers and
// buffers that belong to another pool.
func (p *Pool[R]) Release(b *Buffer[R]) error {
	if b == nil {
		return fmt.Errorf("bufpool %s: release of nil buffer: %w", p.name, primitive.ErrBadParameter)
	}
	if b.home != p {
		return fmt.Errorf("bufpool %s: buffer %d belongs to pool %s: %w", p.name, b.id, b.home.name, primitive.ErrBadParameter)
	}
	return b.Release()
}

// put returns a buffer whose last reference was dropped.
func (p *Pool[R]) put(b *Buffer[R]) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.torndown {
		p.logger.Warn("buffer returned after close", zap.Int("buffer", b.id))
		return p.free1(b)
	}

	// The queue has room for every buffer, so NoWait can only fail on a
	// bookkeeping bug.
	if err := p.free.Put(b, primitive.NoWait); err != nil {
		return fmt.Errorf("bufpool %s: return buffer %d: %w", p.name, b.id, err)
	}
	return nil
}

// giveBack returns a buffer taken from a closing pool to the head of the
// free queue, or frees it when teardown already ran.
func (p *Pool[R]) giveBack(b *Buffer[R]) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.torndown {
		return p.free1(b)
	}
	debuglog.Printf("bufpool", "%s: buffer %d handed back to closing pool", p.name, b.id)
	if err := p.free.PutFront(b, primitive.NoWait); err != nil {
		return fmt.Errorf("bufpool %s: give back buffer %d: %w", p.name, b.id, err)
	}
	return nil
}

// Do applies fn to every buffer while all of them are home, putting each
// back after the call. It is meant for setup and teardown work such as
// registering buffers with a device, and must not run concurrently with
// consumers.
//
// Returns an error matching primitive.ErrTimedOut if any buffer is
// outstanding, or the first error returned by fn.
func (p *Pool[R]) Do(fn func(*Buffer[R]) error) error {
	if fn == nil {
		return fmt.Errorf("bufpool %s: nil action: %w", p.name, primitive.ErrBadParameter)
	}
	if p.closed.Load() {
		return fmt.Errorf("bufpool %s: do: %w", p.name, primitive.ErrClosed)
	}
	if n := p.Outstanding(); n > 0 {
		return fmt.Errorf("bufpool %s: %d buffers outstanding: %w", p.name, n, primitive.ErrTimedOut)
	}

	for range len(p.buffers) {
		b, err := p.free.Get(primitive.NoWait)
		if err != nil {
			return fmt.Errorf("bufpool %s: do: %w", p.name, err)
		}

		ferr := fn(b)
		if err := p.free.Put(b, primitive.NoWait); err != nil {
			return fmt.Errorf("bufpool %s: do: %w", p.name, err)
		}
		if ferr != nil {
			return fmt.Errorf("bufpool %s: action on buffer %d: %w", p.name, b.id, ferr)
		}
	}
	return nil
}

// Available returns the number of buffers currently in the pool.
func (p *Pool[R]) Available() int {
	return p.free.Len()
}

// Cap returns the number of buffers the pool owns.
func (p *Pool[R]) Cap() int {
	return len(p.buffers)
}

// Outstanding returns the number of buffers held by consumers.
func (p *Pool[R]) Outstanding() int {
	return p.Cap() - p.Available()
}

// Name returns the pool name.
func (p *Pool[R]) Name() string {
	return p.name
}

// Close stops new acquisitions, waits up to the cleanup timeout for every
// buffer to come home and destroys each resource exactly once. Buffers
// still held at the deadline are destroyed when their last reference is
// released, and are reported with an error matching primitive.ErrTimedOut.
// Closing twice returns primitive.ErrClosed.
func (p *Pool[R]) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("bufpool %s: close: %w", p.name, primitive.ErrClosed)
	}

	var errs []error
	deadline := time.Now().Add(p.cleanup)
	home := 0

	for home < len(p.buffers) {
		b, err := p.free.Get(max(time.Until(deadline), primitive.NoWait))
		if err != nil {
			break
		}
		home++
		errs = append(errs, p.free1(b))
	}

	p.mu.Lock()
	for {
		b, ok := p.free.TryGet()
		if !ok {
			break
		}
		home++
		errs = append(errs, p.free1(b))
	}
	p.free.Destroy()
	p.torndown = true
	p.mu.Unlock()
	debuglog.Printf("bufpool", "%s: torn down with %d of %d buffers home", p.name, home, len(p.buffers))

	if missing := len(p.buffers) - home; missing > 0 {
		p.logger.Warn("buffers outstanding at close", zap.Int("outstanding", missing))
		errs = append(errs, fmt.Errorf("bufpool %s: %d of %d buffers outstanding at close: %w",
			p.name, missing, len(p.buffers), primitive.ErrTimedOut))
	}

	p.logger.Debug("pool closed", zap.Int("destroyed", int(p.destroyed.Load())))
	return errors.Join(errs...)
}

// free1 destroys the resource of b if that has not happened yet.
func (p *Pool[R]) free1(b *Buffer[R]) error {
	if !b.freed.CompareAndSwap(false, true) {
		return nil
	}
	p.destroyed.Add(1)
	if p.destroy == nil {
		return nil
	}
	if err := p.destroy(b.Value); err != nil {
		return fmt.Errorf("bufpool %s: destroy buffer %d: %w", p.name, b.id, err)
	}
	return nil
}
