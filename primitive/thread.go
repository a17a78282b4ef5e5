package primitive

import (
	"fmt"
	"runtime"
	"time"

	"github.com/wjhtinger/NV-samples-sub002/internal/osthread"
)

// ThreadOption configures a Thread.
type ThreadOption func(*threadConfig)

type threadConfig struct {
	osthread.Config
}

// WithThreadName sets the kernel-visible name of the thread (Linux only,
// truncated to 15 bytes).
func WithThreadName(name string) ThreadOption {
	return func(cfg *threadConfig) {
		cfg.Name = name
	}
}

// WithThreadPriority sets the nice value of the thread at start.
func WithThreadPriority(nice int) ThreadOption {
	return func(cfg *threadConfig) {
		cfg.Priority = nice
		cfg.HasPriority = true
	}
}

// WithThreadCPU pins the thread to one CPU. Ids beyond the CPU count wrap.
func WithThreadCPU(cpu int) ThreadOption {
	return func(cfg *threadConfig) {
		cfg.CPU = cpu
	}
}

// Thread runs a function on a dedicated OS thread. Unlike a plain
// goroutine, it has a thread id, a name and a scheduling priority that can
// be inspected and changed while it runs.
type Thread struct {
	name string
	tid  int
	done chan struct{}
}

// NewThread starts fn on its own locked OS thread with the given
// attributes applied. It returns once the attributes are in place, or with
// an error if any of them could not be applied, in which case fn never runs.
//
// Example:
//
//	th, err := primitive.NewThread(loop,
//	    primitive.WithThreadName("capture"),
//	    primitive.WithThreadCPU(2),
//	)
//	if err != nil {
//	    return err
//	}
//	defer th.Join(primitive.Forever)
func NewThread(fn func(), opts ...ThreadOption) (*Thread, error) {
	if fn == nil {
		return nil, fmt.Errorf("thread: nil function: %w", ErrBadParameter)
	}

	cfg := &threadConfig{Config: osthread.Config{CPU: -1}}
	for _, opt := range opts {
		opt(cfg)
	}

	t := &Thread{
		name: cfg.Name,
		done: make(chan struct{}),
	}
	started := make(chan error, 1)

	go func() {
		defer close(t.done)

		// Never unlocked: a thread with modified attributes is torn down
		// with the goroutine instead of returning to the scheduler.
		runtime.LockOSThread()
		if !cfg.Modified() {
			defer runtime.UnlockOSThread()
		}

		tid, err := osthread.Setup(cfg.Config)
		t.tid = tid
		started <- err
		if err != nil {
			return
		}
		fn()
	}()

	if err := <-started; err != nil {
		<-t.done
		return nil, fmt.Errorf("thread %q: %w: %w", cfg.Name, ErrFailed, err)
	}
	return t, nil
}

// Tid returns the kernel thread id (0 where unavailable).
func (t *Thread) Tid() int {
	return t.tid
}

// Name returns the name given at creation.
func (t *Thread) Name() string {
	return t.name
}

// Priority returns the current nice value of the thread.
func (t *Thread) Priority() (int, error) {
	return osthread.Priority(t.tid)
}

// SetPriority changes the nice value of the running thread.
func (t *Thread) SetPriority(nice int) error {
	select {
	case <-t.done:
		return fmt.Errorf("thread %q has exited: %w", t.name, ErrBadParameter)
	default:
	}
	return osthread.SetPriority(t.tid, nice)
}

// Done is closed when the thread function returns.
func (t *Thread) Done() <-chan struct{} {
	return t.done
}

// Join waits for the thread function to return.
func (t *Thread) Join(timeout time.Duration) error {
	if timeout == NoWait {
		select {
		case <-t.done:
			return nil
		default:
			return ErrTimedOut
		}
	}

	expired, stop := deadline(timeout)
	defer stop()

	select {
	case <-t.done:
		return nil
	case <-expired:
		return ErrTimedOut
	}
}

// Yield gives up the processor so other goroutines can run.
func Yield() {
	runtime.Gosched()
}
