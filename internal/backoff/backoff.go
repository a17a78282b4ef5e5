// Package backoff computes the pause a pipeline stage takes between
// attempts to hand an item to a downstream queue that keeps timing out.
package backoff

import (
	"math/rand"
	"sync"
	"time"
)

// maxShift keeps 1<<attempt inside an int64.
const maxShift = 62

// Kind selects the delay curve.
type Kind int

const (
	// Exponential doubles the delay on every attempt (default).
	Exponential Kind = iota
	// Jittered spreads each exponential delay by +/- a jitter fraction so
	// several producers stuck on the same queue do not retry in lockstep.
	Jittered
	// Decorrelated draws each delay from [initial, 3*previous].
	Decorrelated
	// None never waits; the put timeout alone paces retries.
	None
)

func (k Kind) String() string {
	switch k {
	case Exponential:
		return "exponential"
	case Jittered:
		return "jittered"
	case Decorrelated:
		return "decorrelated"
	case None:
		return "none"
	default:
		return "unknown"
	}
}

// Strategy yields retry delays. Attempt is zero-based: attempt 0 is the
// pause after the first failed put.
type Strategy interface {
	Next(attempt int) time.Duration
	// Reset forgets per-item history. Called once an item is delivered.
	Reset()
}

// New builds a Strategy. Non-positive delays produce a strategy that
// never waits, and max is raised to initial when it is smaller.
func New(kind Kind, initial, max time.Duration, jitter float64) Strategy {
	if initial <= 0 || kind == None {
		return noWait{}
	}
	if max < initial {
		max = initial
	}

	switch kind {
	case Jittered:
		return &jittered{
			initial: initial,
			max:     max,
			factor:  clamp(jitter, 0, 1),
			rng:     rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- retry jitter only
		}
	case Decorrelated:
		return &decorrelated{
			initial: initial,
			max:     max,
			prev:    initial,
			rng:     rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- retry jitter only
		}
	default:
		return exponential{initial: initial, max: max}
	}
}

type noWait struct{}

func (noWait) Next(int) time.Duration { return 0 }
func (noWait) Reset()                 {}

type exponential struct {
	initial, max time.Duration
}

func (e exponential) Next(attempt int) time.Duration {
	return scaled(attempt, e.initial, e.max)
}

func (exponential) Reset() {}

// jittered multiplies the exponential delay by a factor drawn from
// [1-factor, 1+factor].
type jittered struct {
	initial, max time.Duration
	factor       float64

	mu  sync.Mutex
	rng *rand.Rand
}

func (j *jittered) Next(attempt int) time.Duration {
	if attempt < 0 {
		return 0
	}
	base := scaled(attempt, j.initial, j.max)

	j.mu.Lock()
	mult := 1 + (j.rng.Float64()*2-1)*j.factor
	j.mu.Unlock()

	return clamp(time.Duration(float64(base)*mult), 0, j.max)
}

func (*jittered) Reset() {}

// decorrelated follows sleep = min(max, rand(initial, prev*3)). Each delay
// depends on the previous one rather than on the attempt number.
type decorrelated struct {
	initial, max time.Duration

	mu   sync.Mutex
	prev time.Duration
	rng  *rand.Rand
}

func (d *decorrelated) Next(attempt int) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	if attempt <= 0 {
		d.prev = d.initial
		return d.initial
	}

	upper := min(d.prev*3, d.max)
	span := upper - d.initial
	if span <= 0 {
		d.prev = d.initial
		return d.initial
	}

	d.prev = d.initial + time.Duration(d.rng.Int63n(int64(span)))
	return d.prev
}

func (d *decorrelated) Reset() {
	d.mu.Lock()
	d.prev = d.initial
	d.mu.Unlock()
}

// scaled returns initial * 2^attempt capped at max.
func scaled(attempt int, initial, max time.Duration) time.Duration {
	if attempt < 0 {
		return 0
	}
	if attempt >= maxShift {
		return max
	}

	d := time.Duration(int64(1)<<uint(attempt)) * initial
	if d > max || d < 0 {
		return max
	}
	return d
}

func clamp[T int | int64 | float64 | time.Duration](v, lo, hi T) T {
	return max(lo, min(v, hi))
}
