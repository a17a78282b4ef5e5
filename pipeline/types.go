package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/wjhtinger/NV-samples-sub002/primitive"
)

// ErrSkip tells the stage the handler consumed the item and nothing should
// be forwarded. It is not a failure.
var ErrSkip = errors.New("pipeline: skip item")

// Handler turns one input item into one output item. The Out value is
// ignored when err is non-nil; a handler that acquired an output resource
// before failing must release it itself.
type Handler[In, Out any] func(ctx context.Context, in In) (Out, error)

// Source yields items to a stage.
type Source[T any] interface {
	GetContext(ctx context.Context, timeout time.Duration) (T, error)
}

// Sink accepts items from a stage.
type Sink[T any] interface {
	PutContext(ctx context.Context, item T, timeout time.Duration) error
}

// drainable is implemented by sources that can hand back queued items
// without blocking (queue.Queue). Pool sources are deliberately not
// drainable: their items are already home.
type drainable[T any] interface {
	TryGet() (T, bool)
}

// Runner is a stage as seen by a Pipeline.
type Runner interface {
	Name() string
	State() State
	Exited() *primitive.Event
	Stats() StageStats

	start(ctx context.Context) error
	drain() int
}

// State is the lifecycle position of a stage.
type State int32

const (
	// StateIdle is a stage that has not been started.
	StateIdle State = iota
	// StateRunning is a stage processing items.
	StateRunning
	// StateDraining is a stage that saw quit and is giving back what it holds.
	StateDraining
	// StateExited is a stage whose loop has returned.
	StateExited
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}
