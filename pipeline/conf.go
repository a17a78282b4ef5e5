package pipeline

import (
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wjhtinger/NV-samples-sub002/bufpool"
	"github.com/wjhtinger/NV-samples-sub002/internal/backoff"
	"github.com/wjhtinger/NV-samples-sub002/primitive"
)

// BackoffKind selects how a stage paces retries of a put that timed out.
type BackoffKind = backoff.Kind

const (
	// BackoffExponential doubles the pause after each failed put (default).
	BackoffExponential = backoff.Exponential
	// BackoffJittered adds +/-10% jitter to the exponential pause.
	BackoffJittered = backoff.Jittered
	// BackoffDecorrelated uses decorrelated jitter.
	BackoffDecorrelated = backoff.Decorrelated
	// BackoffNone retries immediately; the put timeout alone paces it.
	BackoffNone = backoff.None
)

// DefaultTimeout is the default wait budget for stage gets and puts.
const DefaultTimeout = 100 * time.Millisecond

// StageOption configures a Stage.
type StageOption func(*stageConfig)

type stageConfig struct {
	getTimeout time.Duration
	putTimeout time.Duration
	maxItems   int64
	dropOnFull bool
	limiter    *rate.Limiter

	backoffKind    backoff.Kind
	backoffInitial time.Duration
	backoffMax     time.Duration
	backoffJitter  float64

	threadOpts []primitive.ThreadOption
	logger     *zap.Logger

	releaseIn, releaseOut     any
	beforeItem, onItemEnd     any
	releaseInType             string
	releaseOutType            string
	beforeItemType            string
	onItemEndIn, onItemEndOut string
}

// WithGetTimeout bounds each wait on the input. A timeout is not an error;
// the stage simply checks quit and waits again.
func WithGetTimeout(d time.Duration) StageOption {
	return func(cfg *stageConfig) {
		cfg.getTimeout = d
	}
}

// WithPutTimeout bounds each attempt to hand an item to the output.
func WithPutTimeout(d time.Duration) StageOption {
	return func(cfg *stageConfig) {
		cfg.putTimeout = d
	}
}

// WithMaxItems stops the stage after n items were completed (forwarded,
// or consumed by a stage with no output). The rest of the pipeline keeps
// running.
func WithMaxItems(n int) StageOption {
	return func(cfg *stageConfig) {
		if n > 0 {
			cfg.maxItems = int64(n)
		}
	}
}

// WithDropOnFull releases the output on its first put timeout instead of
// retrying. This is the frame-drop policy of a live source that must never
// stall behind a slow consumer.
func WithDropOnFull() StageOption {
	return func(cfg *stageConfig) {
		cfg.dropOnFull = true
	}
}

// WithRateLimit caps how many items per second the stage takes from its
// input.
//
// Example:
//
//	WithRateLimit(30, 1) // 30 frames/sec, no burst
func WithRateLimit(perSecond float64, burst int) StageOption {
	return func(cfg *stageConfig) {
		if perSecond > 0 && burst > 0 {
			cfg.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithBackoff configures the pause between put retries. Defaults to
// BackoffExponential from 5ms to 200ms.
func WithBackoff(kind BackoffKind, initial, max time.Duration) StageOption {
	return func(cfg *stageConfig) {
		cfg.backoffKind = kind
		cfg.backoffInitial = initial
		cfg.backoffMax = max
	}
}

// WithThread runs the stage loop on a dedicated OS thread with the given
// attributes instead of a plain goroutine.
func WithThread(opts ...primitive.ThreadOption) StageOption {
	return func(cfg *stageConfig) {
		cfg.threadOpts = append([]primitive.ThreadOption{}, opts...)
	}
}

// WithLogger sets the stage logger. Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) StageOption {
	return func(cfg *stageConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithRelease sets how the stage gives an input item back to its owner.
// It runs exactly once per item taken from the input, whatever the outcome
// of the handler. T must match the stage's input type.
func WithRelease[T any](fn func(T) error) StageOption {
	return func(cfg *stageConfig) {
		cfg.releaseIn = fn
		cfg.releaseInType = typeName[T]()
	}
}

// WithOutputRelease sets how the stage disposes of an output item that
// could not be forwarded. T must match the stage's output type.
func WithOutputRelease[T any](fn func(T) error) StageOption {
	return func(cfg *stageConfig) {
		cfg.releaseOut = fn
		cfg.releaseOutType = typeName[T]()
	}
}

// WithBeforeItem registers a hook called with each input before the
// handler runs.
func WithBeforeItem[T any](fn func(T)) StageOption {
	return func(cfg *stageConfig) {
		cfg.beforeItem = fn
		cfg.beforeItemType = typeName[T]()
	}
}

// WithOnItemEnd registers a hook called after the handler with its input,
// output and error.
func WithOnItemEnd[In, Out any](fn func(In, Out, error)) StageOption {
	return func(cfg *stageConfig) {
		cfg.onItemEnd = fn
		cfg.onItemEndIn = typeName[In]()
		cfg.onItemEndOut = typeName[Out]()
	}
}

// BufferRelease returns a release function for pooled buffers, usable
// with WithRelease and WithOutputRelease.
func BufferRelease[R any]() func(*bufpool.Buffer[R]) error {
	return func(b *bufpool.Buffer[R]) error {
		if b == nil {
			return fmt.Errorf("release of nil buffer: %w", primitive.ErrBadParameter)
		}
		return b.Release()
	}
}

func createStageConfig(opts ...StageOption) *stageConfig {
	cfg := &stageConfig{
		getTimeout:     DefaultTimeout,
		putTimeout:     DefaultTimeout,
		backoffKind:    BackoffExponential,
		backoffInitial: 5 * time.Millisecond,
		backoffMax:     200 * time.Millisecond,
		backoffJitter:  0.1,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

type stageFuncs[In, Out any] struct {
	releaseIn  func(In) error
	releaseOut func(Out) error
	beforeItem func(In)
	onItemEnd  func(In, Out, error)
}

// checkfuncs recovers the typed callbacks stored in cfg, panicking when a
// callback was registered for a different item type than the stage uses.
func checkfuncs[In, Out any](name string, cfg *stageConfig) stageFuncs[In, Out] {
	var f stageFuncs[In, Out]
	inType, outType := typeName[In](), typeName[Out]()

	if cfg.releaseIn != nil {
		if cfg.releaseInType != inType {
			panic(fmt.Sprintf("stage %s: WithRelease expects %s, but the stage takes %s", name, cfg.releaseInType, inType))
		}
		f.releaseIn = cfg.releaseIn.(func(In) error)
	}
	if cfg.releaseOut != nil {
		if cfg.releaseOutType != outType {
			panic(fmt.Sprintf("stage %s: WithOutputRelease expects %s, but the stage produces %s", name, cfg.releaseOutType, outType))
		}
		f.releaseOut = cfg.releaseOut.(func(Out) error)
	}
	if cfg.beforeItem != nil {
		if cfg.beforeItemType != inType {
			panic(fmt.Sprintf("stage %s: WithBeforeItem expects %s, but the stage takes %s", name, cfg.beforeItemType, inType))
		}
		f.beforeItem = cfg.beforeItem.(func(In))
	}
	if cfg.onItemEnd != nil {
		if cfg.onItemEndIn != inType || cfg.onItemEndOut != outType {
			panic(fmt.Sprintf("stage %s: WithOnItemEnd expects (%s, %s), but the stage maps %s to %s",
				name, cfg.onItemEndIn, cfg.onItemEndOut, inType, outType))
		}
		f.onItemEnd = cfg.onItemEnd.(func(In, Out, error))
	}
	return f
}

func typeName[T any]() string {
	return reflect.TypeFor[T]().String()
}
