package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wjhtinger/NV-samples-sub002/internal/backoff"
	"github.com/wjhtinger/NV-samples-sub002/internal/debuglog"
	"github.com/wjhtinger/NV-samples-sub002/primitive"
)

// Stage is one worker loop of a pipeline, mapping In items from its input
// to Out items on its output.
type Stage[In, Out any] struct {
	name    string
	handler Handler[In, Out]
	conf    *stageConfig
	funcs   stageFuncs[In, Out]
	backoff backoff.Strategy
	logger  *zap.Logger

	input  Source[In]
	output Sink[Out]

	state  atomic.Int32
	exited *primitive.Event
	stats  counters
}

// NewStage creates a stage. Input and output are wired separately with
// SetInput and SetOutput; a stage without an output is a sink and disposes
// of every handler result through WithOutputRelease, if set.
//
// NewStage panics if handler is nil or if a typed option does not match
// In or Out.
func NewStage[In, Out any](name string, handler Handler[In, Out], opts ...StageOption) *Stage[In, Out] {
	if handler == nil {
		panic(fmt.Sprintf("stage %s: nil handler", name))
	}

	cfg := createStageConfig(opts...)
	return &Stage[In, Out]{
		name:    name,
		handler: handler,
		conf:    cfg,
		funcs:   checkfuncs[In, Out](name, cfg),
		backoff: backoff.New(cfg.backoffKind, cfg.backoffInitial, cfg.backoffMax, cfg.backoffJitter),
		logger:  cfg.logger.With(zap.String("stage", name)),
		exited:  primitive.NewEvent(true, false),
	}
}

// SetInput wires the stage input.
func (s *Stage[In, Out]) SetInput(src Source[In]) {
	s.input = src
}

// SetOutput wires the stage output.
func (s *Stage[In, Out]) SetOutput(dst Sink[Out]) {
	s.output = dst
}

// Name returns the stage name.
func (s *Stage[In, Out]) Name() string {
	return s.name
}

// State returns the lifecycle state.
func (s *Stage[In, Out]) State() State {
	return State(s.state.Load())
}

// Exited is set as the last action of the stage loop.
func (s *Stage[In, Out]) Exited() *primitive.Event {
	return s.exited
}

// Stats returns a snapshot of the stage counters.
func (s *Stage[In, Out]) Stats() StageStats {
	return s.stats.snapshot(s.name, s.State())
}

// start runs the loop on the calling goroutine, or on a dedicated thread
// when WithThread was given.
func (s *Stage[In, Out]) start(ctx context.Context) error {
	if s.input == nil {
		s.finish()
		return fmt.Errorf("stage %s: no input: %w", s.name, primitive.ErrBadParameter)
	}
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return fmt.Errorf("stage %s: already started: %w", s.name, primitive.ErrBadParameter)
	}

	if len(s.conf.threadOpts) == 0 {
		return s.run(ctx)
	}

	var err error
	th, terr := primitive.NewThread(func() { err = s.run(ctx) }, s.conf.threadOpts...)
	if terr != nil {
		s.finish()
		return fmt.Errorf("stage %s: %w", s.name, terr)
	}
	s.logger.Debug("stage thread started", zap.Int("tid", th.Tid()))
	_ = th.Join(primitive.Forever)
	return err
}

func (s *Stage[In, Out]) finish() {
	s.state.Store(int32(StateExited))
	s.exited.Set()
}

func (s *Stage[In, Out]) run(ctx context.Context) (err error) {
	defer s.finish()
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			s.stats.failed.Add(1)
			err = fmt.Errorf("stage %s panic: %v\nstack trace:\n%s", s.name, r, buf[:n])
		}
		if err != nil {
			s.logger.Error("stage failed", zap.Error(err))
		}
	}()

	s.logger.Debug("stage running")
	for ctx.Err() == nil {
		if s.conf.maxItems > 0 && s.stats.completed.Load() >= s.conf.maxItems {
			s.logger.Debug("stage reached item limit", zap.Int64("items", s.conf.maxItems))
			return nil
		}
		if err := s.iterate(ctx); err != nil {
			return err
		}
	}

	s.state.Store(int32(StateDraining))
	s.logger.Debug("stage quitting")
	return nil
}

// iterate moves at most one item through the stage. Whatever it takes from
// the input is released before it returns.
func (s *Stage[In, Out]) iterate(ctx context.Context) error {
	if s.conf.limiter != nil {
		if err := s.conf.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("stage %s: rate limit: %w", s.name, err)
		}
	}

	in, err := s.input.GetContext(ctx, s.conf.getTimeout)
	if err != nil {
		switch {
		case errors.Is(err, primitive.ErrTimedOut):
			s.stats.getTimeouts.Add(1)
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("stage %s: get: %w", s.name, err)
		}
	}
	s.stats.received.Add(1)
	defer s.releaseInput(in)

	if s.funcs.beforeItem != nil {
		s.funcs.beforeItem(in)
	}

	start := time.Now()
	out, err := s.handler(ctx, in)
	s.stats.busy.Add(int64(time.Since(start)))

	if s.funcs.onItemEnd != nil {
		s.funcs.onItemEnd(in, out, err)
	}

	switch {
	case errors.Is(err, ErrSkip):
		s.stats.skipped.Add(1)
		return nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return nil
	case err != nil:
		s.stats.failed.Add(1)
		return fmt.Errorf("stage %s: %w", s.name, err)
	}

	if s.output == nil {
		s.releaseOutput(out)
		s.stats.completed.Add(1)
		return nil
	}
	return s.forward(ctx, out)
}

// forward retries the put until it succeeds, quit is raised, or, with
// WithDropOnFull, the first timeout. An item not delivered is released.
func (s *Stage[In, Out]) forward(ctx context.Context, out Out) error {
	defer s.backoff.Reset()

	for attempt := 0; ; attempt++ {
		err := s.output.PutContext(ctx, out, s.conf.putTimeout)
		if err == nil {
			s.stats.forwarded.Add(1)
			s.stats.completed.Add(1)
			return nil
		}

		if !errors.Is(err, primitive.ErrTimedOut) {
			s.releaseOutput(out)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("stage %s: put: %w", s.name, err)
		}

		s.stats.putTimeouts.Add(1)
		if s.conf.dropOnFull {
			s.stats.dropped.Add(1)
			s.releaseOutput(out)
			return nil
		}

		if d := s.backoff.Next(attempt); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				s.releaseOutput(out)
				return nil
			}
		}
	}
}

func (s *Stage[In, Out]) releaseInput(in In) {
	if s.funcs.releaseIn == nil {
		return
	}
	if err := s.funcs.releaseIn(in); err != nil {
		s.logger.Error("input release failed", zap.Error(err))
		return
	}
	s.stats.released.Add(1)
}

func (s *Stage[In, Out]) releaseOutput(out Out) {
	if s.funcs.releaseOut == nil {
		return
	}
	if err := s.funcs.releaseOut(out); err != nil {
		s.logger.Error("output release failed", zap.Error(err))
	}
}

// drain hands back every item still queued on the input. Only meaningful
// once the stage and its producers have exited.
func (s *Stage[In, Out]) drain() int {
	src, ok := s.input.(drainable[In])
	if !ok {
		return 0
	}

	n := 0
	for {
		in, ok := src.TryGet()
		if !ok {
			break
		}
		n++
		s.releaseInput(in)
	}
	s.stats.drained.Add(int64(n))
	debuglog.Printf("stage", "%s: drained %d items", s.name, n)
	return n
}
