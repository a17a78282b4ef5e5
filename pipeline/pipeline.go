package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wjhtinger/NV-samples-sub002/primitive"
)

// Option configures a Pipeline.
type Option func(*config)

type config struct {
	logger      *zap.Logger
	stopTimeout time.Duration
}

// WithPipelineLogger sets the pipeline logger. Defaults to zap.NewNop().
func WithPipelineLogger(l *zap.Logger) Option {
	return func(cfg *config) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithStopTimeout bounds how long Wait gives the stages to exit once quit
// is raised. Defaults to 5s; primitive.Forever waits indefinitely.
func WithStopTimeout(d time.Duration) Option {
	return func(cfg *config) {
		cfg.stopTimeout = d
	}
}

// Pipeline runs a set of stages that share one quit token.
type Pipeline struct {
	conf   *config
	logger *zap.Logger

	mu      sync.Mutex
	stages  []Runner
	started bool

	quit     chan struct{}
	quitOnce sync.Once

	done chan struct{}
	err  error
}

// New creates an empty pipeline.
func New(opts ...Option) *Pipeline {
	cfg := &config{
		logger:      zap.NewNop(),
		stopTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Pipeline{
		conf:   cfg,
		logger: cfg.logger,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Add appends stages. It fails once the pipeline has started.
func (p *Pipeline) Add(stages ...Runner) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("pipeline: add after start: %w", primitive.ErrBadParameter)
	}
	for _, s := range stages {
		if s == nil {
			return fmt.Errorf("pipeline: nil stage: %w", primitive.ErrBadParameter)
		}
	}
	p.stages = append(p.stages, stages...)
	return nil
}

// Start launches every stage on its own goroutine. The first stage to fail
// raises quit for all of them, as does cancelling ctx.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("pipeline: already started: %w", primitive.ErrBadParameter)
	}
	if len(p.stages) == 0 {
		return fmt.Errorf("pipeline: no stages: %w", primitive.ErrBadParameter)
	}
	p.started = true

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	for _, s := range p.stages {
		g.Go(func() error {
			return s.start(gctx)
		})
	}

	go func() {
		select {
		case <-p.quit:
			cancel()
		case <-gctx.Done():
			p.Quit()
		}
	}()

	go func() {
		p.err = g.Wait()
		cancel()
		p.Quit()
		close(p.done)
	}()

	p.logger.Info("pipeline started", zap.Int("stages", len(p.stages)))
	return nil
}

// Quit raises the quit token. It is safe to call any number of times, from
// any goroutine, before or after Start.
func (p *Pipeline) Quit() {
	p.quitOnce.Do(func() {
		close(p.quit)
	})
}

// Done is closed once quit has been raised.
func (p *Pipeline) Done() <-chan struct{} {
	return p.quit
}

// Wait blocks until quit is raised, then waits for every stage to exit
// (bounded by the stop timeout), drains the stage inputs back to their
// owners and returns the first stage error. A pipeline stopped by Quit or
// by cancelling the Start context returns nil.
func (p *Pipeline) Wait() error {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return fmt.Errorf("pipeline: wait before start: %w", primitive.ErrBadParameter)
	}

	<-p.quit

	var deadline time.Time
	if p.conf.stopTimeout >= 0 {
		deadline = time.Now().Add(p.conf.stopTimeout)
	}
	for _, s := range p.stages {
		budget := primitive.Forever
		if !deadline.IsZero() {
			budget = max(time.Until(deadline), primitive.NoWait)
		}
		if err := s.Exited().Wait(budget); err != nil {
			p.logger.Error("stage did not exit", zap.String("stage", s.Name()))
			return fmt.Errorf("pipeline: stage %s did not exit: %w", s.Name(), err)
		}
	}
	<-p.done

	for _, s := range p.stages {
		if n := s.drain(); n > 0 {
			p.logger.Debug("drained stage input", zap.String("stage", s.Name()), zap.Int("items", n))
		}
	}

	if p.err != nil && !errors.Is(p.err, context.Canceled) {
		return p.err
	}
	return nil
}

// Run starts the pipeline and waits for it to stop.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	return p.Wait()
}

// Stats returns a snapshot of every stage, in the order they were added.
func (p *Pipeline) Stats() []StageStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]StageStats, 0, len(p.stages))
	for _, s := range p.stages {
		out = append(out, s.Stats())
	}
	return out
}
