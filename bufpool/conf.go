package bufpool

import (
	"time"

	"go.uber.org/zap"

	"github.com/wjhtinger/NV-samples-sub002/primitive"
)

// Option configures a Pool.
type Option func(*poolConfig)

type poolConfig struct {
	name           string
	timeout        time.Duration
	cleanupTimeout time.Duration
	destroy        any
	logger         *zap.Logger
}

// WithName labels the pool in errors and logs.
func WithName(name string) Option {
	return func(cfg *poolConfig) {
		if name != "" {
			cfg.name = name
		}
	}
}

// WithTimeout sets the wait budget used by Acquire. Defaults to
// primitive.Forever.
func WithTimeout(d time.Duration) Option {
	return func(cfg *poolConfig) {
		cfg.timeout = d
	}
}

// WithCleanupTimeout bounds how long Close waits for outstanding buffers
// to come home. Defaults to 2s.
func WithCleanupTimeout(d time.Duration) Option {
	return func(cfg *poolConfig) {
		if d >= 0 {
			cfg.cleanupTimeout = d
		}
	}
}

// WithDestroy registers the function that frees one resource. It runs
// exactly once per resource, from Close or from a release that arrives
// after Close gave up waiting. The type parameter must match the pool's.
func WithDestroy[R any](fn func(R) error) Option {
	return func(cfg *poolConfig) {
		cfg.destroy = fn
	}
}

// WithLogger sets the logger. Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(cfg *poolConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

func createConfig(opts ...Option) *poolConfig {
	cfg := &poolConfig{
		name:           "pool",
		timeout:        primitive.Forever,
		cleanupTimeout: 2 * time.Second,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
