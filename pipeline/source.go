package pipeline

import (
	"context"
	"time"

	"github.com/wjhtinger/NV-samples-sub002/bufpool"
)

type poolSource[R any] struct {
	pool *bufpool.Pool[R]
}

// PoolSource adapts a buffer pool as a stage input: each item is a freshly
// acquired buffer. Release the stage input with BufferRelease so unused
// buffers go straight home.
func PoolSource[R any](pool *bufpool.Pool[R]) Source[*bufpool.Buffer[R]] {
	return poolSource[R]{pool: pool}
}

func (s poolSource[R]) GetContext(ctx context.Context, timeout time.Duration) (*bufpool.Buffer[R], error) {
	return s.pool.AcquireContext(ctx, timeout)
}
