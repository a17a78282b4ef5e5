package benchmarks

import (
	"context"
	"testing"
	"time"

	"github.com/wjhtinger/NV-samples-sub002/bufpool"
	"github.com/wjhtinger/NV-samples-sub002/pipeline"
	"github.com/wjhtinger/NV-samples-sub002/queue"
)

// backoffConfig is one put-retry policy under comparison.
type backoffConfig struct {
	name string
	opt  pipeline.StageOption
}

func getBackoffStrategies() []backoffConfig {
	return []backoffConfig{
		{name: "Exponential", opt: pipeline.WithBackoff(pipeline.BackoffExponential, time.Millisecond, 20*time.Millisecond)},
		{name: "Jittered", opt: pipeline.WithBackoff(pipeline.BackoffJittered, time.Millisecond, 20*time.Millisecond)},
		{name: "Decorrelated", opt: pipeline.WithBackoff(pipeline.BackoffDecorrelated, time.Millisecond, 20*time.Millisecond)},
		{name: "None", opt: pipeline.WithBackoff(pipeline.BackoffNone, 0, 0)},
	}
}

type payload struct {
	data []byte
}

type payloadBuf = *bufpool.Buffer[*payload]

func newPayloadPool(b *testing.B, capacity, size int) *bufpool.Pool[*payload] {
	b.Helper()
	p, err := bufpool.New(capacity, func(int) (*payload, error) {
		return &payload{data: make([]byte, size)}, nil
	})
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = p.Close() })
	return p
}

// touch simulates per-item work proportional to the payload size.
func touch(data []byte, passes int) {
	for range passes {
		for i := range data {
			data[i]++
		}
	}
}

// runRelay pushes items buffers through source -> relay -> sink and
// returns once the sink has seen items of them.
func runRelay(b *testing.B, items, poolSize, depth, work int, opts ...pipeline.StageOption) {
	b.Helper()
	pool := newPayloadPool(b, poolSize, 1024)
	q1, _ := queue.New[payloadBuf](depth)
	q2, _ := queue.New[payloadBuf](depth)
	release := pipeline.BufferRelease[*payload]()

	produce := pipeline.NewStage("produce", func(_ context.Context, in payloadBuf) (payloadBuf, error) {
		return in, in.AddRef()
	}, append([]pipeline.StageOption{
		pipeline.WithRelease(release),
		pipeline.WithOutputRelease(release),
		pipeline.WithMaxItems(items),
	}, opts...)...)
	produce.SetInput(pipeline.PoolSource(pool))
	produce.SetOutput(q1)

	relay := pipeline.NewStage("relay", func(_ context.Context, in payloadBuf) (payloadBuf, error) {
		touch(in.Value.data, work)
		return in, in.AddRef()
	}, append([]pipeline.StageOption{
		pipeline.WithRelease(release),
		pipeline.WithOutputRelease(release),
	}, opts...)...)
	relay.SetInput(q1)
	relay.SetOutput(q2)

	p := pipeline.New()
	seen := 0
	sink := pipeline.NewStage("sink", func(_ context.Context, in payloadBuf) (struct{}, error) {
		seen++
		if seen == items {
			p.Quit()
		}
		return struct{}{}, nil
	}, pipeline.WithRelease(release))
	sink.SetInput(q2)

	if err := p.Add(produce, relay, sink); err != nil {
		b.Fatal(err)
	}
	if err := p.Run(context.Background()); err != nil {
		b.Fatal(err)
	}
	if pool.Available() != poolSize {
		b.Fatalf("expected %d buffers home, got %d", poolSize, pool.Available())
	}
}
