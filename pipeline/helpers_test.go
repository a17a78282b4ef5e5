package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/wjhtinger/NV-samples-sub002/bufpool"
	"github.com/wjhtinger/NV-samples-sub002/queue"
)

type frame struct {
	seq int
}

type frameBuf = *bufpool.Buffer[*frame]

func newFramePool(t *testing.T, capacity int) *bufpool.Pool[*frame] {
	t.Helper()
	p, err := bufpool.New(capacity, func(int) (*frame, error) {
		return &frame{}, nil
	}, bufpool.WithName("frames"))
	if err != nil {
		t.Fatalf("bufpool.New failed: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func newFrameQueue(t *testing.T, capacity int) *queue.Queue[frameBuf] {
	t.Helper()
	q, err := queue.New[frameBuf](capacity)
	if err != nil {
		t.Fatalf("queue.New failed: %v", err)
	}
	return q
}

// captureStage forwards fresh pool buffers stamped with a sequence number.
func captureStage(opts ...StageOption) *Stage[frameBuf, frameBuf] {
	seq := 0
	opts = append([]StageOption{
		WithRelease(BufferRelease[*frame]()),
		WithOutputRelease(BufferRelease[*frame]()),
		WithGetTimeout(10 * time.Millisecond),
		WithPutTimeout(10 * time.Millisecond),
	}, opts...)

	return NewStage("capture", func(_ context.Context, b frameBuf) (frameBuf, error) {
		seq++
		b.Value.seq = seq
		return b, b.AddRef()
	}, opts...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func mustStart(t *testing.T, p *Pipeline) {
	t.Helper()
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
}

func newIntQueue(t *testing.T, capacity int) *queue.Queue[int] {
	t.Helper()
	q, err := queue.New[int](capacity)
	if err != nil {
		t.Fatalf("queue.New failed: %v", err)
	}
	return q
}
