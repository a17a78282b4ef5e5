// Package pipeline runs chains of stages connected by bounded queues and
// buffer pools.
//
// A stage is a worker loop: take an item from its input, run a handler on
// it, hand the result to its output. Inputs and outputs are anything with
// the GetContext / PutContext shape of queue.Queue; PoolSource turns a
// bufpool.Pool into an input so a capture stage can draw fresh buffers.
//
// Buffers travel by reference. A stage owns an item from the moment it is
// taken from the input until it is either forwarded or released back to
// its owner; the stage releases its input on every path through an
// iteration, so a stage that wants to forward the same buffer it received
// takes an extra reference first:
//
//	capture := pipeline.NewStage("capture",
//	    func(ctx context.Context, b *bufpool.Buffer[[]byte]) (*bufpool.Buffer[[]byte], error) {
//	        fill(b.Value)
//	        return b, b.AddRef()
//	    },
//	    pipeline.WithRelease(pipeline.BufferRelease[[]byte]()),
//	    pipeline.WithOutputRelease(pipeline.BufferRelease[[]byte]()),
//	)
//	capture.SetInput(pipeline.PoolSource(rawPool))
//	capture.SetOutput(frames)
//
// All stages of a Pipeline share one quit token. Quit raises it, as does
// any stage that fails; each stage observes it between items and while
// blocked on its queues, releases whatever it holds, and exits. Wait then
// drains the stage inputs so every buffer ends up back in its pool.
package pipeline
