package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wjhtinger/NV-samples-sub002/bufpool"
	"github.com/wjhtinger/NV-samples-sub002/pipeline"
	"github.com/wjhtinger/NV-samples-sub002/primitive"
	"github.com/wjhtinger/NV-samples-sub002/queue"
)

// config holds the command-line settings.
type config struct {
	Frames   int     `json:"frames"`
	PoolSize int     `json:"pool_size"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	FPS      float64 `json:"fps"`
	Skip     int     `json:"skip"`
	Drop     bool    `json:"drop"`
	OutDir   string  `json:"out_dir,omitempty"`
	CRCIn    string  `json:"crc_in,omitempty"`
	CRCOut   string  `json:"crc_out,omitempty"`
	CPU      int     `json:"cpu"`
}

func (c *config) validate() error {
	switch {
	case c.Frames <= 0:
		return errors.New("-frames must be positive")
	case c.PoolSize <= 0 || c.PoolSize > bufpool.MaxCapacity:
		return fmt.Errorf("-pool must be in 1..%d", bufpool.MaxCapacity)
	case c.Width <= 0 || c.Height <= 0 || c.Width%16 != 0 || c.Height%16 != 0:
		return errors.New("-width and -height must be positive multiples of 16")
	case c.Skip < 0:
		return errors.New("-skip must not be negative")
	}
	return nil
}

// result summarizes one run.
type result struct {
	Saved       int64                 `json:"saved"`
	Elapsed     time.Duration         `json:"elapsed_ns"`
	RawHome     int                   `json:"raw_home"`
	RawCap      int                   `json:"raw_cap"`
	JPEGHome    int                   `json:"jpeg_home"`
	JPEGCap     int                   `json:"jpeg_cap"`
	Interrupted bool                  `json:"interrupted"`
	Stages      []pipeline.StageStats `json:"stages"`
	CRCs        []uint32              `json:"-"`
}

// drained reports whether every buffer made it back to its pool.
func (r *result) drained() bool {
	return r.RawHome == r.RawCap && r.JPEGHome == r.JPEGCap
}

// run builds capture -> encode -> save over two buffer pools and runs it
// until cfg.Frames frames are saved, a stage fails, or stop fires.
func run(ctx context.Context, cfg config, logger *zap.Logger, stop <-chan struct{}, onSaved func()) (*result, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var expected []uint32
	if cfg.CRCIn != "" {
		crcs, err := readCRCFile(cfg.CRCIn)
		if err != nil {
			return nil, fmt.Errorf("read crc file: %w", err)
		}
		expected = crcs
	}

	frameSize := cfg.Width * cfg.Height * 3
	raws, err := bufpool.New(cfg.PoolSize, func(int) (*rawFrame, error) {
		return &rawFrame{Pix: make([]byte, frameSize)}, nil
	}, bufpool.WithName("raw"), bufpool.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	defer raws.Close()

	// Headers and tables dominate tiny frames; leave room for them.
	jpegSize := frameSize + 16<<10
	jpegs, err := bufpool.New(cfg.PoolSize, func(int) (*jpegFrame, error) {
		return &jpegFrame{Data: make([]byte, jpegSize)}, nil
	}, bufpool.WithName("jpeg"), bufpool.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	defer jpegs.Close()

	captured, err := queue.New[rawBuf](cfg.PoolSize)
	if err != nil {
		return nil, err
	}
	defer captured.Destroy()

	encoded, err := queue.New[jpegBuf](cfg.PoolSize)
	if err != nil {
		return nil, err
	}
	defer encoded.Destroy()

	releaseRaw := pipeline.BufferRelease[*rawFrame]()
	releaseJPEG := pipeline.BufferRelease[*jpegFrame]()

	captureOpts := []pipeline.StageOption{
		pipeline.WithRelease(releaseRaw),
		pipeline.WithOutputRelease(releaseRaw),
		pipeline.WithMaxItems(cfg.Frames),
		pipeline.WithLogger(logger),
	}
	if cfg.FPS > 0 {
		captureOpts = append(captureOpts, pipeline.WithRateLimit(cfg.FPS, 1))
	}
	if cfg.Drop {
		captureOpts = append(captureOpts, pipeline.WithDropOnFull())
	}
	if cfg.CPU >= 0 {
		captureOpts = append(captureOpts, pipeline.WithThread(
			primitive.WithThreadName("capture"),
			primitive.WithThreadCPU(cfg.CPU),
		))
	}

	capture := pipeline.NewStage("capture", captureHandler(cfg.Width, cfg.Height, cfg.Skip), captureOpts...)
	capture.SetInput(pipeline.PoolSource(raws))
	capture.SetOutput(captured)

	encode := pipeline.NewStage("encode", encodeHandler(jpegs, cfg.Width, cfg.Height),
		pipeline.WithRelease(releaseRaw),
		pipeline.WithOutputRelease(releaseJPEG),
		pipeline.WithLogger(logger),
	)
	encode.SetInput(captured)
	encode.SetOutput(encoded)

	sv := &saver{
		dir:      cfg.OutDir,
		expected: expected,
		logger:   logger,
		onSaved:  onSaved,
	}
	save := pipeline.NewStage("save", sv.handle,
		pipeline.WithRelease(releaseJPEG),
		pipeline.WithGetTimeout(time.Second),
		pipeline.WithLogger(logger),
	)
	save.SetInput(encoded)

	p := pipeline.New(pipeline.WithPipelineLogger(logger))
	if err := p.Add(capture, encode, save); err != nil {
		return nil, err
	}

	var interrupted atomic.Bool
	res := &result{}
	start := time.Now()
	if err := p.Start(ctx); err != nil {
		return nil, err
	}

	go func() {
		tick := time.NewTicker(time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-p.Done():
				return
			case <-stop:
				interrupted.Store(true)
				p.Quit()
				return
			case <-tick.C:
				if capture.Exited().IsSet() && sv.saved.Load() >= capture.Stats().Forwarded {
					p.Quit()
					return
				}
			}
		}
	}()

	runErr := p.Wait()
	res.Elapsed = time.Since(start)
	res.Interrupted = interrupted.Load()
	res.Saved = sv.saved.Load()
	res.Stages = p.Stats()
	res.CRCs = sv.checksums()
	res.RawHome, res.RawCap = raws.Available(), raws.Cap()
	res.JPEGHome, res.JPEGCap = jpegs.Available(), jpegs.Cap()

	if runErr != nil {
		return res, runErr
	}
	if !res.drained() {
		return res, fmt.Errorf("buffers not returned: raw %d/%d, jpeg %d/%d",
			res.RawHome, res.RawCap, res.JPEGHome, res.JPEGCap)
	}

	if cfg.CRCOut != "" {
		if err := writeCRCFile(cfg.CRCOut, res.CRCs); err != nil {
			return res, fmt.Errorf("write crc file: %w", err)
		}
	}
	return res, nil
}
