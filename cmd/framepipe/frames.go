package main

import (
	"context"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/Hypnotriod/jpegenc"
	"go.uber.org/zap"

	"github.com/wjhtinger/NV-samples-sub002/bufpool"
	"github.com/wjhtinger/NV-samples-sub002/pipeline"
	"github.com/wjhtinger/NV-samples-sub002/primitive"
)

// rawFrame is an RGB888 image as produced by the capture stage.
type rawFrame struct {
	Seq int
	Pix []byte
}

// jpegFrame holds one encoded image; Data[:N] is the JPEG stream.
type jpegFrame struct {
	Seq  int
	Data []byte
	N    int
}

type (
	rawBuf  = *bufpool.Buffer[*rawFrame]
	jpegBuf = *bufpool.Buffer[*jpegFrame]
)

var jpegParams = jpegenc.EncodeParams{
	QualityFactor: jpegenc.QualityFactorHigh,
	PixelType:     jpegenc.PixelTypeRGB888,
	Subsample:     jpegenc.Subsample444,
}

// fillPattern draws a moving gradient so consecutive frames differ and the
// same sequence number always yields the same image.
func fillPattern(pix []byte, width, height, seq int) {
	i := 0
	for y := range height {
		for x := range width {
			pix[i] = byte(x + seq*4)
			pix[i+1] = byte(y + seq*2)
			pix[i+2] = byte((x ^ y) + seq)
			i += 3
		}
	}
}

// captureHandler stamps a fresh raw buffer with the next frame and passes
// it on. The first skip frames are returned to the pool unused, as a
// camera warm-up would be.
func captureHandler(width, height, skip int) pipeline.Handler[rawBuf, rawBuf] {
	seq := 0
	return func(_ context.Context, b rawBuf) (rawBuf, error) {
		seq++
		if seq <= skip {
			return nil, pipeline.ErrSkip
		}

		b.MarkStart()
		b.Value.Seq = seq - skip
		fillPattern(b.Value.Pix, width, height, b.Value.Seq)
		return b, b.AddRef()
	}
}

// encodeHandler compresses a raw frame into a buffer from the JPEG pool.
// The raw buffer goes home as soon as the handler returns.
func encodeHandler(jpegs *bufpool.Pool[*jpegFrame], width, height int) pipeline.Handler[rawBuf, jpegBuf] {
	return func(ctx context.Context, in rawBuf) (jpegBuf, error) {
		out, err := jpegs.AcquireContext(ctx, primitive.Forever)
		if err != nil {
			return nil, err
		}

		n, err := jpegenc.Encode(width, height, jpegParams, in.Value.Pix, out.Value.Data)
		if err != nil {
			_ = out.Release()
			return nil, fmt.Errorf("encode frame %d: %w", in.Value.Seq, err)
		}
		in.MarkEnd()

		out.Value.Seq = in.Value.Seq
		out.Value.N = n
		return out, nil
	}
}

// saver is the sink: it checksums every encoded frame, optionally writes it
// to disk and compares it against a list of expected checksums.
type saver struct {
	dir      string
	expected []uint32
	logger   *zap.Logger
	onSaved  func()

	mu    sync.Mutex
	crcs  []uint32
	saved atomic.Int64
}

func (s *saver) handle(_ context.Context, in jpegBuf) (struct{}, error) {
	f := in.Value
	data := f.Data[:f.N]
	crc := crc32.ChecksumIEEE(data)

	s.mu.Lock()
	idx := len(s.crcs)
	s.crcs = append(s.crcs, crc)
	s.mu.Unlock()

	if idx < len(s.expected) && s.expected[idx] != crc {
		return struct{}{}, fmt.Errorf("frame %d: crc %08x, expected %08x: %w", f.Seq, crc, s.expected[idx], primitive.ErrFailed)
	}

	if s.dir != "" {
		name := filepath.Join(s.dir, fmt.Sprintf("frame_%06d.jpg", f.Seq))
		if err := os.WriteFile(name, data, 0o644); err != nil {
			return struct{}{}, fmt.Errorf("save frame %d: %w", f.Seq, err)
		}
	}

	s.logger.Debug("frame saved", zap.Int("seq", f.Seq), zap.Int("bytes", f.N))
	s.saved.Add(1)
	if s.onSaved != nil {
		s.onSaved()
	}
	return struct{}{}, nil
}

func (s *saver) checksums() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint32(nil), s.crcs...)
}
