// Command framepipe runs a synthetic camera pipeline: capture fills raw
// frames from a buffer pool, encode compresses them to JPEG into a second
// pool, save checksums and optionally writes them. It exercises the
// queue, bufpool and pipeline packages end to end and checks at exit
// that every buffer made it back to its pool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/maruel/interrupt"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	var cfg config
	flag.IntVar(&cfg.Frames, "frames", 120, "Number of frames to capture")
	flag.IntVar(&cfg.PoolSize, "pool", 6, "Buffers per pool and queue depth")
	flag.IntVar(&cfg.Width, "width", 320, "Frame width in pixels (multiple of 16)")
	flag.IntVar(&cfg.Height, "height", 240, "Frame height in pixels (multiple of 16)")
	flag.Float64Var(&cfg.FPS, "fps", 0, "Capture rate limit in frames/sec (0 = unlimited)")
	flag.IntVar(&cfg.Skip, "skip", 0, "Initial frames to discard")
	flag.BoolVar(&cfg.Drop, "drop", false, "Drop frames instead of waiting when the encoder falls behind")
	flag.StringVar(&cfg.OutDir, "out", "", "Directory to write frame_NNNNNN.jpg files into")
	flag.StringVar(&cfg.CRCIn, "crc", "", "File of expected per-frame CRC32 values to check against")
	flag.StringVar(&cfg.CRCOut, "crc-out", "", "File to write per-frame CRC32 values to")
	flag.IntVar(&cfg.CPU, "cpu", -1, "Pin the capture stage to this CPU (-1 = no pinning)")
	jsonFlag := flag.Bool("json", false, "Print the report as JSON")
	ciFlag := flag.Bool("ci", false, "CI mode: disable progress bar")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	logger, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "framepipe: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "framepipe: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}

	interrupt.HandleCtrlC()
	stop := make(chan struct{})
	go func() {
		<-interrupt.Channel
		close(stop)
	}()

	var bar *progressbar.ProgressBar
	if !*jsonFlag && !isCIMode(*ciFlag) {
		bar = progressbar.NewOptions(cfg.Frames,
			progressbar.OptionSetDescription("Saving frames"),
			progressbar.OptionSetWidth(50),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("frames"),
			progressbar.OptionEnableColorCodes(true),
		)
	}
	onSaved := func() {
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	if !*jsonFlag {
		printConfiguration(cfg)
	}

	res, runErr := run(context.Background(), cfg, logger, stop, onSaved)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}

	if res != nil {
		if *jsonFlag {
			if err := printJSON(os.Stdout, cfg, res, runErr); err != nil {
				logger.Error("json report failed", zap.Error(err))
			}
		} else {
			printReport(cfg, res)
		}
	}

	if runErr != nil {
		logger.Error("pipeline failed", zap.Error(runErr))
		if !*jsonFlag {
			colorPrintLn(red, "✗ "+runErr.Error())
		}
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction(zap.IncreaseLevel(zapcore.WarnLevel))
}

func isCIMode(ciFlag bool) bool {
	if ciFlag {
		return true
	}

	for _, env := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "CIRCLECI", "JENKINS_HOME"} {
		if v := os.Getenv(env); v == "true" || v == "1" {
			return true
		}
	}
	return false
}
