package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/olekukonko/tablewriter"
)

var json jsoniter.API = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	bold  = color.New(color.Bold)
	red   = color.New(color.FgRed)
	green = color.New(color.FgGreen)
)

func colorPrintLn(c *color.Color, a ...any) {
	_, _ = c.Println(a...)
}

func colorPrintf(c *color.Color, format string, a ...any) {
	_, _ = c.Printf(format, a...)
}

func printSectionHeader(title string) {
	fmt.Println()
	colorPrintLn(bold, "═══════════════════════════════════════════════════════════")
	colorPrintLn(bold, title)
	colorPrintLn(bold, "═══════════════════════════════════════════════════════════")
}

func printConfiguration(cfg config) {
	printSectionHeader("FRAME PIPELINE")
	fmt.Printf("  Frames:      %d (skip %d)\n", cfg.Frames, cfg.Skip)
	fmt.Printf("  Resolution:  %dx%d RGB888\n", cfg.Width, cfg.Height)
	fmt.Printf("  Pools:       %d raw + %d jpeg buffers\n", cfg.PoolSize, cfg.PoolSize)
	if cfg.FPS > 0 {
		fmt.Printf("  Rate limit:  %.1f fps\n", cfg.FPS)
	}
	if cfg.OutDir != "" {
		fmt.Printf("  Output:      %s\n", cfg.OutDir)
	}
	fmt.Println()
}

func printReport(cfg config, res *result) {
	printSectionHeader("STAGE STATISTICS")

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Stage", "State", "In", "Out", "Skipped", "Dropped", "Failed", "Put Timeouts", "Drained", "Busy")
	for _, s := range res.Stages {
		_ = table.Append(
			s.Name,
			s.State,
			fmt.Sprint(s.Received),
			fmt.Sprint(s.Completed),
			fmt.Sprint(s.Skipped),
			fmt.Sprint(s.Dropped),
			fmt.Sprint(s.Failed),
			fmt.Sprint(s.PutTimeouts),
			fmt.Sprint(s.Drained),
			s.Busy.Round(time.Microsecond).String(),
		)
	}
	if err := table.Render(); err != nil {
		colorPrintLn(red, "Error rendering stage table")
	}

	fmt.Println()
	fps := 0.0
	if res.Elapsed > 0 {
		fps = float64(res.Saved) / res.Elapsed.Seconds()
	}
	fmt.Printf("  Saved %d/%d frames in %v (%.1f fps)\n", res.Saved, cfg.Frames, res.Elapsed.Round(time.Millisecond), fps)
	if res.Interrupted {
		colorPrintLn(red, "  Interrupted")
	}

	if res.drained() {
		colorPrintf(green, "  ✓ all buffers home: raw %d/%d, jpeg %d/%d\n", res.RawHome, res.RawCap, res.JPEGHome, res.JPEGCap)
	} else {
		colorPrintf(red, "  ✗ buffers missing: raw %d/%d, jpeg %d/%d\n", res.RawHome, res.RawCap, res.JPEGHome, res.JPEGCap)
	}
	fmt.Println()
}

type jsonReport struct {
	Config config  `json:"config"`
	Result *result `json:"result"`
	Error  string  `json:"error,omitempty"`
}

func printJSON(w io.Writer, cfg config, res *result, runErr error) error {
	rep := jsonReport{Config: cfg, Result: res}
	if runErr != nil {
		rep.Error = runErr.Error()
	}

	out, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
