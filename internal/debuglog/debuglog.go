//go:build debug

// Package debuglog traces queue, pool and stage internals in builds
// made with -tags debug. Other builds compile every call away.
package debuglog

import (
	"fmt"
	"log"
	"os"
)

// Enabled reports whether tracing was compiled in.
const Enabled = true

var logger = log.New(os.Stderr, "[NVPOOL DEBUG] ", log.Ltime|log.Lmicroseconds|log.Lshortfile)

// Printf writes one trace line tagged with scope, attributed to the caller.
func Printf(scope, format string, args ...any) {
	_ = logger.Output(2, scope+": "+fmt.Sprintf(format, args...))
}
