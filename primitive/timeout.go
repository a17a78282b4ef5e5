package primitive

import "time"

const (
	// NoWait makes a blocking call try exactly once.
	NoWait time.Duration = 0

	// Forever makes a blocking call wait with no deadline. Any negative
	// duration is treated the same way.
	Forever time.Duration = -1
)

// deadline turns a wait budget into a timer channel. It returns a nil
// channel for Forever, which blocks forever in a select.
func deadline(timeout time.Duration) (<-chan time.Time, func()) {
	if timeout < 0 {
		return nil, func() {}
	}
	t := time.NewTimer(timeout)
	return t.C, func() { t.Stop() }
}
