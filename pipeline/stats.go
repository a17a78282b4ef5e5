package pipeline

import (
	"sync/atomic"
	"time"
)

// StageStats is a snapshot of a stage's counters.
type StageStats struct {
	Name        string        `json:"name"`
	State       string        `json:"state"`
	Received    int64         `json:"received"`
	Completed   int64         `json:"completed"`
	Forwarded   int64         `json:"forwarded"`
	Skipped     int64         `json:"skipped"`
	Dropped     int64         `json:"dropped"`
	Failed      int64         `json:"failed"`
	GetTimeouts int64         `json:"get_timeouts"`
	PutTimeouts int64         `json:"put_timeouts"`
	Released    int64         `json:"released"`
	Drained     int64         `json:"drained"`
	Busy        time.Duration `json:"busy_ns"`
}

type counters struct {
	received    atomic.Int64
	completed   atomic.Int64
	forwarded   atomic.Int64
	skipped     atomic.Int64
	dropped     atomic.Int64
	failed      atomic.Int64
	getTimeouts atomic.Int64
	putTimeouts atomic.Int64
	released    atomic.Int64
	drained     atomic.Int64
	busy        atomic.Int64
}

func (c *counters) snapshot(name string, state State) StageStats {
	return StageStats{
		Name:        name,
		State:       state.String(),
		Received:    c.received.Load(),
		Completed:   c.completed.Load(),
		Forwarded:   c.forwarded.Load(),
		Skipped:     c.skipped.Load(),
		Dropped:     c.dropped.Load(),
		Failed:      c.failed.Load(),
		GetTimeouts: c.getTimeouts.Load(),
		PutTimeouts: c.putTimeouts.Load(),
		Released:    c.released.Load(),
		Drained:     c.drained.Load(),
		Busy:        time.Duration(c.busy.Load()),
	}
}
