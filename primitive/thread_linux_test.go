//go:build linux

package primitive

import (
	"testing"

	"github.com/wjhtinger/NV-samples-sub002/internal/osthread"
)

func TestThread_Priority(t *testing.T) {
	base, err := osthread.Priority(osthread.Current())
	if err != nil {
		t.Fatalf("read base priority: %v", err)
	}
	start := min(base+1, 19)
	next := min(base+2, 19)

	release := make(chan struct{})
	th, err := NewThread(func() { <-release }, WithThreadPriority(start), WithThreadCPU(0))
	if err != nil {
		t.Fatalf("NewThread failed: %v", err)
	}
	defer func() {
		close(release)
		_ = th.Join(Forever)
	}()

	if th.Tid() <= 0 {
		t.Fatalf("expected positive tid, got %d", th.Tid())
	}

	got, err := th.Priority()
	if err != nil {
		t.Fatalf("Priority failed: %v", err)
	}
	if got != start {
		t.Errorf("expected priority %d, got %d", start, got)
	}

	if err := th.SetPriority(next); err != nil {
		t.Fatalf("SetPriority failed: %v", err)
	}
	if got, _ := th.Priority(); got != next {
		t.Errorf("expected priority %d after SetPriority, got %d", next, got)
	}
}
