//go:build linux

package osthread

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"testing"
)

func TestSetup_NameAndPriority(t *testing.T) {
	done := make(chan struct{})
	var (
		tid     int
		err     error
		comm    string
		nice    int
		niceErr error
		want    int
	)

	go func() {
		defer close(done)
		// Left locked: the thread is discarded when the goroutine exits.
		runtime.LockOSThread()

		cur, perr := Priority(Current())
		if perr != nil {
			err = perr
			return
		}
		want = min(cur+1, 19)

		tid, err = Setup(Config{Name: "osthread-test-long-name", Priority: want, HasPriority: true, CPU: -1})
		if err != nil {
			return
		}
		b, _ := os.ReadFile("/proc/self/task/" + strconv.Itoa(tid) + "/comm")
		comm = strings.TrimSpace(string(b))
		nice, niceErr = Priority(tid)
	}()
	<-done

	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if tid <= 0 {
		t.Fatalf("expected positive tid, got %d", tid)
	}
	if comm != "osthread-test-l" {
		t.Errorf("expected truncated name %q, got %q", "osthread-test-l", comm)
	}
	if niceErr != nil {
		t.Fatalf("Priority failed: %v", niceErr)
	}
	if nice != want {
		t.Errorf("expected nice %d, got %d", want, nice)
	}
}

func TestPin_WrapsOutOfRange(t *testing.T) {
	done := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		done <- Pin(NumCPU() * 3)
	}()
	if err := <-done; err != nil {
		t.Fatalf("Pin with out-of-range cpu: %v", err)
	}
}

func TestConfig_Modified(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"empty", Config{CPU: -1}, false},
		{"named", Config{Name: "x", CPU: -1}, true},
		{"zero priority", Config{HasPriority: true, CPU: -1}, true},
		{"pinned", Config{CPU: 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Modified(); got != tt.want {
				t.Errorf("Modified() = %v, want %v", got, tt.want)
			}
		})
	}
}
