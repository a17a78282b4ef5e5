package bufpool

import (
	"sync"
	"testing"
)

// tracker records constructed and destroyed resources.
type tracker struct {
	mu        sync.Mutex
	built     int
	destroyed map[int]int
}

func newTracker() *tracker {
	return &tracker{destroyed: make(map[int]int)}
}

func (tr *tracker) alloc(i int) (int, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.built++
	return i, nil
}

func (tr *tracker) destroy(v int) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.destroyed[v]++
	return nil
}

func (tr *tracker) destroyCount(v int) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.destroyed[v]
}

func newTestPool(t *testing.T, capacity int, opts ...Option) (*Pool[int], *tracker) {
	t.Helper()
	tr := newTracker()
	opts = append([]Option{WithDestroy(tr.destroy), WithName("test")}, opts...)
	p, err := New(capacity, tr.alloc, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p, tr
}
