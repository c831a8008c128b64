package passthrough

import "sync"

// LoopTracker records the upstream socket endpoints a forwarder currently
// has open so an inbound request whose peer matches one of them can be
// rejected as a forwarding loop (§4.4 step 2, §8 P9).
type LoopTracker struct {
	mu   sync.Mutex
	open map[string]int
}

func NewLoopTracker() *LoopTracker {
	return &LoopTracker{open: map[string]int{}}
}

// Contains reports whether addr is a currently-open upstream endpoint.
func (t *LoopTracker) Contains(addr string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open[addr] > 0
}

// Enter records addr as an open upstream endpoint for the duration of one
// connection attempt; call the returned func to release it.
func (t *LoopTracker) Enter(addr string) func() {
	t.mu.Lock()
	t.open[addr]++
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		t.open[addr]--
		if t.open[addr] <= 0 {
			delete(t.open, addr)
		}
		t.mu.Unlock()
	}
}
