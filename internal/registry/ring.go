package registry

import "sync"

// defaultLogCapacity bounds per-agent log retention; oldest lines drop first.
const defaultLogCapacity = 1000

// LogRing is a fixed-capacity ring buffer of log lines, safe for concurrent
// use. Long-running agents stream thousands of lines; only the newest
// capacity lines are retained.
type LogRing struct {
	mu    sync.Mutex
	lines []string
	start int
	size  int
}

func NewLogRing(capacity int) *LogRing {
	if capacity <= 0 {
		capacity = defaultLogCapacity
	}
	return &LogRing{lines: make([]string, capacity)}
}

// Append adds a line, evicting the oldest when full.
func (r *LogRing) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.size < len(r.lines) {
		r.lines[(r.start+r.size)%len(r.lines)] = line
		r.size++
		return
	}
	r.lines[r.start] = line
	r.start = (r.start + 1) % len(r.lines)
}

// Snapshot returns the retained lines, oldest first.
func (r *LogRing) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.lines[(r.start+i)%len(r.lines)]
	}
	return out
}

// Tail returns the newest n lines, oldest first.
func (r *LogRing) Tail(n int) []string {
	all := r.Snapshot()
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}

func (r *LogRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}
