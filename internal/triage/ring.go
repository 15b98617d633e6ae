package triage

import "sync"

// Ring keeps the most recent triage results in memory for the API and the
// digest builder. Oldest entries are evicted once capacity is reached.
type Ring struct {
	mu      sync.RWMutex
	results []*Result
	byID    map[string]*Result
	cap     int
}

// NewRing creates a ring holding at most capacity results.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 256
	}
	return &Ring{
		byID: make(map[string]*Result),
		cap:  capacity,
	}
}

// Add appends a result, evicting the oldest entry if the ring is full.
func (r *Ring) Add(res *Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.results) >= r.cap {
		evicted := r.results[0]
		r.results = r.results[1:]
		delete(r.byID, evicted.ID)
	}
	r.results = append(r.results, res)
	r.byID[res.ID] = res
}

// Get returns a result by its triage ID.
func (r *Ring) Get(id string) (*Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.byID[id]
	return res, ok
}

// Recent returns up to n results, newest first. n <= 0 returns everything.
func (r *Ring) Recent(n int) []*Result {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || n > len(r.results) {
		n = len(r.results)
	}
	out := make([]*Result, 0, n)
	for i := len(r.results) - 1; i >= len(r.results)-n; i-- {
		out = append(out, r.results[i])
	}
	return out
}

// Len reports how many results the ring currently holds.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.results)
}
