// Package ledger tracks which messages have been processed and how far the
// poller has advanced. It is the only durable state the service keeps.
package ledger

import (
	"context"
	"sync"
	"time"
)

// State is the serializable snapshot of a ledger: processed message IDs in
// insertion order plus the poll checkpoint.
type State struct {
	IDs        []string  `json:"ids"`
	Checkpoint time.Time `json:"checkpoint"`
}

// Store persists ledger state between runs.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, s State) error
}

// Ledger is an in-memory dedup set with insertion order and a monotone
// checkpoint. Safe for concurrent use.
type Ledger struct {
	mu         sync.RWMutex
	ids        []string
	seen       map[string]bool
	checkpoint time.Time
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{seen: make(map[string]bool)}
}

// Has reports whether id has already been processed.
func (l *Ledger) Has(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seen[id]
}

// Add records id as processed. Duplicate adds are no-ops so insertion order
// reflects first processing only.
func (l *Ledger) Add(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen[id] {
		return
	}
	l.seen[id] = true
	l.ids = append(l.ids, id)
}

// Len reports how many IDs the ledger tracks.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ids)
}

// Checkpoint returns the current poll checkpoint.
func (l *Ledger) Checkpoint() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.checkpoint
}

// Advance moves the checkpoint forward to t. Attempts to move it backward
// are ignored: the checkpoint is monotone so a slow or retried cycle can
// never reopen an already-covered window.
func (l *Ledger) Advance(t time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.After(l.checkpoint) {
		l.checkpoint = t
	}
}

// Trim drops the oldest entries once the ledger exceeds cap, keeping the
// newest keep IDs. Bounded memory: the checkpoint, not the set, guards
// against reprocessing anything older than the retained window.
func (l *Ledger) Trim(cap, keep int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cap <= 0 || keep <= 0 || keep > cap || len(l.ids) <= cap {
		return
	}
	drop := l.ids[:len(l.ids)-keep]
	for _, id := range drop {
		delete(l.seen, id)
	}
	kept := make([]string, keep)
	copy(kept, l.ids[len(l.ids)-keep:])
	l.ids = kept
}

// Snapshot copies the current state for persistence.
func (l *Ledger) Snapshot() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, len(l.ids))
	copy(ids, l.ids)
	return State{IDs: ids, Checkpoint: l.checkpoint}
}

// Restore replaces the ledger contents with a persisted state.
func (l *Ledger) Restore(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids = make([]string, 0, len(s.IDs))
	l.seen = make(map[string]bool, len(s.IDs))
	for _, id := range s.IDs {
		if l.seen[id] {
			continue
		}
		l.seen[id] = true
		l.ids = append(l.ids, id)
	}
	l.checkpoint = s.Checkpoint
}
