// Package memstore provides an in-memory implementation of ledger.Store.
package memstore

import (
	"context"
	"sync"

	"github.com/linnemanlabs/mailwatch/internal/ledger"
)

// Store holds ledger state in memory. Suitable for dev/testing.
type Store struct {
	mu    sync.RWMutex
	state ledger.State
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{}
}

// Load returns a copy of the stored state.
func (s *Store) Load(_ context.Context) (ledger.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, len(s.state.IDs))
	copy(ids, s.state.IDs)
	return ledger.State{IDs: ids, Checkpoint: s.state.Checkpoint}, nil
}

// Save stores a copy of the state.
func (s *Store) Save(_ context.Context, st ledger.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(st.IDs))
	copy(ids, st.IDs)
	s.state = ledger.State{IDs: ids, Checkpoint: st.Checkpoint}
	return nil
}
