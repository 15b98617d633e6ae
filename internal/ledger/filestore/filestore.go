// Package filestore persists ledger state as a JSON file on disk.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/linnemanlabs/mailwatch/internal/ledger"
)

// Store writes ledger state to a single JSON file. Writes go to a temp file
// in the same directory followed by a rename, so a crash mid-save leaves
// the previous state intact.
type Store struct {
	path string
}

// New creates a file store at path, creating parent directories as needed.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("filestore: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("filestore: create dir: %w", err)
	}
	return &Store{path: path}, nil
}

// Load reads the persisted state. A missing file is a fresh start, not an
// error.
func (s *Store) Load(_ context.Context) (ledger.State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ledger.State{}, nil
		}
		return ledger.State{}, fmt.Errorf("filestore: read %s: %w", s.path, err)
	}

	var st ledger.State
	if err := json.Unmarshal(data, &st); err != nil {
		return ledger.State{}, fmt.Errorf("filestore: parse %s: %w", s.path, err)
	}
	return st, nil
}

// Save atomically replaces the persisted state.
func (s *Store) Save(_ context.Context, st ledger.State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("filestore: marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".ledger-*.tmp")
	if err != nil {
		return fmt.Errorf("filestore: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("filestore: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("filestore: close temp: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("filestore: rename: %w", err)
	}
	return nil
}
