// Package session persists the minimal batch-tracking record across process
// restarts, and resolves it against the backend on cold start.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Record is the durable session contents. Exactly one record exists while a
// batch is tracked; the file is absent otherwise.
type Record struct {
	BatchID            string `json:"batch_id"`
	ProcessingComplete bool   `json:"processing_complete"`
	AggregateProgress  int    `json:"aggregate_progress"`
}

// Store reads and writes the session file. Saves are atomic: write to a
// temp file in the same directory, then rename over the target.
type Store struct {
	path string
}

// NewStore creates a store over the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the session file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the current record. A missing file means no tracked batch and
// returns (nil, nil).
func (s *Store) Load() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	if rec.BatchID == "" {
		// An empty record is equivalent to no record.
		return nil, nil
	}
	return &rec, nil
}

// Save writes the record durably. A nil record, or one without a batch id,
// removes the file instead: absence is how "nothing tracked" is encoded.
func (s *Store) Save(rec *Record) error {
	if rec == nil || rec.BatchID == "" {
		return s.Purge()
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Purge removes the session file. Removing an already-absent file is not an
// error.
func (s *Store) Purge() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
