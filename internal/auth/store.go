package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists one [Credentials] record to a JSON file.
//
// One path per provider/account. Writes are best-effort (no file locking);
// the design assumes a single writer per path.
type Store struct {
	path string
}

// NewStore creates a store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the record from disk.
//
// A missing, unreadable, or corrupt file yields an empty record rather than an
// error: auth state is reconstructed from a blank slate instead of crashing.
func (s *Store) Load() *Credentials {
	creds := &Credentials{}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return creds
	}

	if err := json.Unmarshal(data, creds); err != nil {
		return &Credentials{}
	}

	return creds
}

// Save serializes the full record and overwrites the file, creating parent
// directories on first write.
func (s *Store) Save(creds *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to serialize credentials: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token cache: %w", err)
	}

	return nil
}
