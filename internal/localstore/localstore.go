// Package localstore is the marshal client's persisted cache: one JSON file
// per key, written as a full snapshot after every mutation. Payloads carry a
// schema version; anything stale or unreadable is treated as absent rather
// than surfaced as an error, so a device upgrade never wedges the client.
package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const schemaVersion = 1

// Well-known keys.
const (
	KeyTimestamps = "timestamps"
	KeyRace       = "race"
)

type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

type envelope struct {
	Version int             `json:"version"`
	SavedAt time.Time       `json:"savedAt"`
	Data    json.RawMessage `json:"data"`
}

// Save writes the full value for key atomically (temp file + rename).
func (s *Store) Save(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	payload, err := json.Marshal(envelope{
		Version: schemaVersion,
		SavedAt: time.Now().UTC(),
		Data:    data,
	})
	if err != nil {
		return fmt.Errorf("encoding %s envelope: %w", key, err)
	}

	path := s.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s: %w", key, err)
	}
	return nil
}

// Load reads the value for key into v. It returns false when the key is
// absent, unreadable, or from a different schema version.
func (s *Store) Load(key string, v any) (bool, error) {
	payload, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", key, err)
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return false, nil
	}
	if env.Version != schemaVersion {
		return false, nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return false, nil
	}
	return true, nil
}

// Delete removes the key. Missing keys are not an error.
func (s *Store) Delete(key string) error {
	err := os.Remove(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}
