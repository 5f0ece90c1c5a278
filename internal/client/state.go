package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Keys held by the state file.
const (
	KeyCurrentUser  = "current_user"
	KeySessionID    = "session_id"
	KeyAccessToken  = "access_token"
	KeySystemConfig = "system_config"
)

// StateStore is a small JSON key/value file. Every write replaces the whole
// file through a temp file and rename, so readers never see a partial record.
type StateStore struct {
	mu   sync.Mutex
	path string
	data map[string]json.RawMessage
}

// OpenState loads path, treating a missing file as empty.
func OpenState(path string) (*StateStore, error) {
	s := &StateStore{path: path, data: make(map[string]json.RawMessage)}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", path, err)
	}
	return s, nil
}

func (s *StateStore) Path() string {
	return s.path
}

// Get decodes key into out and reports whether it was present.
func (s *StateStore) Get(key string, out any) (bool, error) {
	s.mu.Lock()
	raw, ok := s.data[key]
	s.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Update sets and deletes keys in one write. A nil value deletes the key.
func (s *StateStore) Update(values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]json.RawMessage, len(s.data)+len(values))
	for k, v := range s.data {
		next[k] = v
	}
	for key, value := range values {
		if value == nil {
			delete(next, key)
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		next[key] = raw
	}

	if err := s.write(next); err != nil {
		return err
	}
	s.data = next
	return nil
}

func (s *StateStore) Set(key string, value any) error {
	return s.Update(map[string]any{key: value})
}

func (s *StateStore) Delete(keys ...string) error {
	values := make(map[string]any, len(keys))
	for _, k := range keys {
		values[k] = nil
	}
	return s.Update(values)
}

func (s *StateStore) write(data map[string]json.RawMessage) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp state: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}
