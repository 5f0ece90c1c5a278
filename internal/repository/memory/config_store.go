package memory

import (
	"context"
	"encoding/json"
	"sync"

	"hfcloud/console/internal/models"
	"hfcloud/console/internal/repository"
)

// ConfigStore keeps system_configs rows in a map. Load and save failures can
// be injected to exercise fallback paths.
type ConfigStore struct {
	mu sync.Mutex

	entries   map[string]json.RawMessage
	updatedBy map[string]string
	saves     int
	loadErr   error
	saveErr   error
}

func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		entries:   make(map[string]json.RawMessage),
		updatedBy: make(map[string]string),
	}
}

func (s *ConfigStore) LoadEntries(ctx context.Context) (map[string]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make(map[string]json.RawMessage, len(s.entries))
	for key, value := range s.entries {
		out[key] = append(json.RawMessage(nil), value...)
	}
	return out, nil
}

func (s *ConfigStore) SaveEntries(ctx context.Context, entries map[string]json.RawMessage, updatedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveErr != nil {
		return s.saveErr
	}
	for key, value := range entries {
		s.entries[key] = append(json.RawMessage(nil), value...)
		s.updatedBy[key] = updatedBy
	}
	s.saves++
	return nil
}

// FailLoads makes LoadEntries return err until called again with nil.
func (s *ConfigStore) FailLoads(err error) {
	s.mu.Lock()
	s.loadErr = err
	s.mu.Unlock()
}

// FailSaves makes SaveEntries return err until called again with nil.
func (s *ConfigStore) FailSaves(err error) {
	s.mu.Lock()
	s.saveErr = err
	s.mu.Unlock()
}

// Saves reports how many SaveEntries calls were applied.
func (s *ConfigStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *ConfigStore) UpdatedBy(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedBy[key]
}

// ConfigCache is a process-local repository.ConfigCache.
type ConfigCache struct {
	mu  sync.RWMutex
	cfg *models.SystemConfig
}

func NewConfigCache() *ConfigCache {
	return &ConfigCache{}
}

func (c *ConfigCache) LoadConfig(ctx context.Context) (models.SystemConfig, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cfg == nil {
		return models.SystemConfig{}, repository.ErrCacheMiss
	}
	return *c.cfg, nil
}

func (c *ConfigCache) StoreConfig(ctx context.Context, cfg models.SystemConfig) error {
	c.mu.Lock()
	c.cfg = &cfg
	c.mu.Unlock()
	return nil
}
