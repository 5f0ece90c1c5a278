// Package sysconfig resolves the deployment-wide SystemConfig. Reads fall
// back from the database to the cache to built-in defaults and never fail;
// writes are admin-only, touch only the edited keys and are always mirrored
// to the cache.
package sysconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"hfcloud/console/internal/models"
	"hfcloud/console/internal/permissions"
	"hfcloud/console/internal/repository"
)

var ErrSaveFailed = errors.New("failed to save system configuration")

// Source names where a loaded configuration came from.
type Source string

const (
	SourceRemote   Source = "remote"
	SourceCache    Source = "cache"
	SourceDefaults Source = "defaults"
)

// SaveError reports a failed remote write. CachedLocally tells whether the
// values still reached the cache.
type SaveError struct {
	Err           error
	CachedLocally bool
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("%s: %v", ErrSaveFailed, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

func (e *SaveError) Is(target error) bool { return target == ErrSaveFailed }

type Resolver struct {
	store    repository.ConfigStore
	cache    repository.ConfigCache
	defaults models.SystemConfig
	log      zerolog.Logger

	mu      sync.RWMutex
	current models.SystemConfig
	source  Source
}

func NewResolver(store repository.ConfigStore, cache repository.ConfigCache, defaults models.SystemConfig, log zerolog.Logger) *Resolver {
	if store == nil || cache == nil {
		panic("sysconfig: nil dependency")
	}
	return &Resolver{
		store:    store,
		cache:    cache,
		defaults: defaults,
		log:      log,
		current:  defaults,
		source:   SourceDefaults,
	}
}

func (r *Resolver) Defaults() models.SystemConfig {
	return r.defaults
}

// Current returns the last configuration loaded or saved.
func (r *Resolver) Current() models.SystemConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

func (r *Resolver) Source() Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.source
}

// Load reads the configuration from the store, else the cache, else the
// defaults. A successful store read refreshes the cache.
func (r *Resolver) Load(ctx context.Context) (models.SystemConfig, Source) {
	cfg, err := r.loadRemote(ctx)
	if err == nil {
		if err := r.cache.StoreConfig(ctx, cfg); err != nil {
			r.log.Warn().Err(err).Msg("mirror system config to cache failed")
		}
		r.set(cfg, SourceRemote)
		return cfg, SourceRemote
	}
	r.log.Warn().Err(err).Msg("load system config from store failed, trying cache")

	cfg, err = r.cache.LoadConfig(ctx)
	if err == nil {
		r.set(cfg, SourceCache)
		return cfg, SourceCache
	}
	if !errors.Is(err, repository.ErrCacheMiss) {
		r.log.Warn().Err(err).Msg("load system config from cache failed, using defaults")
	}

	r.set(r.defaults, SourceDefaults)
	return r.defaults, SourceDefaults
}

// Refresh reloads the configuration and reports an error when the store
// could not be read.
func (r *Resolver) Refresh(ctx context.Context) error {
	if _, source := r.Load(ctx); source != SourceRemote {
		return fmt.Errorf("system config refresh served from %s", source)
	}
	return nil
}

// Apply loads the stored configuration, merges patch into it and saves the
// patched keys.
func (r *Resolver) Apply(ctx context.Context, actor models.User, patch models.ConfigPatch) (models.SystemConfig, error) {
	if !permissions.CanSaveConfig(actor.Role) {
		return r.Current(), errForbidden()
	}
	d := r.NewDraft(ctx)
	d.Update(patch)
	err := d.Save(ctx, actor)
	return d.Config(), err
}

// save writes the keys set in patch on behalf of actor and returns the
// stored result. Non-admins are rejected before anything is written; keys
// outside patch keep their stored values. If the store write fails, want is
// still mirrored to the cache and a *SaveError is returned.
func (r *Resolver) save(ctx context.Context, actor models.User, patch models.ConfigPatch, want models.SystemConfig) (models.SystemConfig, error) {
	if !permissions.CanSaveConfig(actor.Role) {
		return want, errForbidden()
	}
	if patch.Empty() {
		return want, nil
	}

	entries, err := patch.Entries()
	if err != nil {
		return want, err
	}

	if err := r.store.SaveEntries(ctx, entries, actor.ID); err != nil {
		r.log.Error().Err(err).Str("user_id", actor.ID).Msg("save system config failed")
		cacheErr := r.cache.StoreConfig(ctx, want)
		if cacheErr != nil {
			r.log.Warn().Err(cacheErr).Msg("mirror system config to cache failed")
		}
		return want, &SaveError{Err: err, CachedLocally: cacheErr == nil}
	}

	saved, err := r.loadRemote(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("reload system config after save failed")
		saved = want
	}
	if err := r.cache.StoreConfig(ctx, saved); err != nil {
		r.log.Warn().Err(err).Msg("mirror system config to cache failed")
	}

	r.set(saved, SourceRemote)
	r.log.Info().Str("user_id", actor.ID).Strs("keys", patchKeys(entries)).Msg("system config saved")
	return saved, nil
}

func errForbidden() error {
	return fmt.Errorf("%w: only administrators can change system configuration", permissions.ErrForbidden)
}

func patchKeys(entries map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(entries))
	for _, key := range models.ConfigKeys {
		if _, ok := entries[key]; ok {
			keys = append(keys, key)
		}
	}
	return keys
}

func (r *Resolver) loadRemote(ctx context.Context) (models.SystemConfig, error) {
	entries, err := r.store.LoadEntries(ctx)
	if err != nil {
		return models.SystemConfig{}, err
	}

	cfg, unknown, err := models.ConfigFromEntries(r.defaults, entries)
	if err != nil {
		return models.SystemConfig{}, err
	}
	if len(unknown) > 0 {
		r.log.Warn().Strs("keys", unknown).Msg("ignoring unknown system config keys")
	}
	return cfg, nil
}

func (r *Resolver) set(cfg models.SystemConfig, source Source) {
	r.mu.Lock()
	r.current = cfg
	r.source = source
	r.mu.Unlock()
}
