package sysconfig

import (
	"context"
	"sync"

	"hfcloud/console/internal/models"
)

// Draft is one editor's working copy of the configuration. Updates show up
// in Config immediately; nothing is persisted until Save, which writes only
// the fields the draft changed.
type Draft struct {
	resolver *Resolver

	mu      sync.Mutex
	cfg     models.SystemConfig
	pending models.ConfigPatch
}

// NewDraft starts a draft from a fresh Load.
func (r *Resolver) NewDraft(ctx context.Context) *Draft {
	cfg, _ := r.Load(ctx)
	return &Draft{resolver: r, cfg: cfg}
}

func (d *Draft) Update(patch models.ConfigPatch) models.SystemConfig {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cfg = patch.Apply(d.cfg)
	d.pending = d.pending.Merge(patch)
	return d.cfg
}

func (d *Draft) Config() models.SystemConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Save persists the pending changes. On success the draft holds the stored
// configuration and has nothing pending; on failure the edits stay staged.
func (d *Draft) Save(ctx context.Context, actor models.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	saved, err := d.resolver.save(ctx, actor, d.pending, d.cfg)
	if err != nil {
		return err
	}
	d.cfg = saved
	d.pending = models.ConfigPatch{}
	return nil
}
