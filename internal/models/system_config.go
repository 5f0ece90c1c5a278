package models

import (
	"encoding/json"
	"fmt"
)

// Persisted config keys, one row per key in system_configs.
const (
	ConfigKeySystemName      = "systemName"
	ConfigKeyLogoURL         = "logoUrl"
	ConfigKeyLogoSize        = "logoSize"
	ConfigKeyFaviconURL      = "faviconUrl"
	ConfigKeyAdminEmail      = "adminEmail"
	ConfigKeyAnnouncement    = "announcement"
	ConfigKeyMaintenanceMode = "maintenanceMode"
)

// ConfigKeys is the closed set of keys a SystemConfig is stored under.
var ConfigKeys = []string{
	ConfigKeySystemName,
	ConfigKeyLogoURL,
	ConfigKeyLogoSize,
	ConfigKeyFaviconURL,
	ConfigKeyAdminEmail,
	ConfigKeyAnnouncement,
	ConfigKeyMaintenanceMode,
}

type SystemConfig struct {
	SystemName      string `json:"systemName"`
	LogoURL         string `json:"logoUrl"`
	LogoSize        int    `json:"logoSize"`
	FaviconURL      string `json:"faviconUrl"`
	AdminEmail      string `json:"adminEmail"`
	Announcement    string `json:"announcement"`
	MaintenanceMode bool   `json:"maintenanceMode"`
}

// ConfigPatch carries the fields a caller wants to change. Nil fields are left
// untouched; a non-nil pointer to a zero value is an explicit write.
type ConfigPatch struct {
	SystemName      *string `json:"systemName,omitempty"`
	LogoURL         *string `json:"logoUrl,omitempty"`
	LogoSize        *int    `json:"logoSize,omitempty"`
	FaviconURL      *string `json:"faviconUrl,omitempty"`
	AdminEmail      *string `json:"adminEmail,omitempty"`
	Announcement    *string `json:"announcement,omitempty"`
	MaintenanceMode *bool   `json:"maintenanceMode,omitempty"`
}

func (p ConfigPatch) Empty() bool {
	return p.SystemName == nil && p.LogoURL == nil && p.LogoSize == nil && p.FaviconURL == nil &&
		p.AdminEmail == nil && p.Announcement == nil && p.MaintenanceMode == nil
}

// Apply merges p into c field by field.
func (p ConfigPatch) Apply(c SystemConfig) SystemConfig {
	if p.SystemName != nil {
		c.SystemName = *p.SystemName
	}
	if p.LogoURL != nil {
		c.LogoURL = *p.LogoURL
	}
	if p.LogoSize != nil {
		c.LogoSize = *p.LogoSize
	}
	if p.FaviconURL != nil {
		c.FaviconURL = *p.FaviconURL
	}
	if p.AdminEmail != nil {
		c.AdminEmail = *p.AdminEmail
	}
	if p.Announcement != nil {
		c.Announcement = *p.Announcement
	}
	if p.MaintenanceMode != nil {
		c.MaintenanceMode = *p.MaintenanceMode
	}
	return c
}

// Merge returns p overlaid with next; fields set in next win.
func (p ConfigPatch) Merge(next ConfigPatch) ConfigPatch {
	if next.SystemName != nil {
		p.SystemName = next.SystemName
	}
	if next.LogoURL != nil {
		p.LogoURL = next.LogoURL
	}
	if next.LogoSize != nil {
		p.LogoSize = next.LogoSize
	}
	if next.FaviconURL != nil {
		p.FaviconURL = next.FaviconURL
	}
	if next.AdminEmail != nil {
		p.AdminEmail = next.AdminEmail
	}
	if next.Announcement != nil {
		p.Announcement = next.Announcement
	}
	if next.MaintenanceMode != nil {
		p.MaintenanceMode = next.MaintenanceMode
	}
	return p
}

// Entries encodes only the fields set in p.
func (p ConfigPatch) Entries() (map[string]json.RawMessage, error) {
	values := make(map[string]any, len(ConfigKeys))
	if p.SystemName != nil {
		values[ConfigKeySystemName] = *p.SystemName
	}
	if p.LogoURL != nil {
		values[ConfigKeyLogoURL] = *p.LogoURL
	}
	if p.LogoSize != nil {
		values[ConfigKeyLogoSize] = *p.LogoSize
	}
	if p.FaviconURL != nil {
		values[ConfigKeyFaviconURL] = *p.FaviconURL
	}
	if p.AdminEmail != nil {
		values[ConfigKeyAdminEmail] = *p.AdminEmail
	}
	if p.Announcement != nil {
		values[ConfigKeyAnnouncement] = *p.Announcement
	}
	if p.MaintenanceMode != nil {
		values[ConfigKeyMaintenanceMode] = *p.MaintenanceMode
	}

	entries := make(map[string]json.RawMessage, len(values))
	for key, value := range values {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		entries[key] = raw
	}
	return entries, nil
}

// ConfigFromEntries overlays the stored rows onto defaults. Keys missing from
// entries keep their default; stored values are kept even when zero. Unknown
// keys are returned so the caller can report them.
func ConfigFromEntries(defaults SystemConfig, entries map[string]json.RawMessage) (SystemConfig, []string, error) {
	cfg := defaults
	var unknown []string

	for key, raw := range entries {
		var target any
		switch key {
		case ConfigKeySystemName:
			target = &cfg.SystemName
		case ConfigKeyLogoURL:
			target = &cfg.LogoURL
		case ConfigKeyLogoSize:
			target = &cfg.LogoSize
		case ConfigKeyFaviconURL:
			target = &cfg.FaviconURL
		case ConfigKeyAdminEmail:
			target = &cfg.AdminEmail
		case ConfigKeyAnnouncement:
			target = &cfg.Announcement
		case ConfigKeyMaintenanceMode:
			target = &cfg.MaintenanceMode
		default:
			unknown = append(unknown, key)
			continue
		}
		if err := json.Unmarshal(raw, target); err != nil {
			return defaults, unknown, fmt.Errorf("decode %s: %w", key, err)
		}
	}

	return cfg, unknown, nil
}
