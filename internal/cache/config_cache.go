package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"hfcloud/console/internal/models"
	"hfcloud/console/internal/repository"
)

// ConfigCache keeps the last good SystemConfig as one JSON value without a
// TTL.
type ConfigCache struct {
	client *redis.Client
	key    string
}

func NewConfigCache(client *redis.Client, key string) *ConfigCache {
	if client == nil {
		panic("cache: nil redis client")
	}
	return &ConfigCache{client: client, key: key}
}

func (c *ConfigCache) LoadConfig(ctx context.Context) (models.SystemConfig, error) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.SystemConfig{}, repository.ErrCacheMiss
		}
		return models.SystemConfig{}, fmt.Errorf("redis get %s: %w", c.key, err)
	}

	var cfg models.SystemConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return models.SystemConfig{}, fmt.Errorf("decode cached config: %w", err)
	}
	return cfg, nil
}

func (c *ConfigCache) StoreConfig(ctx context.Context, cfg models.SystemConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := c.client.Set(ctx, c.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", c.key, err)
	}
	return nil
}
