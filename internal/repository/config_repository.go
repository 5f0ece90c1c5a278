package repository

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ConfigRepository struct {
	pool *pgxpool.Pool
}

func NewConfigRepository(pool *pgxpool.Pool) *ConfigRepository {
	return &ConfigRepository{pool: pool}
}

func (r *ConfigRepository) LoadEntries(ctx context.Context) (map[string]json.RawMessage, error) {
	const query = `SELECT config_key, config_value FROM system_configs`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	entries := make(map[string]json.RawMessage)
	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, mapPostgresError(err)
		}
		entries[key] = json.RawMessage(value)
	}
	return entries, mapPostgresError(rows.Err())
}

func (r *ConfigRepository) SaveEntries(ctx context.Context, entries map[string]json.RawMessage, updatedBy string) error {
	const query = `
		INSERT INTO system_configs (config_key, config_value, updated_by, updated_at)
		VALUES ($1, $2::jsonb, $3, NOW())
		ON CONFLICT (config_key)
		DO UPDATE SET
			config_value = EXCLUDED.config_value,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
	`

	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	batch := &pgx.Batch{}
	for _, key := range keys {
		batch.Queue(query, key, string(entries[key]), updatedBy)
	}

	// All upserts commit together or not at all.
	return mapPostgresError(pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	}))
}
