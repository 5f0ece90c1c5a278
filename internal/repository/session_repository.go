package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hfcloud/console/internal/models"
)

const sessionColumns = `id, user_id, device_info, ip_address, login_at, last_activity_at, is_active, ended_at, end_reason`

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) CreateWithinLimit(ctx context.Context, session models.Session, limit int, cutoff time.Time) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, mapPostgresError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	// Serializes concurrent logins of one user until commit.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, session.UserID); err != nil {
		return 0, mapPostgresError(err)
	}

	const expire = `
		UPDATE user_sessions
		SET is_active = FALSE, ended_at = $3, end_reason = $4
		WHERE user_id = $1 AND is_active AND last_activity_at < $2
	`
	if _, err := tx.Exec(ctx, expire, session.UserID, cutoff, session.LoginAt, models.SessionEndExpired); err != nil {
		return 0, mapPostgresError(err)
	}

	var live int
	const count = `SELECT COUNT(*) FROM user_sessions WHERE user_id = $1 AND is_active AND last_activity_at >= $2`
	if err := tx.QueryRow(ctx, count, session.UserID, cutoff).Scan(&live); err != nil {
		return 0, mapPostgresError(err)
	}
	if live >= limit {
		// Commit so the expiry sweep above is kept even though the login is refused.
		if err := tx.Commit(ctx); err != nil {
			return live, mapPostgresError(err)
		}
		return live, ErrDeviceLimitReached
	}

	const insert = `
		INSERT INTO user_sessions (
			id, user_id, device_info, ip_address, login_at, last_activity_at, is_active
		) VALUES (
			$1, $2, $3, $4, $5, $6, TRUE
		)
	`
	if _, err := tx.Exec(ctx, insert,
		session.ID,
		session.UserID,
		session.DeviceInfo,
		session.IPAddress,
		session.LoginAt,
		session.LastActivityAt,
	); err != nil {
		return live, mapPostgresError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return live, mapPostgresError(err)
	}
	return live + 1, nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (models.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM user_sessions WHERE id = $1`

	session, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, mapPostgresError(err)
	}
	return session, nil
}

func (r *SessionRepository) ListLive(ctx context.Context, userID string, cutoff time.Time) ([]models.Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM user_sessions
		WHERE user_id = $1 AND is_active AND last_activity_at >= $2
		ORDER BY last_activity_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID, cutoff)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, mapPostgresError(rows.Err())
}

func (r *SessionRepository) CountLive(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM user_sessions WHERE user_id = $1 AND is_active AND last_activity_at >= $2`
	var count int
	if err := r.pool.QueryRow(ctx, query, userID, cutoff).Scan(&count); err != nil {
		return 0, mapPostgresError(err)
	}
	return count, nil
}

func (r *SessionRepository) Touch(ctx context.Context, id string, at, cutoff time.Time) (bool, error) {
	const query = `
		UPDATE user_sessions
		SET last_activity_at = GREATEST(last_activity_at, $2)
		WHERE id = $1 AND is_active AND last_activity_at >= $3
	`
	cmd, err := r.pool.Exec(ctx, query, id, at, cutoff)
	if err != nil {
		return false, mapPostgresError(err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *SessionRepository) Deactivate(ctx context.Context, id string, at time.Time, reason models.SessionEndReason) (bool, error) {
	const query = `
		UPDATE user_sessions
		SET is_active = FALSE, ended_at = $2, end_reason = $3
		WHERE id = $1 AND is_active
	`
	cmd, err := r.pool.Exec(ctx, query, id, at, reason)
	if err != nil {
		return false, mapPostgresError(err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *SessionRepository) DeactivateByUser(ctx context.Context, userID string, at time.Time, reason models.SessionEndReason) (int, error) {
	const query = `
		UPDATE user_sessions
		SET is_active = FALSE, ended_at = $2, end_reason = $3
		WHERE user_id = $1 AND is_active
	`
	cmd, err := r.pool.Exec(ctx, query, userID, at, reason)
	if err != nil {
		return 0, mapPostgresError(err)
	}
	return int(cmd.RowsAffected()), nil
}

func (r *SessionRepository) DeactivateIdle(ctx context.Context, cutoff time.Time, at time.Time) (int, error) {
	const query = `
		UPDATE user_sessions
		SET is_active = FALSE, ended_at = $2, end_reason = $3
		WHERE is_active AND last_activity_at < $1
	`
	cmd, err := r.pool.Exec(ctx, query, cutoff, at, models.SessionEndExpired)
	if err != nil {
		return 0, mapPostgresError(err)
	}
	return int(cmd.RowsAffected()), nil
}

func scanSession(row pgx.Row) (models.Session, error) {
	var (
		session models.Session
		reason  *string
	)
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.DeviceInfo,
		&session.IPAddress,
		&session.LoginAt,
		&session.LastActivityAt,
		&session.IsActive,
		&session.EndedAt,
		&reason,
	)
	if reason != nil {
		session.EndReason = models.SessionEndReason(*reason)
	}
	return session, err
}
