package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hfcloud/console/internal/models"
)

const userColumns = `id, username, email, password_hash, role, status, related_projects, last_login_at, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, user models.User) error {
	const query = `
		INSERT INTO users (
			id, username, email, password_hash, role, status, related_projects, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, NOW(), NOW()
		)
	`

	projects := user.RelatedProjects
	if projects == nil {
		projects = []string{}
	}

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.Status,
		projects,
	)
	return mapPostgresError(err)
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return r.getOne(ctx, query, username)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *UserRepository) List(ctx context.Context, filter UserFilter) ([]models.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE $1::text = '' OR username ILIKE '%' || $1::text || '%' OR email ILIKE '%' || $1::text || '%'
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.pool.Query(ctx, query, filter.Search)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, mapPostgresError(rows.Err())
}

func (r *UserRepository) Update(ctx context.Context, user models.User) error {
	const query = `
		UPDATE users
		SET username = $2,
		    email = $3,
		    role = $4,
		    status = $5,
		    related_projects = $6,
		    updated_at = NOW()
		WHERE id = $1
	`

	projects := user.RelatedProjects
	if projects == nil {
		projects = []string{}
	}

	cmd, err := r.pool.Exec(ctx, query, user.ID, user.Username, user.Email, user.Role, user.Status, projects)
	if err != nil {
		return mapPostgresError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id string, passwordHash []byte) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return mapPostgresError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) UpdateStatus(ctx context.Context, id string, status models.UserStatus) error {
	const query = `UPDATE users SET status = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return mapPostgresError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE users SET last_login_at = $2 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, at)
	return mapPostgresError(err)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg string) (models.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, mapPostgresError(err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.Status,
		&user.RelatedProjects,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}
