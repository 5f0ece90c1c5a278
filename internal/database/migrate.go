package database

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type Migrator struct {
	m   *migrate.Migrate
	log zerolog.Logger
}

func NewMigrator(dsn string, log zerolog.Logger) (*Migrator, error) {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}

	url, err := migrateURL(dsn)
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return nil, fmt.Errorf("init migrate: %w", err)
	}
	m.Log = migrateLogger{log: log}

	return &Migrator{m: m, log: log}, nil
}

func (m *Migrator) Up() error {
	if err := m.checkClean(); err != nil {
		return err
	}
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	m.logVersion()
	return nil
}

// Down rolls back steps migrations, or all of them when steps <= 0.
func (m *Migrator) Down(steps int) error {
	if err := m.checkClean(); err != nil {
		return err
	}

	var err error
	if steps > 0 {
		err = m.m.Steps(-steps)
	} else {
		err = m.m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	m.logVersion()
	return nil
}

func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}

func (m *Migrator) checkClean() error {
	version, dirty, err := m.m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d", version)
	}
	return nil
}

func (m *Migrator) logVersion() {
	version, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		m.log.Info().Msg("schema has no migrations applied")
		return
	}
	m.log.Info().Uint("version", version).Bool("dirty", dirty).Msg("schema version")
}

// migrateURL points a postgres DSN at the pgx/v5 migrate driver.
func migrateURL(dsn string) (string, error) {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, scheme) {
			return "pgx5://" + strings.TrimPrefix(dsn, scheme), nil
		}
	}
	if strings.HasPrefix(dsn, "pgx5://") {
		return dsn, nil
	}
	return "", fmt.Errorf("migrations need a URL-style postgres dsn")
}

type migrateLogger struct {
	log zerolog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.log.Info().Msgf(strings.TrimSuffix(format, "\n"), v...)
}

func (l migrateLogger) Verbose() bool {
	return l.log.GetLevel() <= zerolog.DebugLevel
}
