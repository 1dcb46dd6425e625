package jobcard

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

type migrator interface {
	Up() error
	Version() (version uint, dirty bool, err error)
	Close() (source error, database error)
}

var newMigrator = func(ctx context.Context, db *sql.DB) (migrator, error) {
	// A dedicated connection keeps the migrator from closing the pool.
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}

	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("creating postgres driver: %w", err)
	}

	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		_ = driver.Close()
		return nil, fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		_ = driver.Close()
		return nil, fmt.Errorf("creating migrator: %w", err)
	}

	return m, nil
}

// Migrate applies pending tenant migrations. Already applied migrations are
// skipped, so it is safe on every new tenant handle.
func Migrate(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	m, err := newMigrator(ctx, db)
	if err != nil {
		return err
	}
	defer m.Close()

	return runMigrations(m, logger)
}

func runMigrations(m migrator, logger *zap.Logger) error {
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("getting migration version: %w", err)
	}

	if dirty {
		logger.Warn("tenant migration state is dirty", zap.Uint("version", version))
		return fmt.Errorf("tenant schema dirty at version %d", version)
	}

	logger.Debug("tenant migrations complete", zap.Uint("version", version))
	return nil
}
