// Package directory resolves a user's tenant route from the main database.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"github.com/repairradar/repairradar/internal/broker"
)

// ErrTenantNotFound is returned when a user has no usable tenant route
var ErrTenantNotFound = errors.New("tenant not found")

var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Directory maps user identities to tenant routes
type Directory interface {
	// Route returns the tenant route of userID
	Route(ctx context.Context, userID string) (broker.TenantRoute, error)

	// MarkSchemaConfigured records that the user's job-card schema exists
	MarkSchemaConfigured(ctx context.Context, userID string) error
}

// PostgresDirectory reads tenant routes from the main database users table
type PostgresDirectory struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresDirectory creates a new directory over the main database
func NewPostgresDirectory(db *sql.DB, logger *zap.Logger) *PostgresDirectory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresDirectory{db: db, logger: logger}
}

// Route implements Directory
func (d *PostgresDirectory) Route(ctx context.Context, userID string) (broker.TenantRoute, error) {
	query, args, err := psq.Select("db_url", "db_name").
		From("users").
		Where(sq.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return broker.TenantRoute{}, fmt.Errorf("building route query: %w", err)
	}

	var dbURL, dbName sql.NullString
	err = d.db.QueryRowContext(ctx, query, args...).Scan(&dbURL, &dbName)
	if errors.Is(err, sql.ErrNoRows) {
		return broker.TenantRoute{}, fmt.Errorf("%w: %s", ErrTenantNotFound, userID)
	}
	if err != nil {
		return broker.TenantRoute{}, fmt.Errorf("querying tenant route: %w", err)
	}

	route := broker.TenantRoute{
		ConnectionTarget: dbURL.String,
		DatabaseName:     dbName.String,
	}
	if !route.Valid() {
		d.logger.Warn("user has no tenant database configured", zap.String("user_id", userID))
		return broker.TenantRoute{}, fmt.Errorf("%w: %s", ErrTenantNotFound, userID)
	}

	return route, nil
}

// MarkSchemaConfigured implements Directory
func (d *PostgresDirectory) MarkSchemaConfigured(ctx context.Context, userID string) error {
	query, args, err := psq.Update("users").
		Set("schema_configured", true).
		Where(sq.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}

	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("marking schema configured: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrTenantNotFound, userID)
	}

	return nil
}
