package broker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/repairradar/repairradar/internal/breaker"
)

const (
	// DefaultConnectTimeout bounds a single connection attempt
	DefaultConnectTimeout = 5 * time.Second

	tracerName = "repairradar/broker"
)

// Factory opens tenant handles. It keeps no cache of its own and must be
// safe to call concurrently for different tenants.
type Factory interface {
	Open(ctx context.Context, route TenantRoute) (Handle, error)
}

// FactoryFunc adapts a function to Factory
type FactoryFunc func(ctx context.Context, route TenantRoute) (Handle, error)

// Open calls f(ctx, route)
func (f FactoryFunc) Open(ctx context.Context, route TenantRoute) (Handle, error) {
	return f(ctx, route)
}

// PostgresFactoryConfig contains configuration for the postgres factory
type PostgresFactoryConfig struct {
	ConnectTimeout  time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration

	// Breakers puts a circuit breaker in front of each tenant database.
	// Nil disables breaking.
	Breakers *breaker.Manager

	// OnOpen runs after a successful ping. A failure closes the handle.
	OnOpen func(ctx context.Context, db *sql.DB) error

	Logger *zap.Logger
}

// PostgresFactory opens tenant handles with lib/pq
type PostgresFactory struct {
	config PostgresFactoryConfig
	logger *zap.Logger
	open   func(dsn string) (*sql.DB, error)
}

// NewPostgresFactory creates a new postgres handle factory
func NewPostgresFactory(config PostgresFactoryConfig) *PostgresFactory {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &PostgresFactory{
		config: config,
		logger: config.Logger,
		open: func(dsn string) (*sql.DB, error) {
			return sql.Open("postgres", dsn)
		},
	}
}

// Open connects to the tenant database described by route
func (f *PostgresFactory) Open(ctx context.Context, route TenantRoute) (Handle, error) {
	if !route.Valid() {
		return nil, fmt.Errorf("%w: incomplete tenant route", ErrConnectFailed)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "broker.Open")
	defer span.End()
	span.SetAttributes(attribute.String("db.name", route.DatabaseName))

	var handle Handle
	connect := func(ctx context.Context) error {
		h, err := f.connect(ctx, route)
		if err != nil {
			return err
		}
		handle = h
		return nil
	}

	var err error
	if f.config.Breakers != nil {
		err = f.config.Breakers.Execute(ctx, BreakerName(route), connect)
	} else {
		err = connect(ctx)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "connect failed")
		f.logger.Warn("tenant connection failed",
			zap.String("database", route.DatabaseName),
			zap.Error(err))
		if errors.Is(err, breaker.ErrCircuitOpen) || errors.Is(err, breaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s: %w", ErrConnectFailed, route.DatabaseName, err)
		}
		return nil, err
	}

	f.logger.Info("connected to tenant database",
		zap.String("database", route.DatabaseName))

	return handle, nil
}

func (f *PostgresFactory) connect(ctx context.Context, route TenantRoute) (Handle, error) {
	dsn, err := TenantDSN(route)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	db, err := f.open(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	if f.config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(f.config.MaxOpenConns)
	}
	if f.config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(f.config.MaxIdleConns)
	}
	if f.config.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(f.config.ConnMaxIdleTime)
	}
	if f.config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(f.config.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, f.config.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrConnectFailed, route.DatabaseName, err)
	}

	if f.config.OnOpen != nil {
		if err := f.config.OnOpen(pingCtx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrConnectFailed, route.DatabaseName, err)
		}
	}

	return &sqlHandle{db: db, route: route}, nil
}

// BreakerName is the circuit breaker name used for route
func BreakerName(route TenantRoute) string {
	return "tenant:" + route.DatabaseName
}

// TenantDSN builds a lib/pq key/value DSN for route. URL targets are
// converted first and the route's database name always wins.
func TenantDSN(route TenantRoute) (string, error) {
	target := strings.TrimSpace(route.ConnectionTarget)
	if strings.HasPrefix(target, "postgres://") || strings.HasPrefix(target, "postgresql://") {
		converted, err := pq.ParseURL(target)
		if err != nil {
			return "", fmt.Errorf("invalid connection target: %w", err)
		}
		target = converted
	}

	return target + " dbname=" + quoteDSNValue(route.DatabaseName), nil
}

func quoteDSNValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// sqlHandle is the Handle produced by PostgresFactory
type sqlHandle struct {
	db    *sql.DB
	route TenantRoute
}

func (h *sqlHandle) DB() *sql.DB        { return h.db }
func (h *sqlHandle) Route() TenantRoute { return h.route }
func (h *sqlHandle) Close() error       { return h.db.Close() }
