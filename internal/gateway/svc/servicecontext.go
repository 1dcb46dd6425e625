package svc

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/repairradar/repairradar/internal/breaker"
	"github.com/repairradar/repairradar/internal/broker"
	"github.com/repairradar/repairradar/internal/directory"
	"github.com/repairradar/repairradar/internal/gateway/config"
	"github.com/repairradar/repairradar/internal/gateway/jwt"
	"github.com/repairradar/repairradar/internal/gateway/metrics"
	"github.com/repairradar/repairradar/internal/gateway/tracing"
	"github.com/repairradar/repairradar/internal/jobcard"
)

// ServiceContext holds every long-lived dependency of the gateway
type ServiceContext struct {
	Config    config.Config
	Logger    *zap.Logger
	StartTime time.Time

	Verifier  *jwt.Verifier
	MainDB    *sql.DB
	Redis     *redis.Client
	Directory directory.Directory
	Breakers  *breaker.Manager
	Broker    *broker.Broker

	Tracer           *tracing.Tracer
	Metrics          *metrics.Metrics
	MetricsCollector *metrics.Collector
}

// NewServiceContext wires the gateway. It panics on unusable configuration,
// matching conf.MustLoad.
func NewServiceContext(c config.Config) *ServiceContext {
	logger, err := newLogger(c.Log.Level)
	if err != nil {
		panic(err)
	}

	tracer, err := tracing.NewTracer(&c.Tracing, logger)
	if err != nil {
		logger.Error("failed to create tracer", zap.Error(err))
		panic(fmt.Sprintf("tracing initialization failed: %v", err))
	}

	var m *metrics.Metrics
	if c.Metrics.Enable {
		m = metrics.NewMetrics(c.Metrics.Namespace, c.Metrics.Subsystem)
	}

	mainDB, err := openMainDB(c.MainDB)
	if err != nil {
		logger.Error("failed to open main database", zap.Error(err))
		panic(fmt.Sprintf("main database initialization failed: %v", err))
	}

	var dir directory.Directory = directory.NewPostgresDirectory(mainDB, logger)
	var rdb *redis.Client
	if c.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		secret := c.Redis.RouteSecret
		if secret == "" {
			secret = c.JWT.Secret
		}
		key, err := directory.DeriveRouteKey(secret)
		if err != nil {
			logger.Error("failed to derive route cache key", zap.Error(err))
			panic(fmt.Sprintf("route cache initialization failed: %v", err))
		}
		dir, err = directory.NewCachedDirectory(&directory.CachedDirectoryConfig{
			Next:   dir,
			Client: rdb,
			Key:    key,
			TTL:    c.Redis.RouteTTL,
			Logger: logger,
		})
		if err != nil {
			logger.Error("failed to create route cache", zap.Error(err))
			panic(fmt.Sprintf("route cache initialization failed: %v", err))
		}
		logger.Info("tenant route cache enabled",
			zap.String("addr", c.Redis.Addr),
			zap.Duration("ttl", c.Redis.RouteTTL))
	}

	var breakers *breaker.Manager
	if c.Breaker.Enable {
		breakers = breaker.NewManager(breaker.ConfigByName(c.Breaker.Preset), logger)
		logger.Info("tenant circuit breakers enabled", zap.String("preset", c.Breaker.Preset))
	}

	factoryConfig := broker.PostgresFactoryConfig{
		ConnectTimeout:  c.Broker.ConnectTimeout,
		MaxOpenConns:    c.Broker.MaxOpenConns,
		MaxIdleConns:    c.Broker.MaxIdleConns,
		ConnMaxIdleTime: c.Broker.ConnMaxIdleTime,
		ConnMaxLifetime: c.Broker.ConnMaxLifetime,
		Breakers:        breakers,
		Logger:          logger,
	}
	if c.Broker.AutoMigrate {
		factoryConfig.OnOpen = func(ctx context.Context, db *sql.DB) error {
			return jobcard.Migrate(ctx, db, logger)
		}
	}

	brokerConfig := &broker.Config{
		Factory:        broker.NewPostgresFactory(factoryConfig),
		Logger:         logger,
		IdleTimeout:    c.Broker.IdleTimeout,
		SweepInterval:  c.Broker.SweepInterval,
		ConnectTimeout: c.Broker.ConnectTimeout,
		Shards:         c.Broker.Shards,
	}
	if m != nil {
		brokerConfig.Recorder = m
	}
	b := broker.New(brokerConfig)

	var collector *metrics.Collector
	if m != nil {
		collector = metrics.NewCollector(m, logger, b, breakers)
		collector.Start()
	}

	return &ServiceContext{
		Config:           c,
		Logger:           logger,
		StartTime:        time.Now(),
		Verifier:         jwt.NewVerifier(c.JWT.Secret, c.JWT.Issuer, c.JWT.Leeway),
		MainDB:           mainDB,
		Redis:            rdb,
		Directory:        dir,
		Breakers:         breakers,
		Broker:           b,
		Tracer:           tracer,
		Metrics:          m,
		MetricsCollector: collector,
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parsing log level: %w", err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return cfg.Build()
}

func openMainDB(c config.MainDBConfig) (*sql.DB, error) {
	dsn := c.DataSource
	if u, err := pq.ParseURL(dsn); err == nil && u != "" {
		dsn = u
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetMaxIdleConns(c.MaxIdleConns)
	db.SetConnMaxLifetime(c.ConnMaxLifetime)

	return db, nil
}

// Close releases every dependency. The broker goes first so tenant handles
// are closed before the process exits.
func (ctx *ServiceContext) Close() {
	if ctx.Broker != nil {
		if err := ctx.Broker.Close(); err != nil {
			ctx.Logger.Error("failed to close broker", zap.Error(err))
		}
	}

	if ctx.MetricsCollector != nil {
		ctx.MetricsCollector.Stop()
	}

	if ctx.Tracer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ctx.Tracer.Shutdown(shutdownCtx); err != nil {
			ctx.Logger.Error("failed to shutdown tracer", zap.Error(err))
		}
	}

	if ctx.Redis != nil {
		if err := ctx.Redis.Close(); err != nil {
			ctx.Logger.Error("failed to close redis client", zap.Error(err))
		}
	}

	if ctx.MainDB != nil {
		if err := ctx.MainDB.Close(); err != nil {
			ctx.Logger.Error("failed to close main database", zap.Error(err))
		}
	}

	if ctx.Logger != nil {
		_ = ctx.Logger.Sync()
	}
}
