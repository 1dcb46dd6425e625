package broker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// RouteResolver maps the identity behind a verified credential to its
// tenant route. The broker calls it only on a cache miss.
type RouteResolver func(ctx context.Context) (TenantRoute, error)

// Config contains configuration for the broker
type Config struct {
	Factory  Factory
	Logger   *zap.Logger
	Recorder Recorder

	IdleTimeout    time.Duration
	SweepInterval  time.Duration
	ConnectTimeout time.Duration
	Shards         int

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Broker is the entry point request handlers use to obtain tenant handles
type Broker struct {
	cache  *Cache
	reaper *Reaper
	logger *zap.Logger
}

// New creates a broker and starts its idle reaper
func New(config *Config) *Broker {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	cache := NewCache(&CacheConfig{
		Factory:        config.Factory,
		Logger:         config.Logger,
		Recorder:       config.Recorder,
		Shards:         config.Shards,
		ConnectTimeout: config.ConnectTimeout,
		Clock:          config.Clock,
	})

	reaper := NewReaper(&ReaperConfig{
		Cache:         cache,
		Logger:        config.Logger,
		IdleTimeout:   config.IdleTimeout,
		SweepInterval: config.SweepInterval,
	})
	reaper.Start()

	return &Broker{
		cache:  cache,
		reaper: reaper,
		logger: config.Logger,
	}
}

// Resolve returns the tenant handle bound to key. Every failure, whether
// the route cannot be resolved or the tenant database is unreachable, is
// reported as ErrUnauthenticated.
func (b *Broker) Resolve(ctx context.Context, key string, resolve RouteResolver) (Handle, error) {
	if key == "" {
		return nil, ErrUnauthenticated
	}

	if h, ok := b.cache.touchAndGet(key); ok {
		b.cache.recorder.CacheHit()
		return h, nil
	}

	route, err := resolve(ctx)
	if err != nil {
		b.logger.Info("tenant route unresolved",
			zap.String("session_ref", KeyRef(key)),
			zap.Error(err))
		return nil, ErrUnauthenticated
	}

	h, err := b.cache.GetOrCreate(ctx, key, route)
	if err != nil {
		level := zap.WarnLevel
		if errors.Is(err, context.Canceled) {
			level = zap.DebugLevel
		}
		b.logger.Log(level, "tenant handle unavailable",
			zap.String("session_ref", KeyRef(key)),
			zap.String("database", route.DatabaseName),
			zap.Error(err))
		return nil, ErrUnauthenticated
	}

	return h, nil
}

// Logout evicts the handle bound to key
func (b *Broker) Logout(key string) {
	b.cache.Evict(key)
}

// Touch extends the liveness of key without resolving it
func (b *Broker) Touch(key string) bool {
	return b.cache.Touch(key)
}

// Stats returns the cache statistics
func (b *Broker) Stats() Stats {
	return b.cache.Stats()
}

// Cache exposes the underlying session cache
func (b *Broker) Cache() *Cache {
	return b.cache
}

// Reaper exposes the idle reaper
func (b *Broker) Reaper() *Reaper {
	return b.reaper
}

// Close stops the reaper and releases every cached handle
func (b *Broker) Close() error {
	b.reaper.Stop()
	return nil
}
