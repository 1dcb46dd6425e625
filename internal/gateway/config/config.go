package config

import (
	"time"

	"github.com/zeromicro/go-zero/rest"

	"github.com/repairradar/repairradar/internal/gateway/tracing"
)

// Config of the gateway process. Logging is configured through the Log
// section inherited from rest.RestConf, which also drives the zap level.
type Config struct {
	rest.RestConf

	JWT       JWTConfig
	MainDB    MainDBConfig
	Redis     RedisConfig     `json:",optional"`
	Broker    BrokerConfig    `json:",optional"`
	Breaker   BreakerConfig   `json:",optional"`
	RateLimit RateLimitConfig `json:",optional"`
	Tracing   tracing.Config  `json:",optional"`
	Metrics   MetricsConfig   `json:",optional"`
	Admin     AdminConfig     `json:",optional"`
}

// JWTConfig for bearer token verification
type JWTConfig struct {
	Secret string
	Issuer string        `json:",optional"`
	Leeway time.Duration `json:",default=30s"`
}

// MainDBConfig is the directory database holding the users table
type MainDBConfig struct {
	DataSource      string
	MaxOpenConns    int           `json:",default=10"`
	MaxIdleConns    int           `json:",default=5"`
	ConnMaxLifetime time.Duration `json:",default=30m"`
}

// RedisConfig for the tenant route cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `json:",optional"`
	Password string        `json:",optional"`
	DB       int           `json:",default=0"`
	RouteTTL time.Duration `json:",default=10m"`
	// RouteSecret seals cached routes. Empty falls back to JWT.Secret.
	RouteSecret string `json:",optional"`
}

// BrokerConfig for the tenant connection broker
type BrokerConfig struct {
	IdleTimeout     time.Duration `json:",default=30m"`
	SweepInterval   time.Duration `json:",default=5m"`
	ConnectTimeout  time.Duration `json:",default=5s"`
	Shards          int           `json:",default=32"`
	MaxOpenConns    int           `json:",default=5"`
	MaxIdleConns    int           `json:",default=2"`
	ConnMaxIdleTime time.Duration `json:",default=5m"`
	ConnMaxLifetime time.Duration `json:",default=30m"`
	AutoMigrate     bool          `json:",default=true"`
}

// BreakerConfig for the per-tenant connect breakers
type BreakerConfig struct {
	Enable bool   `json:",default=true"`
	Preset string `json:",default=default,options=default|aggressive|conservative"`
}

// RateLimitConfig for the global token bucket
type RateLimitConfig struct {
	Enable bool `json:",default=true"`
	Rate   int  `json:",default=100"` // requests per second
	Burst  int  `json:",default=200"`
}

// MetricsConfig for the Prometheus endpoint
type MetricsConfig struct {
	Enable    bool   `json:",default=true"`
	Namespace string `json:",default=repairradar"`
	Subsystem string `json:",default=gateway"`
	Path      string `json:",default=/metrics"`
}

// AdminConfig guards the operator endpoints under /api/v1/admin. An empty
// Token leaves them unregistered.
type AdminConfig struct {
	Token string `json:",optional"`
}
