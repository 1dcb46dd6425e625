package directory

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/repairradar/repairradar/internal/broker"
)

const (
	// routeKeyPrefix route cache key prefix: tenant_route:{userID}
	routeKeyPrefix = "tenant_route:"

	// DefaultRouteTTL is the default lifetime of a cached route
	DefaultRouteTTL = 10 * time.Minute
)

// routeKeyInfo separates route cache keys from other uses of the secret
var routeKeyInfo = []byte("repairradar tenant route cache")

// CachedDirectory caches routes of a backing Directory in Redis. Routes
// carry tenant database credentials, so each value is sealed with
// XChaCha20-Poly1305 and bound to its user id. Redis failures and values
// that do not open fall back to the backing directory.
type CachedDirectory struct {
	next   Directory
	client *redis.Client
	aead   cipher.AEAD
	ttl    time.Duration
	logger *zap.Logger
}

// CachedDirectoryConfig contains configuration for the Redis route cache
type CachedDirectoryConfig struct {
	Next   Directory
	Client *redis.Client
	// Key seals cached routes; see DeriveRouteKey
	Key    []byte
	TTL    time.Duration
	Logger *zap.Logger
}

// DeriveRouteKey stretches secret into a route cache key with HKDF-SHA256
func DeriveRouteKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("route cache secret is empty")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, routeKeyInfo), key); err != nil {
		return nil, fmt.Errorf("deriving route cache key: %w", err)
	}
	return key, nil
}

// NewCachedDirectory creates a Redis-backed route cache
func NewCachedDirectory(config *CachedDirectoryConfig) (*CachedDirectory, error) {
	aead, err := chacha20poly1305.NewX(config.Key)
	if err != nil {
		return nil, fmt.Errorf("route cache key: %w", err)
	}
	if config.TTL <= 0 {
		config.TTL = DefaultRouteTTL
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &CachedDirectory{
		next:   config.Next,
		client: config.Client,
		aead:   aead,
		ttl:    config.TTL,
		logger: config.Logger,
	}, nil
}

func (d *CachedDirectory) seal(userID string, route broker.TenantRoute) ([]byte, error) {
	plain, err := json.Marshal(route)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, d.aead.NonceSize(), d.aead.NonceSize()+len(plain)+d.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return d.aead.Seal(nonce, nonce, plain, []byte(userID)), nil
}

func (d *CachedDirectory) open(userID string, sealed []byte) (broker.TenantRoute, bool) {
	var route broker.TenantRoute
	n := d.aead.NonceSize()
	if len(sealed) < n+d.aead.Overhead() {
		return route, false
	}
	plain, err := d.aead.Open(nil, sealed[:n], sealed[n:], []byte(userID))
	if err != nil {
		return route, false
	}
	if err := json.Unmarshal(plain, &route); err != nil || !route.Valid() {
		return route, false
	}
	return route, true
}

// Route implements Directory
func (d *CachedDirectory) Route(ctx context.Context, userID string) (broker.TenantRoute, error) {
	key := routeKeyPrefix + userID

	data, err := d.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if route, ok := d.open(userID, data); ok {
			return route, nil
		}
		d.logger.Warn("discarding unreadable cached route", zap.String("user_id", userID))
	case errors.Is(err, redis.Nil):
	default:
		d.logger.Warn("route cache unavailable",
			zap.String("user_id", userID),
			zap.Error(err))
	}

	route, err := d.next.Route(ctx, userID)
	if err != nil {
		return broker.TenantRoute{}, err
	}

	if data, err := d.seal(userID, route); err == nil {
		if err := d.client.Set(ctx, key, data, d.ttl).Err(); err != nil {
			d.logger.Warn("failed to cache tenant route",
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}

	return route, nil
}

// MarkSchemaConfigured implements Directory
func (d *CachedDirectory) MarkSchemaConfigured(ctx context.Context, userID string) error {
	return d.next.MarkSchemaConfigured(ctx, userID)
}

// Invalidate drops the cached route of userID
func (d *CachedDirectory) Invalidate(ctx context.Context, userID string) error {
	return d.client.Del(ctx, routeKeyPrefix+userID).Err()
}
