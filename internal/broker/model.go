// Package broker maps authenticated sessions to per-tenant database handles.
//
// A Broker owns a session-keyed Cache of live handles, a Factory that opens
// new handles on a miss, and a Reaper that releases handles whose sessions
// have gone idle.
package broker

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
)

var (
	// ErrConnectFailed is returned when a tenant handle could not be opened.
	ErrConnectFailed = errors.New("tenant connection failed")
	// ErrNotFound is returned by lookups that do not create.
	ErrNotFound = errors.New("session handle not found")
	// ErrUnauthenticated is the only failure the broker returns.
	ErrUnauthenticated = errors.New("session is not authenticated")
	// ErrReleaseFailed wraps close errors. It is logged, never returned.
	ErrReleaseFailed = errors.New("tenant handle release failed")
	// ErrClosed is returned once the cache has been drained.
	ErrClosed = errors.New("session cache closed")
)

// TenantRoute locates a tenant's dedicated database.
type TenantRoute struct {
	// ConnectionTarget is a postgres URL or key/value DSN.
	ConnectionTarget string `json:"connection_target"`
	// DatabaseName overrides any database named in ConnectionTarget.
	DatabaseName string `json:"database_name"`
}

// Valid reports whether both parts of the route are present.
func (r TenantRoute) Valid() bool {
	return r.ConnectionTarget != "" && r.DatabaseName != ""
}

// Handle is an open, ready-to-use connection to a tenant database.
type Handle interface {
	DB() *sql.DB
	Route() TenantRoute
	Close() error
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Entries int `json:"entries"`
	Pending int `json:"pending"`
	Shards  int `json:"shards"`
}

// KeyRef returns a short fingerprint of a session key that is safe to log.
func KeyRef(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:6])
}
