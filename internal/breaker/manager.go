package breaker

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager keeps one breaker per name, created lazily with a shared config
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	config   Config
	logger   *zap.Logger
}

// NewManager creates a breaker manager. Every breaker it creates uses config.
func NewManager(config Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		breakers: make(map[string]*CircuitBreaker),
		config:   config,
		logger:   logger,
	}
}

// GetOrCreate returns the breaker registered under name
func (m *Manager) GetOrCreate(name string) *CircuitBreaker {
	m.mu.RLock()
	cb, exists := m.breakers[name]
	m.mu.RUnlock()

	if exists {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, exists = m.breakers[name]; exists {
		return cb
	}

	cb = NewCircuitBreaker(name, m.config, m.logger)
	m.breakers[name] = cb

	m.logger.Debug("circuit breaker created",
		zap.String("name", name),
		zap.Duration("interval", cb.config.Interval),
		zap.Duration("timeout", cb.config.Timeout),
		zap.Uint32("max_requests", cb.config.MaxRequests),
	)

	return cb
}

// Execute runs fn through the breaker registered under name
func (m *Manager) Execute(ctx context.Context, name string, fn func(context.Context) error) error {
	return m.GetOrCreate(name).ExecuteContext(ctx, fn)
}

// Get returns the breaker registered under name, or nil
func (m *Manager) Get(name string) *CircuitBreaker {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.breakers[name]
}

// Reset closes the named breaker. It reports whether the breaker exists.
func (m *Manager) Reset(name string) bool {
	cb := m.Get(name)
	if cb == nil {
		return false
	}
	cb.Reset()
	return true
}

// ResetAll closes every breaker
func (m *Manager) ResetAll() {
	m.mu.RLock()
	breakers := make([]*CircuitBreaker, 0, len(m.breakers))
	for _, cb := range m.breakers {
		breakers = append(breakers, cb)
	}
	m.mu.RUnlock()

	for _, cb := range breakers {
		cb.Reset()
	}

	m.logger.Info("all circuit breakers reset", zap.Int("count", len(breakers)))
}

// GetStats returns a snapshot of every breaker, ordered by name
func (m *Manager) GetStats() []BreakerStats {
	m.mu.RLock()
	breakers := make([]*CircuitBreaker, 0, len(m.breakers))
	for _, cb := range m.breakers {
		breakers = append(breakers, cb)
	}
	m.mu.RUnlock()

	stats := make([]BreakerStats, 0, len(breakers))
	for _, cb := range breakers {
		counts := cb.Counts()
		stats = append(stats, BreakerStats{
			Name:                 cb.Name(),
			State:                cb.State().String(),
			Requests:             counts.Requests,
			TotalSuccesses:       counts.TotalSuccesses,
			TotalFailures:        counts.TotalFailures,
			ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
			ConsecutiveFailures:  counts.ConsecutiveFailures,
			ErrorRate:            counts.ErrorRate(),
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })

	return stats
}

// BreakerStats is the externally visible state of one breaker
type BreakerStats struct {
	Name                 string  `json:"name"`
	State                string  `json:"state"`
	Requests             uint32  `json:"requests"`
	TotalSuccesses       uint32  `json:"total_successes"`
	TotalFailures        uint32  `json:"total_failures"`
	ConsecutiveSuccesses uint32  `json:"consecutive_successes"`
	ConsecutiveFailures  uint32  `json:"consecutive_failures"`
	ErrorRate            float64 `json:"error_rate"`
}

// DefaultConfig trips after 5 requests with a 50% error rate or 5
// consecutive failures, and retries after a minute
func DefaultConfig() Config {
	return Config{
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: defaultReadyToTrip,
	}
}

// AggressiveConfig trips faster and recovers sooner
func AggressiveConfig() Config {
	return Config{
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts Counts) bool {
			return counts.Requests >= 3 && (counts.ErrorRate() >= 0.3 || counts.ConsecutiveFailures >= 3)
		},
	}
}

// ConservativeConfig tolerates more failures before tripping
func ConservativeConfig() Config {
	return Config{
		MaxRequests: 10,
		Interval:    20 * time.Second,
		Timeout:     120 * time.Second,
		ReadyToTrip: func(counts Counts) bool {
			return counts.Requests >= 10 && (counts.ErrorRate() >= 0.7 || counts.ConsecutiveFailures >= 10)
		},
	}
}

// ConfigByName maps a config preset name to its Config. Unknown names
// return DefaultConfig.
func ConfigByName(name string) Config {
	switch name {
	case "aggressive":
		return AggressiveConfig()
	case "conservative":
		return ConservativeConfig()
	default:
		return DefaultConfig()
	}
}
