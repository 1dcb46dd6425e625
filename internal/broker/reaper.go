package broker

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultIdleTimeout is the default idle timeout of a cached handle
	DefaultIdleTimeout = 30 * time.Minute

	// DefaultSweepInterval is the default reaper interval
	DefaultSweepInterval = 5 * time.Minute
)

// ReaperConfig contains configuration for the idle reaper
type ReaperConfig struct {
	Cache         *Cache
	Logger        *zap.Logger
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// Reaper periodically evicts idle handles from a Cache
type Reaper struct {
	cache         *Cache
	logger        *zap.Logger
	idleTimeout   time.Duration
	sweepInterval time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// NewReaper creates a new idle reaper. Call Start to run it.
func NewReaper(config *ReaperConfig) *Reaper {
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Reaper{
		cache:         config.Cache,
		logger:        config.Logger,
		idleTimeout:   config.IdleTimeout,
		sweepInterval: config.SweepInterval,
		stop:          make(chan struct{}),
	}
}

// Start launches the sweep loop
func (r *Reaper) Start() {
	r.startOnce.Do(func() {
		r.wg.Add(1)
		go r.sweepLoop()

		r.logger.Info("idle reaper started",
			zap.Duration("idle_timeout", r.idleTimeout),
			zap.Duration("sweep_interval", r.sweepInterval))
	})
}

// Stop ends the sweep loop and releases every remaining handle
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
		r.wg.Wait()

		released := r.cache.Drain()
		r.logger.Info("idle reaper stopped", zap.Int("released", released))
	})
}

func (r *Reaper) sweepLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep(r.cache.clock())
		case <-r.stop:
			return
		}
	}
}

// Sweep evicts the entries that were idle as of now and are still idle
// when their eviction is attempted. It returns the number evicted.
func (r *Reaper) Sweep(now time.Time) int {
	keys := r.cache.SnapshotIdle(r.idleTimeout, now)
	if len(keys) == 0 {
		return 0
	}

	evicted := 0
	for _, key := range keys {
		// Re-checked under the shard lock: a touch since the snapshot wins.
		if r.cache.EvictIfIdle(key, r.idleTimeout, now) {
			evicted++
		}
	}

	if evicted > 0 {
		r.logger.Info("idle tenant handles reaped",
			zap.Int("candidates", len(keys)),
			zap.Int("evicted", evicted))
	}

	return evicted
}
