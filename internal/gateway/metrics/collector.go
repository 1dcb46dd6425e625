package metrics

import (
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/repairradar/repairradar/internal/breaker"
	"github.com/repairradar/repairradar/internal/broker"
)

const defaultCollectInterval = 10 * time.Second

// StatsSource reports session cache occupancy
type StatsSource interface {
	Stats() broker.Stats
}

// Collector periodically samples gauges that have no event to hang off
type Collector struct {
	metrics  *Metrics
	logger   *zap.Logger
	broker   StatsSource
	breakers *breaker.Manager
	interval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCollector creates a collector. stats and breakers may be nil.
func NewCollector(metrics *Metrics, logger *zap.Logger, stats StatsSource, breakers *breaker.Manager) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		metrics:  metrics,
		logger:   logger,
		broker:   stats,
		breakers: breakers,
		interval: defaultCollectInterval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting in the background
func (c *Collector) Start() {
	c.wg.Add(1)
	go c.collectLoop()
	c.logger.Info("metrics collector started", zap.Duration("interval", c.interval))
}

// Stop ends the collect loop and waits for it
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.wg.Wait()
		c.logger.Info("metrics collector stopped")
	})
}

func (c *Collector) collectLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect()
	for {
		select {
		case <-ticker.C:
			c.Collect()
		case <-c.stopCh:
			return
		}
	}
}

// Collect samples every gauge once
func (c *Collector) Collect() {
	numGoroutines := runtime.NumGoroutine()
	c.metrics.GoRoutines.Set(float64(numGoroutines))

	if c.broker != nil {
		stats := c.broker.Stats()
		c.metrics.BrokerActiveHandles.Set(float64(stats.Entries))
		c.metrics.BrokerPendingClaims.Set(float64(stats.Pending))
	}

	if c.breakers != nil {
		for _, s := range c.breakers.GetStats() {
			c.metrics.UpdateCircuitBreakerState(s.Name, stateValue(s.State))
		}
	}

	c.logger.Debug("system metrics collected", zap.Int("goroutines", numGoroutines))
}

func stateValue(state string) float64 {
	switch state {
	case breaker.StateHalfOpen.String():
		return 1
	case breaker.StateOpen.String():
		return 2
	default:
		return 0
	}
}
