package metrics

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/repairradar/repairradar/internal/breaker"
	"github.com/repairradar/repairradar/internal/broker"
)

func TestNewMetricsIsolatedRegistries(t *testing.T) {
	a := NewMetrics("repairradar", "gateway")
	b := NewMetrics("repairradar", "gateway")

	a.CacheHit()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.BrokerLookups.WithLabelValues("hit")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.BrokerLookups.WithLabelValues("hit")))
}

func TestRecorder(t *testing.T) {
	m := NewMetrics("repairradar", "gateway")

	m.CacheHit()
	m.CacheHit()
	m.CacheMiss()
	m.Evicted(broker.ReasonIdle)
	m.Evicted(broker.ReasonLogout)
	m.Evicted(broker.ReasonIdle)
	m.ConnectFailed()
	m.ReleaseFailed()
	m.SetActive(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BrokerLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BrokerLookups.WithLabelValues("miss")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BrokerEvictions.WithLabelValues(broker.ReasonIdle)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BrokerConnectFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BrokerReleaseFailures))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.BrokerActiveHandles))
}

func TestRecordHTTPRequest(t *testing.T) {
	m := NewMetrics("repairradar", "gateway")

	m.RecordHTTPRequest("GET", "/api/v1/jobs", "200", 12*time.Millisecond, 0, 512)
	m.RecordHTTPRequest("GET", "/api/v1/jobs", "401", time.Millisecond, 0, 64)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/jobs", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/jobs", "401")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPRequestDuration))
}

func TestHandlerExposesBrokerMetrics(t *testing.T) {
	m := NewMetrics("repairradar", "gateway")
	m.CacheMiss()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `repairradar_gateway_broker_lookups_total{result="miss"} 1`)
	assert.True(t, strings.Contains(body, "go_goroutines"))
}

type staticStats broker.Stats

func (s staticStats) Stats() broker.Stats { return broker.Stats(s) }

func TestCollectorCollect(t *testing.T) {
	m := NewMetrics("repairradar", "gateway")

	config := breaker.DefaultConfig()
	config.ReadyToTrip = func(c breaker.Counts) bool { return c.ConsecutiveFailures >= 1 }
	breakers := breaker.NewManager(config, zaptest.NewLogger(t))
	_ = breakers.Execute(context.Background(), "tenant:down", func(context.Context) error { return errors.New("refused") })
	_ = breakers.Execute(context.Background(), "tenant:up", func(context.Context) error { return nil })

	c := NewCollector(m, zaptest.NewLogger(t), staticStats{Entries: 3, Pending: 1}, breakers)
	c.Collect()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.BrokerActiveHandles))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BrokerPendingClaims))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("tenant:down")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("tenant:up")))
	assert.Greater(t, testutil.ToFloat64(m.GoRoutines), 0.0)
}

func TestCollectorStartStop(t *testing.T) {
	m := NewMetrics("repairradar", "gateway")
	c := NewCollector(m, zaptest.NewLogger(t), nil, nil)
	c.interval = 5 * time.Millisecond

	c.Start()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.GoRoutines) > 0
	}, time.Second, 5*time.Millisecond)
	c.Stop()
	c.Stop()
}
