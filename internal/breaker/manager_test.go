package breaker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestManagerGetOrCreate(t *testing.T) {
	m := NewManager(DefaultConfig(), zaptest.NewLogger(t))

	a := m.GetOrCreate("tenant:acme")
	assert.Same(t, a, m.GetOrCreate("tenant:acme"))
	assert.NotSame(t, a, m.GetOrCreate("tenant:globex"))
	assert.Nil(t, m.Get("tenant:initech"))
}

func TestManagerExecuteIsolatesTenants(t *testing.T) {
	config := DefaultConfig()
	config.ReadyToTrip = tripAfter(1)
	m := NewManager(config, zaptest.NewLogger(t))
	ctx := context.Background()

	err := m.Execute(ctx, "tenant:down", func(context.Context) error { return errDial })
	require.ErrorIs(t, err, errDial)

	assert.ErrorIs(t, m.Execute(ctx, "tenant:down", func(context.Context) error { return nil }), ErrCircuitOpen)
	assert.NoError(t, m.Execute(ctx, "tenant:up", func(context.Context) error { return nil }))
}

func TestManagerStatsAndReset(t *testing.T) {
	config := DefaultConfig()
	config.ReadyToTrip = tripAfter(1)
	m := NewManager(config, zaptest.NewLogger(t))
	ctx := context.Background()

	_ = m.Execute(ctx, "tenant:b", func(context.Context) error { return errDial })
	_ = m.Execute(ctx, "tenant:a", func(context.Context) error { return nil })

	stats := m.GetStats()
	require.Len(t, stats, 2)
	assert.Equal(t, "tenant:a", stats[0].Name)
	assert.Equal(t, "CLOSED", stats[0].State)
	assert.Equal(t, "tenant:b", stats[1].Name)
	assert.Equal(t, "OPEN", stats[1].State)

	assert.True(t, m.Reset("tenant:b"))
	assert.False(t, m.Reset("tenant:missing"))
	assert.Equal(t, StateClosed, m.Get("tenant:b").State())

	_ = m.Execute(ctx, "tenant:a", func(context.Context) error { return errDial })
	m.ResetAll()
	assert.Equal(t, StateClosed, m.Get("tenant:a").State())
}

func TestConfigByName(t *testing.T) {
	assert.Equal(t, uint32(3), ConfigByName("aggressive").MaxRequests)
	assert.Equal(t, uint32(10), ConfigByName("conservative").MaxRequests)
	assert.Equal(t, uint32(5), ConfigByName("").MaxRequests)
}
