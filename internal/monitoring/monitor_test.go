package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openapi-mcp/internal/config"
	apperrors "openapi-mcp/internal/errors"
	"openapi-mcp/internal/logging"
)

func newTestMonitor(window int) *Monitor {
	return New(config.MonitoringConfig{
		Enabled:               true,
		FastThresholdMS:       200,
		AcceptableThresholdMS: 500,
		SlowThresholdMS:       2000,
		WindowSize:            window,
	}, nil)
}

func TestObserveCountsCallsAndErrors(t *testing.T) {
	m := newTestMonitor(16)
	ctx := context.Background()

	m.Observe(ctx, "searchEndpoints", 50*time.Millisecond, nil)
	m.Observe(ctx, "searchEndpoints", 300*time.Millisecond, nil)
	m.Observe(ctx, "searchEndpoints", 3*time.Second, errors.New("boom"))
	m.Observe(ctx, "getSchema", 10*time.Millisecond, nil)

	snap := m.Snapshot()
	assert.Equal(t, uint64(4), snap.TotalCalls)
	assert.Equal(t, uint64(1), snap.TotalErrors)

	search := snap.Tools["searchEndpoints"]
	assert.Equal(t, uint64(3), search.Calls)
	assert.Equal(t, uint64(1), search.Errors)
	assert.InDelta(t, 1.0/3.0, search.ErrorRate, 1e-9)
	assert.Equal(t, uint64(1), search.Fast)
	assert.Equal(t, uint64(1), search.Acceptable)
	assert.Equal(t, uint64(1), search.Slow)
	assert.NotEmpty(t, search.LastCall)

	schema := snap.Tools["getSchema"]
	assert.Equal(t, uint64(1), schema.Calls)
	assert.Equal(t, uint64(0), schema.Errors)
}

func TestSnapshotPercentiles(t *testing.T) {
	m := newTestMonitor(128)
	ctx := context.Background()
	for i := 1; i <= 100; i++ {
		m.Observe(ctx, "searchEndpoints", time.Duration(i)*time.Millisecond, nil)
	}

	snap := m.Snapshot().Tools["searchEndpoints"]
	assert.InDelta(t, 50, snap.P50MS, 0.001)
	assert.InDelta(t, 95, snap.P95MS, 0.001)
	assert.InDelta(t, 99, snap.P99MS, 0.001)
}

func TestWindowDropsOldestSamples(t *testing.T) {
	m := newTestMonitor(4)
	ctx := context.Background()

	// four slow samples, then four fast ones push them out of the window
	for i := 0; i < 4; i++ {
		m.Observe(ctx, "getExample", time.Second, nil)
	}
	for i := 0; i < 4; i++ {
		m.Observe(ctx, "getExample", time.Millisecond, nil)
	}

	snap := m.Snapshot().Tools["getExample"]
	assert.Equal(t, uint64(8), snap.Calls, "counters cover every call")
	assert.InDelta(t, 1, snap.P99MS, 0.001, "percentiles cover only the window")
}

func TestErrorKindHistogram(t *testing.T) {
	m := newTestMonitor(16)
	ctx := context.Background()

	m.Observe(ctx, "getSchema", time.Millisecond, apperrors.NewResourceNotFound("schema", "User", nil))
	m.Observe(ctx, "getSchema", time.Millisecond, apperrors.NewResourceNotFound("schema", "Pet", nil))
	m.Observe(ctx, "getSchema", time.Millisecond, errors.New("boom"))
	m.Observe(ctx, "getSchema", time.Millisecond, nil)

	snap := m.Snapshot().Tools["getSchema"]
	assert.Equal(t, uint64(2), snap.ErrorKinds[string(apperrors.ErrorCodeResourceNotFound)])
	assert.Equal(t, uint64(1), snap.ErrorKinds[string(apperrors.ErrorCodeInternal)])
}

func TestAlertHandlerFanOut(t *testing.T) {
	m := newTestMonitor(16)
	m.SetThreshold("searchEndpoints", 200)

	var alerts []Alert
	m.AddAlertHandler(func(a Alert) { alerts = append(alerts, a) })

	ctx := context.WithValue(context.Background(), logging.RequestIDKey, "req-1234")
	m.Observe(ctx, "searchEndpoints", 50*time.Millisecond, nil)
	require.Empty(t, alerts)

	m.Observe(ctx, "searchEndpoints", 250*time.Millisecond, nil)
	require.Len(t, alerts, 1)
	assert.Equal(t, "searchEndpoints", alerts[0].Tool)
	assert.Equal(t, int64(250), alerts[0].TookMS)
	assert.Equal(t, 200, alerts[0].ThresholdMS)
	assert.Equal(t, "req-1234", alerts[0].RequestID)
}

func TestAlertFallsBackToSlowThreshold(t *testing.T) {
	m := newTestMonitor(16)

	var alerts []Alert
	m.AddAlertHandler(func(a Alert) { alerts = append(alerts, a) })

	m.Observe(context.Background(), "getExample", time.Second, nil)
	assert.Empty(t, alerts)
	m.Observe(context.Background(), "getExample", 3*time.Second, nil)
	assert.Len(t, alerts, 1)
}

func TestDisabledMonitorRecordsNothing(t *testing.T) {
	m := New(config.MonitoringConfig{Enabled: false}, nil)
	m.Observe(context.Background(), "searchEndpoints", time.Second, nil)

	snap := m.Snapshot()
	assert.Zero(t, snap.TotalCalls)
	assert.Empty(t, snap.Tools)
}

func TestDefaultsApplied(t *testing.T) {
	m := New(config.MonitoringConfig{Enabled: true}, nil)
	require.Equal(t, DefaultWindowSize, m.cfg.WindowSize)
	require.Equal(t, DefaultFastThresholdMS, m.cfg.FastThresholdMS)
	require.Equal(t, DefaultAcceptableThresholdMS, m.cfg.AcceptableThresholdMS)
	require.Equal(t, DefaultSlowThresholdMS, m.cfg.SlowThresholdMS)
}
