package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func setupMetricsTest(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("shutting down meter provider: %v", err)
		}
	})
	return reader, provider
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumInt64(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()
	require.NotNil(t, m)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected Sum[int64], got %T", m.Data)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestNewMetricsRecorder(t *testing.T) {
	_, provider := setupMetricsTest(t)

	recorder := NewMetricsRecorder(provider)
	require.NotNil(t, recorder)
	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop)

	assert.NotNil(t, NewMetricsRecorder(nil))
}

func TestRecordNodeExecution(t *testing.T) {
	reader, provider := setupMetricsTest(t)
	m, err := newOtelMetrics(provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordNodeExecution(ctx, "g", "a", 5*time.Millisecond, nil)
	m.RecordNodeExecution(ctx, "g", "a", 7*time.Millisecond, errors.New("boom"))

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(2), sumInt64(t, findMetric(rm, "stategraph.node.executions")))
	assert.Equal(t, int64(1), sumInt64(t, findMetric(rm, "stategraph.node.errors")))

	latency := findMetric(rm, "stategraph.node.latency_ms")
	require.NotNil(t, latency)
	hist, ok := latency.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
}

func TestRecordGraphRun(t *testing.T) {
	reader, provider := setupMetricsTest(t)
	m, err := newOtelMetrics(provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordGraphRun(ctx, "g", "", 3, time.Millisecond)
	m.RecordGraphRun(ctx, "g", "iteration_limit", 6, time.Millisecond)

	rm := collectMetrics(t, reader)
	runs := findMetric(rm, "stategraph.graph.runs")
	assert.Equal(t, int64(2), sumInt64(t, runs))

	sum := runs.Data.(metricdata.Sum[int64])
	assert.Len(t, sum.DataPoints, 2, "success and failure are separate series")

	steps := findMetric(rm, "stategraph.graph.steps")
	require.NotNil(t, steps)
	hist := steps.Data.(metricdata.Histogram[int64])
	var total int64
	for _, dp := range hist.DataPoints {
		total += dp.Sum
	}
	assert.Equal(t, int64(9), total)
}

func TestRecordRoute(t *testing.T) {
	reader, provider := setupMetricsTest(t)
	m, err := newOtelMetrics(provider)
	require.NoError(t, err)

	m.RecordRoute(context.Background(), "refine", "router", "plan")
	m.RecordRoute(context.Background(), "refine", "router", "plan")
	m.RecordRoute(context.Background(), "refine", "router", "execute")

	rm := collectMetrics(t, reader)
	routes := findMetric(rm, "stategraph.route.decisions")
	assert.Equal(t, int64(3), sumInt64(t, routes))
	assert.Len(t, routes.Data.(metricdata.Sum[int64]).DataPoints, 2)
}
