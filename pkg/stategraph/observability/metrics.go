package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records stategraph metrics.
// Use NewMetricsRecorder for OTel, NewPrometheusMetrics for Prometheus,
// or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records one node invocation with its duration and error status.
	RecordNodeExecution(ctx context.Context, graph, nodeID string, duration time.Duration, err error)

	// RecordGraphRun records a finished run. kind is empty on success.
	RecordGraphRun(ctx context.Context, graph string, kind string, steps int, duration time.Duration)

	// RecordRoute records a label chosen by a conditional edge.
	RecordRoute(ctx context.Context, graph, from, label string)
}

type otelMetrics struct {
	nodeExecutions metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	nodeErrors     metric.Int64Counter
	graphRuns      metric.Int64Counter
	graphLatency   metric.Float64Histogram
	graphSteps     metric.Int64Histogram
	routes         metric.Int64Counter
}

func newOtelMetrics(provider metric.MeterProvider) (*otelMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter("stategraph")

	var (
		m   otelMetrics
		err error
	)
	if m.nodeExecutions, err = meter.Int64Counter("stategraph.node.executions",
		metric.WithDescription("Number of node executions"),
	); err != nil {
		return nil, err
	}
	if m.nodeLatency, err = meter.Float64Histogram("stategraph.node.latency_ms",
		metric.WithDescription("Node execution latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.nodeErrors, err = meter.Int64Counter("stategraph.node.errors",
		metric.WithDescription("Number of node execution errors"),
	); err != nil {
		return nil, err
	}
	if m.graphRuns, err = meter.Int64Counter("stategraph.graph.runs",
		metric.WithDescription("Number of graph runs"),
	); err != nil {
		return nil, err
	}
	if m.graphLatency, err = meter.Float64Histogram("stategraph.graph.latency_ms",
		metric.WithDescription("Graph run latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.graphSteps, err = meter.Int64Histogram("stategraph.graph.steps",
		metric.WithDescription("Node invocations per run"),
	); err != nil {
		return nil, err
	}
	if m.routes, err = meter.Int64Counter("stategraph.route.decisions",
		metric.WithDescription("Conditional edge decisions by label"),
	); err != nil {
		return nil, err
	}
	return &m, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// A nil provider means the global meter provider. If instrument creation
// fails, a no-op recorder is returned.
func NewMetricsRecorder(provider metric.MeterProvider) MetricsRecorder {
	m, err := newOtelMetrics(provider)
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordNodeExecution(ctx context.Context, graph, nodeID string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("graph", graph),
		attribute.String("node_id", nodeID),
	)
	m.nodeExecutions.Add(ctx, 1, attrs)
	m.nodeLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.nodeErrors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordGraphRun(ctx context.Context, graph string, kind string, steps int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("graph", graph),
		attribute.Bool("success", kind == ""),
		attribute.String("kind", kind),
	)
	m.graphRuns.Add(ctx, 1, attrs)
	m.graphLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	m.graphSteps.Record(ctx, int64(steps), attrs)
}

func (m *otelMetrics) RecordRoute(ctx context.Context, graph, from, label string) {
	m.routes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("graph", graph),
		attribute.String("from", from),
		attribute.String("label", label),
	))
}
