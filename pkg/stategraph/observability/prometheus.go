package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics is a MetricsRecorder backed by Prometheus collectors.
type PrometheusMetrics struct {
	nodeExecutions *prometheus.CounterVec
	nodeErrors     *prometheus.CounterVec
	nodeLatency    *prometheus.HistogramVec
	graphRuns      *prometheus.CounterVec
	graphLatency   *prometheus.HistogramVec
	graphSteps     *prometheus.HistogramVec
	routes         *prometheus.CounterVec
}

var _ MetricsRecorder = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates the collectors and registers them with reg.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		nodeExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stategraph",
			Name:      "node_executions_total",
			Help:      "Number of node executions.",
		}, []string{"graph", "node"}),
		nodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stategraph",
			Name:      "node_errors_total",
			Help:      "Number of node execution errors.",
		}, []string{"graph", "node"}),
		nodeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stategraph",
			Name:      "node_duration_seconds",
			Help:      "Node execution latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"graph", "node"}),
		graphRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stategraph",
			Name:      "graph_runs_total",
			Help:      "Number of graph runs by outcome.",
		}, []string{"graph", "outcome"}),
		graphLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stategraph",
			Name:      "graph_duration_seconds",
			Help:      "Graph run latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"graph"}),
		graphSteps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stategraph",
			Name:      "graph_steps",
			Help:      "Node invocations per run.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		}, []string{"graph"}),
		routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stategraph",
			Name:      "route_decisions_total",
			Help:      "Conditional edge decisions by label.",
		}, []string{"graph", "from", "label"}),
	}

	for _, c := range []prometheus.Collector{
		m.nodeExecutions, m.nodeErrors, m.nodeLatency,
		m.graphRuns, m.graphLatency, m.graphSteps, m.routes,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordNodeExecution implements MetricsRecorder.
func (m *PrometheusMetrics) RecordNodeExecution(_ context.Context, graph, nodeID string, duration time.Duration, err error) {
	m.nodeExecutions.WithLabelValues(graph, nodeID).Inc()
	m.nodeLatency.WithLabelValues(graph, nodeID).Observe(duration.Seconds())
	if err != nil {
		m.nodeErrors.WithLabelValues(graph, nodeID).Inc()
	}
}

// RecordGraphRun implements MetricsRecorder.
func (m *PrometheusMetrics) RecordGraphRun(_ context.Context, graph string, kind string, steps int, duration time.Duration) {
	outcome := "success"
	if kind != "" {
		outcome = kind
	}
	m.graphRuns.WithLabelValues(graph, outcome).Inc()
	m.graphLatency.WithLabelValues(graph).Observe(duration.Seconds())
	m.graphSteps.WithLabelValues(graph).Observe(float64(steps))
}

// RecordRoute implements MetricsRecorder.
func (m *PrometheusMetrics) RecordRoute(_ context.Context, graph, from, label string) {
	m.routes.WithLabelValues(graph, from, label).Inc()
}
