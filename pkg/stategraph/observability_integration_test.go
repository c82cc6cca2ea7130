package stategraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/randalmurphal/stategraph/pkg/stategraph/journal"
	"github.com/randalmurphal/stategraph/pkg/stategraph/observability"
	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

func TestInvoke_WithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(slog.LevelDebug, "json", &buf)

	compiled := mustCompile(t, linearGraph().SetName("linear"))
	_, err := invoke(t, compiled, nil, WithLogger(logger), WithRunID("run-log"))
	require.NoError(t, err)

	var messages []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		messages = append(messages, entry["msg"].(string))
	}
	assert.Equal(t, "graph run starting", messages[0])
	assert.Equal(t, "graph run completed", messages[len(messages)-1])
	assert.Contains(t, messages, "node starting")
	assert.Contains(t, messages, "node completed")
}

func TestInvoke_WithLogger_Failure(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(slog.LevelInfo, "json", &buf)

	compiled := mustCompile(t, NewGraph(testSchema()).
		AddNode("a", failing(errors.New("boom"))).
		SetEntry("a").
		AddEdge("a", END))
	_, err := invoke(t, compiled, nil, WithLogger(logger))
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, `"msg":"graph run failed"`)
	assert.Contains(t, out, `"kind":"node_execution"`)
	assert.Contains(t, out, `"last_node":"a"`)
}

func TestInvoke_NodeLoggerIsEnriched(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(slog.LevelInfo, "text", &buf)

	compiled := mustCompile(t, NewGraph(testSchema()).
		AddNode("talk", func(ctx Context, _ state.State) (state.Update, error) {
			ctx.Logger().Info("from node")
			return nil, nil
		}).
		SetEntry("talk").
		AddEdge("talk", END))

	_, err := invoke(t, compiled, nil, WithLogger(logger), WithRunID("run-ctx"))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "run_id=run-ctx")
	assert.Contains(t, buf.String(), "node_id=talk")
}

func TestInvoke_WithMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	compiled := mustCompile(t, NewGraph(testSchema()).
		AddNode("inc", increment("inc")).
		SetEntry("inc").
		AddConditionalEdges("inc", func(_ Context, s state.State) string {
			if keyCount.Get(s) >= 2 {
				return "done"
			}
			return "again"
		}, map[string]string{"again": "inc", "done": END}))

	_, err := invoke(t, compiled, nil, WithMetrics(observability.NewMetricsRecorder(provider)))
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), sums["stategraph.node.executions"])
	assert.Equal(t, int64(1), sums["stategraph.graph.runs"])
	assert.Equal(t, int64(2), sums["stategraph.route.decisions"])
	assert.Zero(t, sums["stategraph.node.errors"])
}

func TestInvoke_WithTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	compiled := mustCompile(t, linearGraph().SetName("traced"))
	_, err := invoke(t, compiled, nil, WithTracing(observability.NewSpanManager(tp)))
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 4)

	names := make([]string, len(spans))
	for i, s := range spans {
		names[i] = s.Name
	}
	assert.Equal(t, []string{
		"stategraph.node.a",
		"stategraph.node.b",
		"stategraph.node.c",
		"stategraph.run",
	}, names)

	run := spans[3]
	for _, node := range spans[:3] {
		assert.Equal(t, run.SpanContext.SpanID(), node.Parent.SpanID())
	}
}

func TestInvoke_WithJournal(t *testing.T) {
	store := journal.NewMemoryStore()
	ctx := context.Background()

	compiled := mustCompile(t, NewGraph(testSchema()).
		SetName("journaled").
		AddNode("a", visit("a")).
		AddNode("b", visit("b")).
		SetEntry("a").
		AddEdge("a", "b").
		AddConditionalEdges("b", always("finish"), map[string]string{"finish": END}))

	_, err := invoke(t, compiled, nil, WithJournal(store), WithRunID("run-j"))
	require.NoError(t, err)

	entries, err := store.Entries(ctx, "run-j")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, 1, entries[0].Step)
	assert.Equal(t, "a", entries[0].Node)
	assert.Equal(t, "b", entries[0].Next)
	assert.Equal(t, journal.PhasePending, entries[0].Phase)
	assert.JSONEq(t, `{"trail":["a"]}`, string(entries[0].Update))

	assert.Equal(t, "finish", entries[1].Label)
	assert.Equal(t, END, entries[1].Next)

	assert.Equal(t, END, entries[2].Node)
	assert.Equal(t, journal.PhaseTerminal, entries[2].Phase)
	for _, e := range entries {
		assert.Equal(t, "journaled", e.Graph)
	}
}

func TestInvoke_WithJournal_Failure(t *testing.T) {
	store := journal.NewMemoryStore()

	compiled := mustCompile(t, linearGraph().SetMaxIterations(2))
	_, err := invoke(t, compiled, nil, WithJournal(store), WithRunID("run-f"))
	require.Error(t, err)

	entries, err := store.Entries(context.Background(), "run-f")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	last := entries[2]
	assert.Equal(t, journal.PhaseFailed, last.Phase)
	assert.Equal(t, "c", last.Node)
	assert.Equal(t, 3, last.Step)
	assert.Contains(t, last.Error, "exceeded maximum iterations")
}

func TestInvoke_JournalFailureIsNotFatal(t *testing.T) {
	store := journal.NewMemoryStore()
	require.NoError(t, store.Close())

	var buf bytes.Buffer
	logger := observability.NewLogger(slog.LevelWarn, "text", &buf)

	final, err := invoke(t, mustCompile(t, linearGraph()), nil, WithJournal(store), WithLogger(logger))
	require.NoError(t, err)
	assert.Len(t, keyTrail.Get(final), 3)
	assert.Contains(t, buf.String(), "journal write failed")
}
