package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/stategraph/internal/server"
	"github.com/randalmurphal/stategraph/internal/workflows"
	"github.com/randalmurphal/stategraph/pkg/stategraph"
	"github.com/randalmurphal/stategraph/pkg/stategraph/journal"
	"github.com/randalmurphal/stategraph/pkg/stategraph/llm"
	"github.com/randalmurphal/stategraph/pkg/stategraph/observability"
)

type fixture struct {
	handler http.Handler
	journal journal.Store
}

func newFixture(t *testing.T, completer llm.Completer, mutate ...func(*server.Options)) fixture {
	t.Helper()
	catalog, err := workflows.NewCatalog(workflows.Deps{Completer: completer})
	require.NoError(t, err)

	store := journal.NewMemoryStore()
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewPrometheusMetrics(reg)
	require.NoError(t, err)

	opts := server.Options{
		Catalog:  catalog,
		Journal:  store,
		Metrics:  metrics,
		Gatherer: reg,
		Logger:   observability.NewNopLogger(),
	}
	for _, m := range mutate {
		m(&opts)
	}
	return fixture{handler: server.NewHandler(opts), journal: store}
}

func (f fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, llm.Echo{})
	w := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestListWorkflows(t *testing.T) {
	f := newFixture(t, llm.Echo{})
	w := f.do(t, http.MethodGet, "/v1/workflows", nil)
	require.Equal(t, http.StatusOK, w.Code)

	list := decode[[]server.WorkflowInfo](t, w)
	require.Len(t, list, 3)
	assert.Equal(t, "assistant", list[0].Name)
	assert.Equal(t, "pipeline", list[1].Name)
	assert.Equal(t, []string{"record_input", "record_messages", "call_llm"}, list[1].Nodes)
	assert.Contains(t, list[1].Fields, "messages")
}

func TestWorkflowGraph(t *testing.T) {
	f := newFixture(t, llm.Echo{})

	w := f.do(t, http.MethodGet, "/v1/workflows/pipeline/graph", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "graph TD\n"))
	assert.Contains(t, w.Body.String(), "record_input --> record_messages")

	w = f.do(t, http.MethodGet, "/v1/workflows/nope/graph", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, server.KindNotFound, decode[server.ErrorResponse](t, w).Kind)
}

func TestInvoke(t *testing.T) {
	f := newFixture(t, llm.NewScripted("Paris"))

	w := f.do(t, http.MethodPost, "/v1/workflows/pipeline/invoke", server.InvokeRequest{
		Input: "capital of France?",
		RunID: "run-1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[server.InvokeResponse](t, w)
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, "Paris", resp.Output)

	var st map[string]any
	require.NoError(t, json.Unmarshal(resp.State, &st))
	assert.Equal(t, true, st["done"])
	assert.Len(t, st["messages"], 3)

	// The run is journaled and visible through the API.
	w = f.do(t, http.MethodGet, "/v1/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"run-1"}, decode[[]string](t, w))

	w = f.do(t, http.MethodGet, "/v1/runs/run-1/journal", nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries := decode[[]journal.Entry](t, w)
	require.Len(t, entries, 4)
	assert.Equal(t, "record_input", entries[0].Node)
	assert.Equal(t, journal.PhaseTerminal, entries[3].Phase)

	w = f.do(t, http.MethodGet, "/v1/workflows/pipeline/graph?run=run-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "class call_llm visited;")
	assert.Contains(t, w.Body.String(), "class __end__ current;")
}

func TestInvoke_GeneratesRunID(t *testing.T) {
	f := newFixture(t, llm.Echo{})
	w := f.do(t, http.MethodPost, "/v1/workflows/pipeline/invoke", server.InvokeRequest{Input: "x"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[server.InvokeResponse](t, w).RunID, 36)
}

func TestInvoke_StateDecoding(t *testing.T) {
	completer := llm.NewScripted("plan", "bad")
	f := newFixture(t, completer)

	w := f.do(t, http.MethodPost, "/v1/workflows/refine/invoke", map[string]any{
		"input": "q",
		"state": map[string]any{"max_attempts": "1"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[server.InvokeResponse](t, w)
	assert.True(t, strings.HasPrefix(resp.Output, "I couldn't produce a valid answer in 1 attempts."))
}

func TestInvoke_BadRequests(t *testing.T) {
	f := newFixture(t, llm.Echo{})

	w := f.do(t, http.MethodPost, "/v1/workflows/pipeline/invoke", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, server.KindBadRequest, decode[server.ErrorResponse](t, w).Kind)

	w = f.do(t, http.MethodPost, "/v1/workflows/pipeline/invoke", map[string]any{"state": map[string]any{"bogus": 1}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/v1/workflows/missing/invoke", server.InvokeRequest{Input: "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInvoke_RunFailure(t *testing.T) {
	f := newFixture(t, llm.NewScripted())

	w := f.do(t, http.MethodPost, "/v1/workflows/pipeline/invoke", server.InvokeRequest{Input: "x", RunID: "r"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decode[server.ErrorResponse](t, w)
	assert.Equal(t, stategraph.KindNodeExecution, resp.Kind)
	assert.Equal(t, "call_llm", resp.Node)
	assert.Equal(t, 3, resp.Step)
	assert.Equal(t, "r", resp.RunID)

	w = f.do(t, http.MethodGet, "/v1/workflows/pipeline/graph?run=r", nil)
	assert.Contains(t, w.Body.String(), "class call_llm failed;")
}

func TestInvoke_IterationLimit(t *testing.T) {
	f := newFixture(t, llm.Echo{})
	w := f.do(t, http.MethodPost, "/v1/workflows/pipeline/invoke", server.InvokeRequest{Input: "x", MaxIterations: 2})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, stategraph.KindIterationLimit, decode[server.ErrorResponse](t, w).Kind)
}

func TestRunJournal_NotFound(t *testing.T) {
	f := newFixture(t, llm.Echo{})
	w := f.do(t, http.MethodGet, "/v1/runs/unknown/journal", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListRuns_Empty(t *testing.T) {
	f := newFixture(t, llm.Echo{})
	w := f.do(t, http.MethodGet, "/v1/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, llm.Echo{})
	f.do(t, http.MethodPost, "/v1/workflows/pipeline/invoke", server.InvokeRequest{Input: "x"})

	w := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "stategraph_graph_runs_total")
	assert.Contains(t, w.Body.String(), `node="call_llm"`)
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	f := newFixture(t, llm.Echo{}, func(o *server.Options) { o.Gatherer = nil })
	w := f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOverlay(t *testing.T) {
	o := server.Overlay([]journal.Entry{
		{Node: "a", Next: "b", Phase: journal.PhasePending},
		{Node: "b", Phase: journal.PhaseFailed},
	})
	assert.Equal(t, []string{"a"}, o.VisitedNodes)
	assert.Equal(t, "b", o.FailedNode)
	assert.Empty(t, o.CurrentNode)
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.ListenAndServe(ctx, "127.0.0.1:0", http.NotFoundHandler(), observability.NewNopLogger())
	}()
	cancel()
	assert.NoError(t, <-done)
}
