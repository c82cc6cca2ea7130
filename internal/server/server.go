// Package server exposes the workflow catalog over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/randalmurphal/stategraph/internal/render"
	"github.com/randalmurphal/stategraph/internal/workflows"
	"github.com/randalmurphal/stategraph/pkg/stategraph"
	"github.com/randalmurphal/stategraph/pkg/stategraph/journal"
	"github.com/randalmurphal/stategraph/pkg/stategraph/observability"
)

// Options configure the handler.
type Options struct {
	Catalog *workflows.Catalog

	// Journal records runs. Defaults to an in-memory store.
	Journal journal.Store

	// Metrics receives run metrics. Defaults to no-op.
	Metrics observability.MetricsRecorder

	// Spans, when set, traces every run.
	Spans observability.SpanManager

	// Gatherer, when set, is served on /metrics.
	Gatherer prometheus.Gatherer

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// MaxIterations, when positive, replaces the engine default cap for
	// graphs that did not set their own.
	MaxIterations int

	// RunTimeout bounds each invoke. Zero means no bound beyond the request.
	RunTimeout time.Duration
}

// Server implements the HTTP API.
type Server struct {
	opts Options
}

// InvokeRequest is the body of POST /v1/workflows/{name}/invoke.
type InvokeRequest struct {
	Input         string         `json:"input"`
	State         map[string]any `json:"state,omitempty"`
	RunID         string         `json:"run_id,omitempty"`
	MaxIterations int            `json:"max_iterations,omitempty"`
}

// InvokeResponse is the body of a successful invoke.
type InvokeResponse struct {
	RunID  string          `json:"run_id"`
	Output string          `json:"output"`
	State  json.RawMessage `json:"state"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	RunID string `json:"run_id,omitempty"`
	Node  string `json:"node,omitempty"`
	Step  int    `json:"step,omitempty"`
}

// WorkflowInfo describes one catalog entry.
type WorkflowInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	InputField  string   `json:"input_field"`
	OutputField string   `json:"output_field"`
	Example     string   `json:"example"`
	Nodes       []string `json:"nodes"`
	Fields      []string `json:"fields"`
}

// Error kinds produced by the server itself.
const (
	KindBadRequest = "bad_request"
	KindNotFound   = "not_found"
)

// NewHandler builds the router.
func NewHandler(opts Options) http.Handler {
	if opts.Journal == nil {
		opts.Journal = journal.NewMemoryStore()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NoopMetrics{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/workflows", s.listWorkflows)
		r.Get("/workflows/{name}/graph", s.workflowGraph)
		r.Post("/workflows/{name}/invoke", s.invoke)
		r.Get("/runs", s.listRuns)
		r.Get("/runs/{id}/journal", s.runJournal)
	})
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listWorkflows(w http.ResponseWriter, _ *http.Request) {
	list := s.opts.Catalog.List()
	out := make([]WorkflowInfo, len(list))
	for i, wf := range list {
		out[i] = WorkflowInfo{
			Name:        wf.Name,
			Description: wf.Description,
			InputField:  wf.InputField,
			OutputField: wf.OutputField,
			Example:     wf.Example,
			Nodes:       wf.Graph.NodeIDs(),
			Fields:      wf.Graph.Schema().Fields(),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// workflowGraph renders the flowchart. With ?run=<id> the run's journal is
// drawn as an overlay.
func (s *Server) workflowGraph(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.workflow(w, r)
	if !ok {
		return
	}

	var overlay *render.Overlay
	if runID := r.URL.Query().Get("run"); runID != "" {
		entries, err := s.opts.Journal.Entries(r.Context(), runID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Kind: stategraph.KindInternal})
			return
		}
		overlay = Overlay(entries)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, render.Mermaid(wf.Graph, overlay))
}

func (s *Server) invoke(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.workflow(w, r)
	if !ok {
		return
	}

	var req InvokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Kind: KindBadRequest})
		return
	}

	initial, err := wf.Graph.Schema().Decode(req.State)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: KindBadRequest})
		return
	}
	if req.Input != "" {
		initial[wf.InputField] = req.Input
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	opts := []stategraph.RunOption{
		stategraph.WithRunID(runID),
		stategraph.WithLogger(s.opts.Logger),
		stategraph.WithJournal(s.opts.Journal),
		stategraph.WithMetrics(s.opts.Metrics),
	}
	if s.opts.Spans != nil {
		opts = append(opts, stategraph.WithTracing(s.opts.Spans))
	}
	if s.opts.MaxIterations > 0 && wf.Graph.MaxIterations() == stategraph.DefaultMaxIterations {
		opts = append(opts, stategraph.WithMaxIterations(s.opts.MaxIterations))
	}
	if req.MaxIterations > 0 {
		opts = append(opts, stategraph.WithMaxIterations(req.MaxIterations))
	}

	ctx := r.Context()
	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}

	final, err := wf.Graph.Invoke(ctx, initial, opts...)
	if err != nil {
		resp := ErrorResponse{Error: err.Error(), Kind: stategraph.ErrorKind(err), RunID: runID}
		var gerr *stategraph.GraphExecutionError
		if errors.As(err, &gerr) {
			resp.Node = gerr.NodeID
			resp.Step = gerr.Step
		}
		writeError(w, statusFor(resp.Kind), resp)
		return
	}

	raw, err := json.Marshal(final)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Kind: stategraph.KindInternal, RunID: runID})
		return
	}
	writeJSON(w, http.StatusOK, InvokeResponse{RunID: runID, Output: wf.Output(final), State: raw})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.opts.Journal.Runs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Kind: stategraph.KindInternal})
		return
	}
	if runs == nil {
		runs = []string{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) runJournal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entries, err := s.opts.Journal.Entries(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Kind: stategraph.KindInternal})
		return
	}
	if len(entries) == 0 {
		writeError(w, http.StatusNotFound, ErrorResponse{Error: "no journal for run " + id, Kind: KindNotFound, RunID: id})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) workflow(w http.ResponseWriter, r *http.Request) (*workflows.Workflow, bool) {
	wf, err := s.opts.Catalog.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Kind: KindNotFound})
		return nil, false
	}
	return wf, true
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.opts.Logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000.0),
		)
	})
}

// Overlay converts journal entries into a render overlay.
func Overlay(entries []journal.Entry) *render.Overlay {
	o := &render.Overlay{}
	for _, e := range entries {
		if e.Node == stategraph.END {
			continue
		}
		switch e.Phase {
		case journal.PhaseFailed:
			o.FailedNode = e.Node
		default:
			o.VisitedNodes = append(o.VisitedNodes, e.Node)
			o.CurrentNode = e.Next
		}
	}
	if o.FailedNode != "" {
		o.CurrentNode = ""
	}
	return o
}

func statusFor(kind string) int {
	switch kind {
	case stategraph.KindIterationLimit, stategraph.KindUnmappedRoute:
		return http.StatusUnprocessableEntity
	case stategraph.KindCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	writeJSON(w, status, resp)
}

// ListenAndServe serves h on addr until ctx is cancelled, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
