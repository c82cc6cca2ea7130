package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHandler captures log records for testing.
type testHandler struct {
	records *[]map[string]any
	attrs   []slog.Attr
}

func newTestHandler() *testHandler {
	return &testHandler{records: &[]map[string]any{}}
}

func (h *testHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *testHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	for _, a := range h.attrs {
		data[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})
	*h.records = append(*h.records, data)
	return nil
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &testHandler{records: h.records, attrs: next}
}

func (h *testHandler) WithGroup(string) slog.Handler { return h }

func (h *testHandler) last(t *testing.T) map[string]any {
	t.Helper()
	require.NotEmpty(t, *h.records)
	return (*h.records)[len(*h.records)-1]
}

func TestNewLogger(t *testing.T) {
	t.Run("json format renames error key", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(slog.LevelInfo, "json", &buf)
		logger.Info("hello", slog.String("error", "boom"))

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "hello", entry["msg"])
		assert.Equal(t, "boom", entry["err"])
		assert.NotContains(t, entry, "error")
	})

	t.Run("text format respects level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(slog.LevelWarn, "text", &buf)
		logger.Info("hidden")
		logger.Warn("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestEnrichLogger(t *testing.T) {
	h := newTestHandler()
	logger := EnrichLogger(slog.New(h), "run-1", "make_plan", 3)
	logger.Info("calling model")

	rec := h.last(t)
	assert.Equal(t, "run-1", rec["run_id"])
	assert.Equal(t, "make_plan", rec["node_id"])
	assert.Equal(t, int64(3), rec["step"])

	assert.Nil(t, EnrichLogger(nil, "run", "node", 1))
}

func TestLogHelpers(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogRunStart(logger, "refine", "run-1")
	assert.Equal(t, "graph run starting", h.last(t)["msg"])
	assert.Equal(t, "refine", h.last(t)["graph"])

	LogRunComplete(logger, "run-1", 12.5, 4)
	assert.Equal(t, int64(4), h.last(t)["steps"])

	LogRunError(logger, "run-1", errors.New("boom"), "node_execution", 1, "validate_draft")
	rec := h.last(t)
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "boom", rec["error"])
	assert.Equal(t, "node_execution", rec["kind"])
	assert.Equal(t, "validate_draft", rec["last_node"])

	LogNodeStart(logger, "a", 1)
	assert.Equal(t, "node starting", h.last(t)["msg"])

	LogNodeComplete(logger, "a", 1, 0.5)
	assert.Equal(t, "node completed", h.last(t)["msg"])

	LogNodeError(logger, "a", 1, errors.New("bad"))
	assert.Equal(t, "bad", h.last(t)["error"])

	LogRoute(logger, "router", "plan", "make_plan")
	rec = h.last(t)
	assert.Equal(t, "plan", rec["label"])
	assert.Equal(t, "make_plan", rec["to"])

	LogJournalError(logger, "a", errors.New("disk full"))
	assert.Equal(t, "WARN", h.last(t)["level"])

	assert.Len(t, *h.records, 8)
}

func TestLogHelpers_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		LogRunStart(nil, "g", "r")
		LogRunComplete(nil, "r", 1, 1)
		LogRunError(nil, "r", errors.New("x"), "internal", 1, "a")
		LogNodeStart(nil, "a", 1)
		LogNodeComplete(nil, "a", 1, 1)
		LogNodeError(nil, "a", 1, errors.New("x"))
		LogRoute(nil, "a", "b", "c")
		LogJournalError(nil, "a", errors.New("x"))
	})
}

func TestNewNopLogger(t *testing.T) {
	logger := NewNopLogger()
	require.NotNil(t, logger)
	assert.NotPanics(t, func() { logger.Error("ignored") })
}

func TestTimedOperation(t *testing.T) {
	elapsed := TimedOperation()
	time.Sleep(2 * time.Millisecond)
	assert.GreaterOrEqual(t, elapsed(), 1.0)
}
