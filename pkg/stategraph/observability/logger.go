// Package observability provides structured logging, metrics, and tracing
// for stategraph runs.
//
// Features:
//   - Structured logging via slog
//   - Metrics via OpenTelemetry or Prometheus
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
// Every Log* helper accepts a nil logger and does nothing.
package observability

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// NewLogger creates a logger writing to w in the given format ("text" or "json").
// The "error" attribute key is shortened to "err".
func NewLogger(level slog.Level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel converts "debug", "info", "warn" or "error" to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// EnrichLogger adds run context to a logger.
// Returns a new logger with run_id, node_id, and step fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "run-123", "make_plan", 2)
//	enriched.Info("calling model") // includes run_id, node_id, step
func EnrichLogger(logger *slog.Logger, runID, nodeID string, step int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("node_id", nodeID),
		slog.Int("step", step),
	)
}

// LogRunStart logs the start of a graph run.
func LogRunStart(logger *slog.Logger, graph, runID string) {
	if logger == nil {
		return
	}
	logger.Info("graph run starting",
		slog.String("graph", graph),
		slog.String("run_id", runID),
	)
}

// LogRunComplete logs a run that reached the terminal marker.
func LogRunComplete(logger *slog.Logger, runID string, durationMs float64, steps int) {
	if logger == nil {
		return
	}
	logger.Info("graph run completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("steps", steps),
	)
}

// LogRunError logs a failed run.
func LogRunError(logger *slog.Logger, runID string, err error, kind string, durationMs float64, lastNode string) {
	if logger == nil {
		return
	}
	logger.Error("graph run failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.String("kind", kind),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_node", lastNode),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, nodeID string, step int) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
		slog.Int("step", step),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID string, step int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Int("step", step),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeError logs node execution error.
func LogNodeError(logger *slog.Logger, nodeID string, step int, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_id", nodeID),
		slog.Int("step", step),
		slog.String("error", err.Error()),
	)
}

// LogRoute logs a transition chosen by a conditional edge.
func LogRoute(logger *slog.Logger, from, label, to string) {
	if logger == nil {
		return
	}
	logger.Debug("route resolved",
		slog.String("from", from),
		slog.String("label", label),
		slog.String("to", to),
	)
}

// LogJournalError logs a journal write failure (non-fatal).
func LogJournalError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("journal write failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
