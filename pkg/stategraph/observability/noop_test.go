package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoopMetrics(t *testing.T) {
	var m MetricsRecorder = NoopMetrics{}
	assert.NotPanics(t, func() {
		m.RecordNodeExecution(context.Background(), "g", "a", time.Second, errors.New("x"))
		m.RecordGraphRun(context.Background(), "g", "", 1, time.Second)
		m.RecordRoute(context.Background(), "g", "a", "b")
	})
}

func TestNoopSpanManager(t *testing.T) {
	var sm SpanManager = NoopSpanManager{}
	ctx := context.Background()

	got, span := sm.StartRunSpan(ctx, "g", "r")
	assert.Equal(t, ctx, got)
	assert.False(t, span.IsRecording())

	got, span = sm.StartNodeSpan(ctx, "a", 1)
	assert.Equal(t, ctx, got)

	assert.NotPanics(t, func() {
		sm.EndSpanWithError(span, errors.New("x"))
		sm.AddSpanEvent(ctx, "event")
	})
}
