package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStartSpan(t *testing.T) {
	tracer := New(zap.NewNop())
	defer tracer.Close()

	parent, ctx := tracer.StartSpan(context.Background(), "evaluate")
	require.NotNil(t, parent)
	assert.NotEmpty(t, parent.TraceID)
	assert.Empty(t, parent.ParentID)
	assert.Equal(t, parent.TraceID, GetTraceID(ctx))
	assert.Equal(t, parent.SpanID, GetSpanID(ctx))

	child, _ := tracer.StartSpan(ctx, "shim")
	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.SpanID, child.ParentID)
	assert.NotEqual(t, parent.SpanID, child.SpanID)
}

func TestSpansAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tracer := New(zap.New(core))

	ok, _ := tracer.StartSpan(context.Background(), "evaluate")
	ok.SetTag("outcome", "ok")
	ok.Log("scoped", map[string]interface{}{"cached": true})
	ok.Finish()

	failed, _ := tracer.StartSpan(context.Background(), "evaluate")
	failed.SetError(errors.New("boom"))
	failed.Finish()

	tracer.Close()

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "span completed", entries[0].Message)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "ok", entries[0].ContextMap()["outcome"])
	assert.Equal(t, "span completed with error", entries[1].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}

func TestNilTracer(t *testing.T) {
	var tracer *Tracer

	assert.NotPanics(t, func() {
		span, ctx := tracer.StartSpan(context.Background(), "evaluate")
		assert.Nil(t, span)
		assert.Empty(t, GetTraceID(ctx))
		span.SetTag("k", "v")
		span.SetError(errors.New("ignored"))
		span.Log("m", nil)
		span.Finish()
		tracer.Close()
	})
}

func TestSubmitAfterClose(t *testing.T) {
	tracer := New(zap.NewNop())
	span, _ := tracer.StartSpan(context.Background(), "late")
	tracer.Close()
	tracer.Close()

	assert.NotPanics(t, span.Finish)
}
