/*
Package tracing records evaluation spans for debugging.

A span covers one Evaluate call; the evaluator adds log entries for the
pipeline stages it passes through (transforms applied, scoped evaluator
compiled or reused). Completed spans are collected on a buffered channel
and written to the zap logger: Debug for successful spans, Warn for spans
that ended with an error.

# Usage

	tracer := tracing.New(logger)
	defer tracer.Close()

	span, ctx := tracer.StartSpan(ctx, "evaluate")
	defer span.Finish()

	span.SetTag("context", id)
	span.Log("transforms", map[string]interface{}{"count": 3})

A nil *Tracer and a nil *Span are valid and do nothing.
*/
package tracing
