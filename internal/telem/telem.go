package telem

import (
	"context"

	kitlog "github.com/go-kit/kit/log"
	"go.opencensus.io/trace"
)

type ctxKey string

const loggerKey = ctxKey("LoggerKey")

// WithLogger stores a logger in the context, for use by anything further down the call
// chain that wants to log in the scope of the current flow.
func WithLogger(ctx context.Context, logger kitlog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFrom returns the logger stored in the context, or a nop logger if none was set.
func LoggerFrom(ctx context.Context) kitlog.Logger {
	if logger, ok := ctx.Value(loggerKey).(kitlog.Logger); ok {
		return logger
	}

	return kitlog.NewNopLogger()
}

// StartSpan starts a new span and returns a logger decorated with the span's trace ID,
// which is also stored in the returned context:
//
//	ctx, span, logger := telem.StartSpan(ctx, "pkg/capture.Sink.Handle")
//	defer span.End()
func StartSpan(ctx context.Context, name string) (context.Context, *trace.Span, kitlog.Logger) {
	ctx, span, logger := Logger(ctx, LoggerFrom(ctx))(trace.StartSpan(ctx, name))

	return WithLogger(ctx, logger), span, logger
}

// Logger can be used to tie logs to an on-going span. It is intended to wrap a
// trace.StartSpan call, like so:
//
//	telem.Logger(ctx, logger)(trace.StartSpan(ctx, "pkg/capture.Sink.write"))
//
// The logs will be decorated with a trace_id. Root context is provided to avoid doubly
// annotating the trace ID onto the same logger.
func Logger(rootCtx context.Context, logger kitlog.Logger) func(context.Context, *trace.Span) (context.Context, *trace.Span, kitlog.Logger) {
	return func(ctx context.Context, span *trace.Span) (context.Context, *trace.Span, kitlog.Logger) {
		// If the root context already has a trace, assume our logger has been tagged and do
		// nothing.
		if trace.FromContext(rootCtx) != nil {
			return ctx, span, logger
		}

		// No span means no tracing is configured, so there's no trace ID worth annotating.
		if span == nil {
			return ctx, span, logger
		}

		return ctx, span, kitlog.With(logger,
			"trace_id", span.SpanContext().TraceID)
	}
}
