package observability

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// NewLogger builds a logrus logger writing to output (stdout when nil).
// Unknown levels fall back to info.
func NewLogger(level string, format string, output io.Writer) *logrus.Logger {
	if output == nil {
		output = os.Stdout
	}

	log := logrus.New()
	log.SetOutput(output)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	if format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}

type loggerKey struct{}

// WithLogger stores a request-scoped entry in ctx
func WithLogger(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, loggerKey{}, entry)
}

// FromContext returns the request-scoped entry, or one on the standard
// logger when none was stored. Trace ids are attached when a span is
// recording.
func FromContext(ctx context.Context) *logrus.Entry {
	entry, ok := ctx.Value(loggerKey{}).(*logrus.Entry)
	if !ok {
		entry = logrus.NewEntry(logrus.StandardLogger())
	}

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return entry
	}
	spanCtx := span.SpanContext()
	return entry.WithFields(logrus.Fields{
		"trace_id": spanCtx.TraceID().String(),
		"span_id":  spanCtx.SpanID().String(),
	})
}
