package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldQueue is the standardized structured logging key for queue names.
	FieldQueue = "queue"
	// FieldJobID is the standardized structured logging key for queue job identifiers.
	FieldJobID = "job_id"
	// FieldSource is the standardized structured logging key for feed source names.
	FieldSource = "source"
	// FieldScanRun is the standardized structured logging key for scan run identifiers.
	FieldScanRun = "scan_run"
	// FieldEventType tags records so downstream log queries can group them.
	FieldEventType = "event_type"
	// FieldErrorHint carries a short operator-facing remediation hint.
	FieldErrorHint = "error_hint"
)

type contextKey int

const (
	jobIDKey contextKey = iota
	queueKey
	sourceKey
	scanRunKey
)

// WithJobID attaches a queue job identifier to the context.
func WithJobID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, jobIDKey, id)
}

// WithQueue attaches a queue name to the context.
func WithQueue(ctx context.Context, queue string) context.Context {
	return context.WithValue(ctx, queueKey, queue)
}

// WithSource attaches a feed source name to the context.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey, source)
}

// WithScanRun attaches a scan run identifier to the context.
func WithScanRun(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, scanRunKey, runID)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := ctx.Value(jobIDKey).(int64); ok {
		fields = append(fields, slog.Int64(FieldJobID, id))
	}
	if queue, ok := ctx.Value(queueKey).(string); ok && queue != "" {
		fields = append(fields, slog.String(FieldQueue, queue))
	}
	if source, ok := ctx.Value(sourceKey).(string); ok && source != "" {
		fields = append(fields, slog.String(FieldSource, source))
	}
	if run, ok := ctx.Value(scanRunKey).(string); ok && run != "" {
		fields = append(fields, slog.String(FieldScanRun, run))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from
// the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
