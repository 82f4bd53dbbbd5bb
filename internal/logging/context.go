package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldWorkerID identifies the reviewer session that owns a claim.
	FieldWorkerID = "worker_id"
	// FieldLeadID is the standardized structured logging key for lead identifiers.
	FieldLeadID = "lead_id"
	// FieldSessionID distinguishes concurrent sessions that share a worker identity.
	FieldSessionID = "session_id"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldCount carries the size of a batch of leads.
	FieldCount = "count"
)

type contextKey int

const (
	workerIDKey contextKey = iota
	sessionIDKey
	requestIDKey
)

// WithWorkerID attaches the worker identity to ctx.
func WithWorkerID(ctx context.Context, worker string) context.Context {
	return context.WithValue(ctx, workerIDKey, worker)
}

// WithSessionID attaches a session identifier to ctx.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// WithRequestID attaches a request correlation identifier to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request correlation identifier, if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok && id != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if worker, ok := ctx.Value(workerIDKey).(string); ok && worker != "" {
		fields = append(fields, slog.String(FieldWorkerID, worker))
	}
	if session, ok := ctx.Value(sessionIDKey).(string); ok && session != "" {
		fields = append(fields, slog.String(FieldSessionID, session))
	}
	if rid, ok := RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
