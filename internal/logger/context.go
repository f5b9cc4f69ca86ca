package logger

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	runIDKey
)

// WithRequestID returns a context carrying the HTTP request ID for log
// correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request ID carried by ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithRunID returns a context carrying the analysis run ID. The orchestrator
// attaches it once per pipeline so every record from selection through final
// review correlates, even after the run detaches from its HTTP request.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunID returns the run ID carried by ctx, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)
	return id
}
