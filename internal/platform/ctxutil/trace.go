package ctxutil

import "context"

type traceKey struct{}

// TraceData correlates one API request across the request log, job logs and
// the X-Trace-Id / X-Request-Id response headers.
type TraceData struct {
	TraceID   string
	RequestID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceKey{}, td)
}

// GetTraceData returns nil outside a traced request.
func GetTraceData(ctx context.Context) *TraceData {
	td, _ := ctx.Value(traceKey{}).(*TraceData)
	return td
}

// TraceID is GetTraceData(ctx).TraceID, or "" when untraced.
func TraceID(ctx context.Context) string {
	if td := GetTraceData(ctx); td != nil {
		return td.TraceID
	}
	return ""
}
