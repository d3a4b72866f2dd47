package executor

import "context"

type ctxKey uint8

const requestIDKey ctxKey = iota

// WithRequestID tags ctx with the id attempts are journaled under
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFrom returns the request id carried by ctx, or ""
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
