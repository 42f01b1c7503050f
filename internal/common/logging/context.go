package logging

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	accessKeyKey contextKey = "access_key"
)

// ContextWithRequestID stores the request ID picked up by WithContext.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request ID, or "" when none is set.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ContextWithAccessKey stores the caller's access key picked up by WithContext.
func ContextWithAccessKey(ctx context.Context, accessKey string) context.Context {
	return context.WithValue(ctx, accessKeyKey, accessKey)
}

// AccessKeyFromContext returns the access key, or "" when none is set.
func AccessKeyFromContext(ctx context.Context) string {
	key, _ := ctx.Value(accessKeyKey).(string)
	return key
}
