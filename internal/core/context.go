package core

import "context"

type contextKey string

const ctxKeyRequestMeta contextKey = "request_meta"

// RequestMeta describes the client behind an operation, for audit records.
type RequestMeta struct {
	IPAddress string
	UserAgent string
	RequestID string
}

// ContextWithRequestMeta attaches client details to ctx.
func ContextWithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, ctxKeyRequestMeta, meta)
}

// RequestMetaFromContext returns the client details attached to ctx, if any.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	if v, ok := ctx.Value(ctxKeyRequestMeta).(RequestMeta); ok {
		return v
	}
	return RequestMeta{}
}
