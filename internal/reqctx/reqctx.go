// Package reqctx carries a handful of request-scoped values (trace id, bearer
// credential) on the context, trimmed down to what a stateless gateway
// actually needs.
package reqctx

import (
	"context"

	"github.com/google/uuid"
)

type contextKeyTraceID struct{}
type contextKeyAuthorization struct{}

// TraceID extracts the per-request trace identifier, or "" if none is set.
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(contextKeyTraceID{}).(string); ok {
		return id
	}
	return ""
}

// WithTraceID stores the trace identifier on the context.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyTraceID{}, id)
}

// NewTraceID generates a fresh trace identifier for requests that didn't supply one.
func NewTraceID() string {
	return uuid.NewString()
}

// Authorization extracts the raw "Authorization" header value carried for this request.
func Authorization(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if auth, ok := ctx.Value(contextKeyAuthorization{}).(string); ok {
		return auth
	}
	return ""
}

// WithAuthorization stores the raw "Authorization" header value on the context.
func WithAuthorization(ctx context.Context, auth string) context.Context {
	return context.WithValue(ctx, contextKeyAuthorization{}, auth)
}
