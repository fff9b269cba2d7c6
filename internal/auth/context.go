// Package auth carries the caller's credentials through a single tool call.
//
// The bearer token is extracted by the transport and stored on the request context.
// Nothing in the binder consumes it; the HTTP invoker forwards it only when configured to.
package auth

import (
	"context"
	"net/http"
	"strings"
)

// Context is the request-scoped authentication state of one top-level request.
type Context struct {
	Token     string
	SessionID string
}

type contextKey string

const authContextKey contextKey = "auth"

// WithContext returns a copy of ctx carrying authCtx.
func WithContext(ctx context.Context, authCtx *Context) context.Context {
	return context.WithValue(ctx, authContextKey, authCtx)
}

// FromContext returns the authentication state stored by WithContext.
func FromContext(ctx context.Context) (*Context, bool) {
	authCtx, ok := ctx.Value(authContextKey).(*Context)
	return authCtx, ok && authCtx != nil
}

// TokenFromContext returns the bearer token of the call, or "".
func TokenFromContext(ctx context.Context) string {
	if authCtx, ok := FromContext(ctx); ok {
		return authCtx.Token
	}
	return ""
}

// BearerToken extracts <token> from an "Authorization: Bearer <token>" header.
// The scheme is matched case-insensitively; other schemes yield "".
func BearerToken(h http.Header) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(h.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
