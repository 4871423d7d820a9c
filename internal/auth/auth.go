// Package auth carries the caller's bearer credential on a context.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

type bearerKey struct{}

// WithBearer returns a copy of ctx carrying token.
func WithBearer(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerKey{}, token)
}

// BearerFromContext returns the token stored by WithBearer, if any.
func BearerFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(bearerKey{}).(string)
	return token, ok && token != ""
}

// Caller returns a stable, non-reversible id for the bearer on ctx. Requests
// without a bearer share the empty id.
func Caller(ctx context.Context) string {
	token, ok := BearerFromContext(ctx)
	if !ok {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}

// BearerFromRequest extracts the token from an "Authorization: Bearer" header.
func BearerFromRequest(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Middleware copies the request's bearer token, when present, onto the
// request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := BearerFromRequest(r); token != "" {
			r = r.WithContext(WithBearer(r.Context(), token))
		}
		next.ServeHTTP(w, r)
	})
}
