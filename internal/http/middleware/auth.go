package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/diagnosis/parkspot/internal/domain"
	"github.com/diagnosis/parkspot/internal/http/response"
	"github.com/diagnosis/parkspot/internal/service"
	"github.com/diagnosis/parkspot/pkg/logger"
)

type ctxKey string

const ctxCaller ctxKey = "caller"

// SessionResolver turns a raw token into the caller it was issued to.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (service.Caller, error)
}

// RequireAuth accepts a bearer token, falling back to the session cookie.
func RequireAuth(sessions SessionResolver, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := sessions.ResolveSession(r.Context(), tokenFrom(r, cookieName))
			if err != nil {
				response.FromError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), ctxCaller, caller)
			ctx = context.WithValue(ctx, logger.UserIDKey, caller.ID.Hex())
			ctx = context.WithValue(ctx, logger.RoleKey, caller.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFrom(r *http.Request, cookieName string) string {
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

// CallerFrom returns the authenticated caller. Handlers mounted behind
// RequireAuth can rely on ok being true.
func CallerFrom(ctx context.Context) (service.Caller, bool) {
	c, ok := ctx.Value(ctxCaller).(service.Caller)
	return c, ok
}

// RequireCaller is CallerFrom for handlers: it writes the 401 itself.
func RequireCaller(w http.ResponseWriter, r *http.Request) (service.Caller, bool) {
	c, ok := CallerFrom(r.Context())
	if !ok {
		response.FromError(w, r, domain.AuthError("You are not authenticated!"))
	}
	return c, ok
}

// CallerScope keys idempotency records by caller so two users can reuse a key.
func CallerScope(r *http.Request) string {
	if c, ok := CallerFrom(r.Context()); ok {
		return c.ID.Hex()
	}
	return ""
}
