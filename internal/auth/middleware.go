package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fleetdesk/fleetdesk/internal/platform/httpx"
)

type contextKey struct{}

// ContextWithIdentity attaches the identity to the context.
func ContextWithIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, ident)
}

// IdentityFromContext retrieves the caller identity, if present.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(contextKey{}).(Identity)
	return ident, ok
}

// Middleware rejects requests without a resolvable session. The token is
// taken from the Authorization header (Bearer) or the session cookie.
func Middleware(store *SessionStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				if cookie, err := r.Cookie("fleetdesk_session"); err == nil {
					token = cookie.Value
				}
			}
			ident, err := store.Lookup(r.Context(), token)
			if err != nil {
				if err != ErrNoSession && logger != nil {
					logger.Error("session lookup", slog.Any("error", err))
				}
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), ident)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
