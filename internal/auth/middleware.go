package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/af-corp/fax-gateway/internal/httputil"
	"github.com/af-corp/fax-gateway/internal/interfax"
)

// Middleware returns a chi middleware that authenticates requests via
// Bearer token and attaches the account, with its provider credentials, to
// the request context.
func Middleware(store SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.WriteAuthError(w, "Missing Authorization header. Use: Authorization: Bearer <token>")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader {
				httputil.WriteAuthError(w, "Invalid Authorization format. Use: Authorization: Bearer <token>")
				return
			}
			if token == "" {
				httputil.WriteAuthError(w, "Empty token")
				return
			}

			acct, err := store.Lookup(r.Context(), HashToken(token))
			if err != nil {
				slog.Error("session lookup failed", "error", err)
				httputil.WriteInternalError(w, "Authentication failed", "internal error during authentication")
				return
			}
			if acct == nil {
				httputil.WriteAuthError(w, "Invalid or expired token")
				return
			}

			info := &AccountInfo{
				ID:       acct.ID,
				Username: acct.Username,
				Provider: interfax.Credentials{
					Username: acct.InterfaxUsername,
					Password: acct.InterfaxPassword,
				},
			}

			ctx := ContextWithAccount(r.Context(), info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
