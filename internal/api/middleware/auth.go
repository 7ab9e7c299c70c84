package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"

	"github.com/cloo-solutions/docuhub/internal/api"
	"github.com/cloo-solutions/docuhub/internal/domain"
)

type contextKey string

const PrincipalKey contextKey = "principal"

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.Principal, error)
}

// TokenAuth resolves the bearer token to a principal and stores it in the
// request context.
func TokenAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

			principal, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				api.Error(w, http.StatusUnauthorized, "invalid api token")
				return
			}

			if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
				hub.Scope().SetUser(sentry.User{ID: principal.Subject})
				hub.Scope().SetTag("role", principal.Role.String())
			}

			ctx := context.WithValue(r.Context(), PrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipal returns the authenticated principal, or nil.
func GetPrincipal(ctx context.Context) *domain.Principal {
	p, _ := ctx.Value(PrincipalKey).(*domain.Principal)
	return p
}

// GetSubject returns the authenticated subject, or "".
func GetSubject(ctx context.Context) string {
	if p := GetPrincipal(ctx); p != nil {
		return p.Subject
	}
	return ""
}
