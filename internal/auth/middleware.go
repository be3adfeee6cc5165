package auth

import (
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// ErrorWriter renders an auth failure. The HTTP layer supplies its own so
// every error leaves the server in the same shape.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Middleware resolves the request's session and stores the principal in the
// request context. Requests without a valid session never reach next.
func Middleware(resolver *Resolver, fail ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := resolver.Resolve(r.Context(), TokenFromRequest(r))
			if err != nil {
				fail(w, r, err)
				return
			}
			logger := log.FromContext(r.Context()).With(log.FieldUserID, p.UserID)
			ctx := log.NewContext(WithPrincipal(r.Context(), p), logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole lets the request through only when authz grants role.
func RequireRole(authz Authorizer, role core.Role, fail ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				fail(w, r, ErrUnauthenticated)
				return
			}
			if err := authz.Authorize(r.Context(), p, role); err != nil {
				log.FromContext(r.Context()).WithComponent(log.ComponentAuth).
					WarnContext(r.Context(), "Role check denied request",
						log.FieldUserID, p.UserID,
						log.FieldRole, role,
						log.FieldError, err)
				fail(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
