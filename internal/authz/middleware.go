package authz

import (
	"net/http"

	"github.com/stanstork/waterwatch-api/internal/models"
)

// RequireRole returns a middleware that lets through only requests whose role is one of allowed.
func RequireRole(allowed ...models.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := RoleFromRequest(r)
			if !ok || !models.HasAnyRole(role, allowed...) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"message":"insufficient permissions"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRoleHandler applies the role middleware inline when registering routes.
func RequireRoleHandler(next http.Handler, allowed ...models.UserRole) http.Handler {
	return RequireRole(allowed...)(next)
}
