package handlers

import (
	"net/http"

	"github.com/stanstork/waterwatch-api/internal/authz"
	"github.com/stanstork/waterwatch-api/internal/observation"
)

// actorFromRequest returns the identity JWTMiddleware put on the request.
func actorFromRequest(r *http.Request) (observation.Actor, bool) {
	uid, ok := authz.UserIDFromRequest(r)
	if !ok {
		return observation.Actor{}, false
	}
	role, ok := authz.RoleFromRequest(r)
	if !ok {
		return observation.Actor{}, false
	}
	return observation.Actor{ID: uid, Role: role}, true
}
