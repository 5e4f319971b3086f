package identity

import (
	"net/http"

	"github.com/pharmatrack/pharmatrack-backend/pkg/httputil"
	"github.com/pharmatrack/pharmatrack-backend/pkg/permissions"
)

// Middleware authenticates the request with the verifier and attaches the
// resolved user id, name, and role to the request context.
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := FromHeader(r.Header.Get("Authorization"))
			if err != nil {
				httputil.Error(w, err)
				return
			}

			claims, err := v.Verify(tokenString)
			if err != nil {
				httputil.Error(w, err)
				return
			}

			ctx := httputil.WithUserContext(r.Context(), claims.UserID, claims.Name, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAction gates a route on the role-to-action mapping. It assumes
// Middleware already ran and populated the user role.
func RequireAction(action permissions.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := httputil.GetUserRole(r.Context())
			if !permissions.Allows(role, action) {
				httputil.Error(w, permissions.Denied(role, action))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
