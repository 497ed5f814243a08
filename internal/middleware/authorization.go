package middleware

import (
	"net/http"

	"go.uber.org/zap"
)

// RequireAdmin middleware ensures the user has admin role
func RequireAdmin(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := GetUserRole(r.Context())
			if !ok || role != RoleAdmin {
				userID, _ := GetUserID(r.Context())
				logger.Warn("Non-admin attempted to access admin panel",
					zap.String("user_id", userID),
					zap.String("role", role),
					zap.String("path", r.URL.Path),
				)
				RespondWithError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AdminOnly chains token validation and the admin role check
func AdminOnly(jwtSecret string, logger *zap.Logger) func(http.Handler) http.Handler {
	auth := AuthMiddleware(jwtSecret, logger)
	admin := RequireAdmin(logger)
	return func(next http.Handler) http.Handler {
		return auth(admin(next))
	}
}
