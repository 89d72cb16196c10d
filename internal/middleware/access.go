package middleware

import (
	"fmt"
	"net/http"

	"github.com/pulsetrack/pulsetrack/internal/auth"
)

// RequireSuperAdmin rejects callers that are not SUPERADMIN.
// Must be applied after Auth middleware.
func RequireSuperAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := auth.AuthFromContext(r.Context())
			if authCtx == nil {
				writeAccessError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}
			if !authCtx.IsSuperAdmin() {
				writeAccessError(w, http.StatusForbidden, "FORBIDDEN", "Superadmin role required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireFeature rejects callers whose feature list lacks feature.
// SUPERADMIN passes every feature check.
func RequireFeature(feature string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := auth.AuthFromContext(r.Context())
			if authCtx == nil {
				writeAccessError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}
			if !authCtx.HasFeature(feature) {
				writeAccessError(w, http.StatusForbidden, "FORBIDDEN",
					fmt.Sprintf("Dashboard page %s is not enabled for this account", feature))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeAccessError writes a role or feature denial.
func writeAccessError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(fmt.Sprintf(`{"error":{"code":"%s","message":"%s"}}`, code, message)))
}
