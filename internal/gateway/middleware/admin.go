package middleware

import (
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"
)

// AdminTokenHeader carries the operator token
const AdminTokenHeader = "X-Admin-Token"

// AdminMiddleware admits only callers presenting the operator token.
// Tenant bearer tokens grant nothing here.
func AdminMiddleware(token string, logger *zap.Logger) func(http.HandlerFunc) http.HandlerFunc {
	want := []byte(token)

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(AdminTokenHeader)
			if got == "" {
				writeError(w, r, http.StatusUnauthorized, "Admin token required")
				return
			}
			if len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				logger.Warn("admin request rejected",
					zap.String("request_id", RequestIDFromContext(r.Context())),
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr))
				writeError(w, r, http.StatusForbidden, "Invalid admin token")
				return
			}

			next(w, r)
		}
	}
}
