package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/repairradar/repairradar/internal/broker"
	"github.com/repairradar/repairradar/internal/gateway/middleware"
	"github.com/repairradar/repairradar/internal/gateway/svc"
)

// MyDataHandler returns the caller's identity and tenant database
func MyDataHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.RequestIDFromContext(r.Context())

		h, ok := middleware.TenantFromContext(r.Context())
		if !ok {
			UnauthorizedResponse(w, "Not authenticated", requestID)
			return
		}

		SuccessResponse(w, map[string]interface{}{
			"user_id":  middleware.UserIDFromContext(r.Context()),
			"email":    middleware.EmailFromContext(r.Context()),
			"database": h.Route().DatabaseName,
		}, requestID)
	}
}

// LogoutHandler releases the tenant handle bound to the caller's token.
// The token itself stays valid until it expires.
func LogoutHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.RequestIDFromContext(r.Context())
		token := middleware.TokenFromContext(r.Context())
		if token == "" {
			UnauthorizedResponse(w, "Not authenticated", requestID)
			return
		}

		svcCtx.Broker.Logout(token)
		svcCtx.Logger.Info("user logged out",
			zap.String("request_id", requestID),
			zap.String("user_id", middleware.UserIDFromContext(r.Context())),
			zap.String("session_ref", broker.KeyRef(token)))

		SuccessResponse(w, map[string]string{"message": "Logged out successfully"}, requestID)
	}
}
