package handler

import (
	"net/http"

	"github.com/repairradar/repairradar/internal/gateway/middleware"
	"github.com/repairradar/repairradar/internal/gateway/svc"
)

// BrokerStatsHandler reports session cache occupancy
func BrokerStatsHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SuccessResponse(w, svcCtx.Broker.Stats(), middleware.RequestIDFromContext(r.Context()))
	}
}

// BreakerStatsHandler reports every tenant circuit breaker
func BreakerStatsHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.RequestIDFromContext(r.Context())
		if svcCtx.Breakers == nil {
			writeJSON(w, http.StatusOK, Response{
				Code:      0,
				Message:   "Circuit breaker is disabled",
				RequestID: requestID,
			})
			return
		}

		SuccessResponse(w, svcCtx.Breakers.GetStats(), requestID)
	}
}

// BreakerResetHandler closes one breaker (?name=) or all of them
func BreakerResetHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.RequestIDFromContext(r.Context())
		if svcCtx.Breakers == nil {
			BadRequestResponse(w, "Circuit breaker is disabled", requestID)
			return
		}

		name := r.URL.Query().Get("name")
		if name == "" {
			svcCtx.Breakers.ResetAll()
		} else if !svcCtx.Breakers.Reset(name) {
			NotFoundResponse(w, "Unknown circuit breaker", requestID)
			return
		}

		SuccessResponse(w, map[string]string{"message": "Circuit breaker reset successfully"}, requestID)
	}
}
