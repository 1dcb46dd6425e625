package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/repairradar/repairradar/internal/gateway/middleware"
	"github.com/repairradar/repairradar/internal/gateway/svc"
)

const (
	serviceName    = "repairradar-gateway"
	serviceVersion = "1.0.0"
)

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks"`
}

// HealthCheckHandler reports liveness and the main database reachability
func HealthCheckHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:    "UP",
			Timestamp: time.Now(),
			Service:   serviceName,
			Version:   serviceVersion,
			Uptime:    time.Since(svcCtx.StartTime).Round(time.Second).String(),
			Checks:    map[string]string{},
		}

		status := http.StatusOK
		if svcCtx.MainDB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := svcCtx.MainDB.PingContext(ctx); err != nil {
				resp.Status = "DEGRADED"
				resp.Checks["main_db"] = "DOWN"
				status = http.StatusServiceUnavailable
			} else {
				resp.Checks["main_db"] = "UP"
			}
		}

		writeJSON(w, status, resp)
	}
}

// PingHandler answers pong
func PingHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	}
}

// VersionResponse is the body of GET /version
type VersionResponse struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
}

// VersionHandler reports the build
func VersionHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SuccessResponse(w, VersionResponse{
			Service:   serviceName,
			Version:   serviceVersion,
			GoVersion: runtime.Version(),
		}, middleware.RequestIDFromContext(r.Context()))
	}
}
