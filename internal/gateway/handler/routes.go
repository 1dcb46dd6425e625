package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest"

	"github.com/repairradar/repairradar/internal/gateway/middleware"
	"github.com/repairradar/repairradar/internal/gateway/svc"
)

const (
	apiPrefix   = "/api/v1"
	adminPrefix = apiPrefix + "/admin"
)

// RegisterHandlers registers every route on the server. Tenant routes sit
// behind the bearer token; operator routes need the admin token and are
// left out when none is configured.
func RegisterHandlers(server *rest.Server, svcCtx *svc.ServiceContext) {
	server.AddRoutes(publicRoutes(svcCtx))
	server.AddRoutes(
		rest.WithMiddlewares([]rest.Middleware{tenantMiddleware(svcCtx)}, tenantRoutes(svcCtx)...),
		rest.WithPrefix(apiPrefix),
	)

	if token := svcCtx.Config.Admin.Token; token != "" {
		server.AddRoutes(
			rest.WithMiddlewares([]rest.Middleware{middleware.AdminMiddleware(token, svcCtx.Logger)}, adminRoutes(svcCtx)...),
			rest.WithPrefix(adminPrefix),
		)
	}
}

// RoutePatterns lists the full path of every route RegisterHandlers adds,
// for bounded metric and span labels
func RoutePatterns(svcCtx *svc.ServiceContext) []string {
	var patterns []string
	for _, r := range publicRoutes(svcCtx) {
		patterns = append(patterns, r.Path)
	}
	for _, r := range tenantRoutes(svcCtx) {
		patterns = append(patterns, apiPrefix+r.Path)
	}
	if svcCtx.Config.Admin.Token != "" {
		for _, r := range adminRoutes(svcCtx) {
			patterns = append(patterns, adminPrefix+r.Path)
		}
	}
	return patterns
}

func publicRoutes(svcCtx *svc.ServiceContext) []rest.Route {
	routes := []rest.Route{
		{
			Method:  http.MethodGet,
			Path:    "/health",
			Handler: HealthCheckHandler(svcCtx),
		},
		{
			Method:  http.MethodGet,
			Path:    "/ping",
			Handler: PingHandler(svcCtx),
		},
		{
			Method:  http.MethodGet,
			Path:    "/version",
			Handler: VersionHandler(svcCtx),
		},
	}

	if svcCtx.Metrics != nil {
		routes = append(routes, rest.Route{
			Method:  http.MethodGet,
			Path:    svcCtx.Config.Metrics.Path,
			Handler: svcCtx.Metrics.Handler().ServeHTTP,
		})
	}
	return routes
}

func tenantRoutes(svcCtx *svc.ServiceContext) []rest.Route {
	return []rest.Route{
		{Method: http.MethodGet, Path: "/my-data", Handler: MyDataHandler(svcCtx)},
		{Method: http.MethodPost, Path: "/logout", Handler: LogoutHandler(svcCtx)},

		{Method: http.MethodPost, Path: "/save-config", Handler: SaveConfigHandler(svcCtx)},
		{Method: http.MethodGet, Path: "/config", Handler: GetConfigHandler(svcCtx)},

		{Method: http.MethodGet, Path: "/jobs", Handler: ListJobsHandler(svcCtx)},
		{Method: http.MethodPost, Path: "/jobs", Handler: CreateJobHandler(svcCtx)},
		{Method: http.MethodGet, Path: "/jobs/:id", Handler: GetJobHandler(svcCtx)},
		{Method: http.MethodPut, Path: "/jobs/:id", Handler: UpdateJobHandler(svcCtx)},
		{Method: http.MethodDelete, Path: "/jobs/:id", Handler: DeleteJobHandler(svcCtx)},
	}
}

// adminRoutes expose state across all tenants and are for operators only
func adminRoutes(svcCtx *svc.ServiceContext) []rest.Route {
	return []rest.Route{
		{Method: http.MethodGet, Path: "/broker/stats", Handler: BrokerStatsHandler(svcCtx)},
		{Method: http.MethodGet, Path: "/broker/breakers", Handler: BreakerStatsHandler(svcCtx)},
		{Method: http.MethodPost, Path: "/broker/breakers/reset", Handler: BreakerResetHandler(svcCtx)},
	}
}

func tenantMiddleware(svcCtx *svc.ServiceContext) rest.Middleware {
	return middleware.TenantDBMiddleware(svcCtx.Verifier, svcCtx.Broker, svcCtx.Directory, svcCtx.Logger)
}
