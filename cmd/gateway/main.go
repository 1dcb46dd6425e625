package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/rest"
	"go.uber.org/zap"

	"github.com/repairradar/repairradar/internal/gateway/config"
	"github.com/repairradar/repairradar/internal/gateway/handler"
	"github.com/repairradar/repairradar/internal/gateway/middleware"
	"github.com/repairradar/repairradar/internal/gateway/svc"
)

var configFile = flag.String("f", "configs/gateway.yaml", "the config file")

func main() {
	flag.Parse()

	var c config.Config
	conf.MustLoad(*configFile, &c)
	logx.MustSetup(c.Log)

	server := rest.MustNewServer(c.RestConf, rest.WithCors())

	ctx := svc.NewServiceContext(c)

	server.Use(middleware.RequestIDMiddleware)
	server.Use(middleware.LoggerMiddleware(ctx.Logger))

	if c.RateLimit.Enable {
		server.Use(middleware.RateLimitMiddleware(c.RateLimit.Rate, c.RateLimit.Burst))
	}
	routes := middleware.NewRouteLabels(handler.RoutePatterns(ctx)...)
	if ctx.Metrics != nil {
		server.Use(middleware.MetricsMiddleware(ctx.Metrics, routes))
	}
	if ctx.Tracer.IsEnabled() {
		server.Use(middleware.TracingMiddleware(ctx.Tracer, routes))
	}
	if c.Admin.Token == "" {
		ctx.Logger.Info("admin token not set, operator routes disabled")
	}

	handler.RegisterHandlers(server, ctx)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		sig := <-quit
		ctx.Logger.Info("shutting down gateway", zap.String("signal", sig.String()))
		server.Stop()
	}()

	fmt.Printf("Starting gateway at %s:%d...\n", c.Host, c.Port)
	ctx.Logger.Info("gateway started",
		zap.String("host", c.Host),
		zap.Int("port", c.Port),
		zap.Duration("idle_timeout", c.Broker.IdleTimeout))

	server.Start()
	ctx.Close()
}
