// The api service reads the serving document and scores it on demand. It
// never writes forecast data.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gonow-app/gonow/internal/api"
	"github.com/gonow-app/gonow/internal/core/config"
	imw "github.com/gonow-app/gonow/internal/core/middleware"
	"github.com/gonow-app/gonow/internal/core/observability"
	"github.com/gonow-app/gonow/internal/core/server"
	"github.com/gonow-app/gonow/internal/health"
	"github.com/gonow-app/gonow/internal/logger"
	"github.com/gonow-app/gonow/internal/store/serving"
)

var Version = "dev"

func main() {
	cfg := config.FromEnv()
	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.Env == "dev",
		Env:       cfg.Env,
		Component: "api",
	}, os.Stdout)
	log := logger.NewSlog(&zl)
	log.Info("starting api", "version", Version, "area_id", cfg.AreaID)
	observability.ExposeBuildInfo(Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	docs, err := serving.New(ctx, cfg.RedisAddr, log)
	if err != nil {
		log.Error("serving store connect failed", "error", err)
		os.Exit(1)
	}
	defer docs.Close()

	handler := api.NewHandler(docs, api.Config{
		AreaID:             cfg.AreaID,
		FreshnessThreshold: cfg.FreshnessThreshold,
		UnhealthyThreshold: cfg.UnhealthyThreshold,
		DocCacheTTL:        cfg.DocCacheTTL,
	}, log)

	r := chi.NewRouter()
	r.Use(imw.Recover())
	r.Use(imw.Logging(log))
	r.Use(imw.CORS())
	r.Get("/healthz", health.Liveness())
	r.Handle("/metrics", promhttp.Handler())
	handler.Routes(r)

	if err := server.Run(ctx, cfg.Addr, r, log); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
