// The ingest worker runs the forecast pipeline. It serves a trigger
// endpoint for the scheduler push and supports a one-shot local run:
//
//	ingest-worker --local-trigger '{"area_id":"tel_aviv_coast"}'
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gonow-app/gonow/internal/core/config"
	"github.com/gonow-app/gonow/internal/core/httpclient"
	imw "github.com/gonow-app/gonow/internal/core/middleware"
	"github.com/gonow-app/gonow/internal/core/observability"
	"github.com/gonow-app/gonow/internal/core/server"
	"github.com/gonow-app/gonow/internal/events"
	"github.com/gonow-app/gonow/internal/health"
	"github.com/gonow-app/gonow/internal/ingest"
	"github.com/gonow-app/gonow/internal/logger"
	"github.com/gonow-app/gonow/internal/provider/openmeteo"
	"github.com/gonow-app/gonow/internal/store/blob"
	"github.com/gonow-app/gonow/internal/store/serving"
	"github.com/gonow-app/gonow/internal/store/warehouse"
)

var Version = "dev"

func main() {
	localTrigger := flag.String("local-trigger", "", "run one ingest synchronously with the given JSON payload and exit")
	flag.Parse()

	cfg := config.FromEnv()
	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.Env == "dev",
		Env:       cfg.Env,
		Component: "ingest-worker",
	}, os.Stdout)
	log := logger.NewSlog(&zl)
	log.Info("starting ingest-worker", "version", Version, "area_id", cfg.AreaID)
	observability.ExposeBuildInfo(Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prov := openmeteo.New(cfg.OpenMeteoBaseURL, httpclient.NewOutbound(), log,
		openmeteo.WithMarineBase(cfg.MarineBaseURL),
		openmeteo.WithAirQualityBase(cfg.AirQualityBaseURL),
	)

	var store blob.Store
	if cfg.GCSRawBucket != "" {
		gcs, err := blob.NewGCS(ctx, cfg.GCSRawBucket)
		if err != nil {
			log.Error("gcs init failed", "error", err)
			os.Exit(1)
		}
		store = gcs
	} else {
		store = blob.NewFS(cfg.RawBlobDir)
	}
	archive := blob.NewRawArchive(store, prov.Name(), log)

	wh, err := warehouse.Connect(cfg.PostgresDSN, log)
	if err != nil {
		log.Error("warehouse connect failed", "error", err)
		os.Exit(1)
	}

	docs, err := serving.New(ctx, cfg.RedisAddr, log)
	if err != nil {
		log.Error("serving store connect failed", "error", err)
		os.Exit(1)
	}
	defer docs.Close()

	params := ingest.Params{
		Provider:    prov,
		Archive:     archive,
		Warehouse:   wh,
		Docs:        docs,
		Lat:         cfg.Lat,
		Lon:         cfg.Lon,
		HorizonDays: cfg.HorizonDays,
		Log:         log,
	}
	if cfg.Events.Enabled {
		pub, err := events.NewPublisher(cfg.Events.Brokers, cfg.Events.Topic, log)
		if err != nil {
			log.Error("events publisher init failed", "error", err)
			os.Exit(1)
		}
		defer pub.Close()
		params.Events = pub
	}
	orch := ingest.New(params)

	if *localTrigger != "" {
		payload, err := ingest.DecodeTrigger([]byte(*localTrigger))
		if err != nil {
			log.Error("invalid local trigger payload", "error", err)
			os.Exit(1)
		}
		if payload.AreaID == "" {
			payload.AreaID = cfg.AreaID
		}
		result := orch.Run(ctx, payload.AreaID, payload.HorizonDays)
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
		return
	}

	trigger := ingest.TriggerHandler(orch, cfg.AreaID, log)

	r := chi.NewRouter()
	r.Use(imw.Recover())
	r.Use(imw.Logging(log))
	r.Get("/healthz", health.Liveness())
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/", trigger)
	r.Post("/trigger", trigger)

	if err := server.Run(ctx, cfg.Addr, r, log); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
