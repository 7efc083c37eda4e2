package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	ingestRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_runs_total",
			Help: "Completed ingest runs by final status.",
		},
		[]string{"status"},
	)

	ingestHoursIngested = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_hours_ingested",
			Help: "Hours ingested by the most recent run.",
		},
	)

	providerFetchSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_fetch_duration_seconds",
			Help:    "Duration of upstream endpoint fetches, retries included.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"endpoint", "outcome"},
	)

	providerFetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_fetch_attempts_total",
			Help: "Individual upstream fetch attempts by outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	sinkOpSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sink_op_duration_seconds",
			Help:    "Duration of storage sink operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"sink", "op", "outcome"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveIngestRun(status string, hoursIngested int) {
	ingestRunsTotal.WithLabelValues(status).Inc()
	ingestHoursIngested.Set(float64(hoursIngested))
}

func ObserveFetch(endpoint string, ok bool, durationSeconds float64) {
	providerFetchSeconds.WithLabelValues(endpoint, outcome(ok)).Observe(durationSeconds)
}

func IncFetchAttempt(endpoint string, ok bool) {
	providerFetchAttempts.WithLabelValues(endpoint, outcome(ok)).Inc()
}

func ObserveSinkOp(sink, op string, err error, durationSeconds float64) {
	sinkOpSeconds.WithLabelValues(sink, op, outcome(err == nil)).Observe(durationSeconds)
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
