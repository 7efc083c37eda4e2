package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type EventsCfg struct {
	Enabled bool
	Brokers string
	Topic   string
}

type Config struct {
	Addr     string
	LogLevel string
	Env      string

	AreaID      string
	Lat         float64
	Lon         float64
	HorizonDays int

	OpenMeteoBaseURL  string
	MarineBaseURL     string
	AirQualityBaseURL string

	RawBlobDir   string
	GCSRawBucket string
	PostgresDSN  string
	RedisAddr    string

	Events EventsCfg

	// Read-side freshness thresholds, consumed by the API service only.
	FreshnessThreshold time.Duration
	UnhealthyThreshold time.Duration
	DocCacheTTL        time.Duration
}

func FromEnv() Config {
	return Config{
		Addr:     getenv("ADDR", ":8080"),
		LogLevel: getenv("LOG_LEVEL", "info"),
		Env:      getenv("ENV", "dev"),

		// Tel Aviv Coast, the single area in v1.
		AreaID:      getenv("AREA_ID", "tel_aviv_coast"),
		Lat:         getfloat("LAT", 32.08),
		Lon:         getfloat("LON", 34.77),
		HorizonDays: getint("HORIZON_DAYS", 7),

		OpenMeteoBaseURL:  getenv("OPEN_METEO_BASE_URL", "https://api.open-meteo.com"),
		MarineBaseURL:     getenv("MARINE_BASE_URL", "https://marine-api.open-meteo.com"),
		AirQualityBaseURL: getenv("AIR_QUALITY_BASE_URL", "https://air-quality-api.open-meteo.com"),

		RawBlobDir:   getenv("RAW_BLOB_DIR", "data/raw"),
		GCSRawBucket: getenv("GCS_RAW_BUCKET", ""),
		PostgresDSN:  getenv("POSTGRES_DSN", "postgres://localhost:5432/gonow?sslmode=disable"),
		RedisAddr:    getenv("REDIS_ADDR", "localhost:6379"),

		Events: EventsCfg{
			Enabled: getbool("EVENTS_ENABLED", false),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getenv("KAFKA_TOPIC", "ingest-runs"),
		},

		FreshnessThreshold: time.Duration(getint("FRESHNESS_THRESHOLD_MINUTES", 90)) * time.Minute,
		UnhealthyThreshold: time.Duration(getint("UNHEALTHY_THRESHOLD_MINUTES", 180)) * time.Minute,
		DocCacheTTL:        getduration("DOC_CACHE_TTL", 30*time.Second),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
