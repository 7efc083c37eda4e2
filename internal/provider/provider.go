// Package provider defines the capability set the ingest pipeline needs from
// a forecast vendor. One implementation (Open-Meteo) ships in v1.
package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gonow-app/gonow/internal/forecast"
)

// Interface is what the orchestrator depends on. FetchRaw never fails: at
// worst it returns an empty map with every endpoint omitted.
type Interface interface {
	Name() string
	Endpoints() []string
	FetchRaw(ctx context.Context, areaID string, lat, lon float64, horizonDays int) map[string]json.RawMessage
	Normalize(raw map[string]json.RawMessage, areaID string, fetchedAt time.Time) ([]forecast.HourlyRow, []forecast.DailySun)
}
