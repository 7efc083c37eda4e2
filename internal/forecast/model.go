// Package forecast defines the normalized hourly schema shared by the
// provider adapter, the storage sinks, and the serving document.
package forecast

import "time"

// HourlyRow is the canonical time-aligned record for one forecast hour.
// Metric fields are pointers: nil means the source endpoint was missing or
// the value was absent, which is distinct from zero.
type HourlyRow struct {
	AreaID  string    `json:"area_id"`
	HourUTC time.Time `json:"hour_utc"`

	WaveHeightM   *float64 `json:"wave_height_m"`
	WavePeriodS   *float64 `json:"wave_period_s"`
	AirTempC      *float64 `json:"air_temp_c"`
	FeelslikeC    *float64 `json:"feelslike_c"`
	WindMS        *float64 `json:"wind_ms"`
	GustMS        *float64 `json:"gust_ms"`
	PrecipProbPct *int     `json:"precip_prob_pct"`
	PrecipMM      *float64 `json:"precip_mm"`
	UVIndex       *float64 `json:"uv_index"`
	EuAQI         *int     `json:"eu_aqi"`
	PM10          *float64 `json:"pm10"`
	PM25          *float64 `json:"pm2_5"`
}

// DailySun carries the sun times for one calendar date; only the scoring
// engine's sunset gate consumes it.
type DailySun struct {
	Date       string    `json:"date"` // YYYY-MM-DD
	SunriseUTC time.Time `json:"sunrise_utc"`
	SunsetUTC  time.Time `json:"sunset_utc"`
}

// DocumentHour is the per-hour projection stored in the serving document.
type DocumentHour struct {
	HourUTC       time.Time `json:"hour_utc"`
	WaveHeightM   *float64  `json:"wave_height_m"`
	WavePeriodS   *float64  `json:"wave_period_s"`
	AirTempC      *float64  `json:"air_temp_c"`
	FeelslikeC    *float64  `json:"feelslike_c"`
	WindMS        *float64  `json:"wind_ms"`
	GustMS        *float64  `json:"gust_ms"`
	PrecipProbPct *int      `json:"precip_prob_pct"`
	PrecipMM      *float64  `json:"precip_mm"`
	UVIndex       *float64  `json:"uv_index"`
	EuAQI         *int      `json:"eu_aqi"`
	PM10          *float64  `json:"pm10"`
	PM25          *float64  `json:"pm2_5"`
}

// Document is the low-latency serving artifact, overwritten whole on each
// successful ingest run. The read API never writes it.
type Document struct {
	AreaID       string         `json:"area_id"`
	UpdatedAtUTC time.Time      `json:"updated_at_utc"`
	Provider     string         `json:"provider"`
	HorizonDays  int            `json:"horizon_days"`
	IngestStatus string         `json:"ingest_status"`
	Hours        []DocumentHour `json:"hours"`
	Daily        []DailySun     `json:"daily"`
}

// DocHour projects a normalized row into the serving-document shape.
func DocHour(r HourlyRow) DocumentHour {
	return DocumentHour{
		HourUTC:       r.HourUTC,
		WaveHeightM:   r.WaveHeightM,
		WavePeriodS:   r.WavePeriodS,
		AirTempC:      r.AirTempC,
		FeelslikeC:    r.FeelslikeC,
		WindMS:        r.WindMS,
		GustMS:        r.GustMS,
		PrecipProbPct: r.PrecipProbPct,
		PrecipMM:      r.PrecipMM,
		UVIndex:       r.UVIndex,
		EuAQI:         r.EuAQI,
		PM10:          r.PM10,
		PM25:          r.PM25,
	}
}

// RunStatus values, ordered by severity for the orchestrator downgrade rule.
const (
	StatusSuccess  = "success"
	StatusDegraded = "degraded"
	StatusFailed   = "failed"
	StatusSkipped  = "skipped"
)

// IngestRunRecord is the immutable audit row appended once per run.
type IngestRunRecord struct {
	RunID         string    `json:"run_id"`
	AreaID        string    `json:"area_id"`
	StartedAtUTC  time.Time `json:"started_at_utc"`
	FinishedAtUTC time.Time `json:"finished_at_utc"`
	Status        string    `json:"status"`
	Provider      string    `json:"provider"`
	HoursIngested int       `json:"hours_ingested"`
	DQFlags       []string  `json:"dq_flags"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	SchemaVersion string    `json:"schema_version"`
}
