// Package warehouse appends curated hourly rows and ingest-run audit records
// to Postgres and answers the idempotency probe.
package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/gonow-app/gonow/internal/core/observability"
	"github.com/gonow-app/gonow/internal/forecast"
)

const (
	hourlyTable = "hourly_forecast_v1"
	runsTable   = "ingest_runs_v1"

	curatedSchemaVersion = "curated_v1"
	runSchemaVersion     = "ingest_run_v1"
)

type Warehouse struct {
	db  *sqlx.DB
	log *slog.Logger
}

func New(db *sqlx.DB, log *slog.Logger) *Warehouse {
	if log == nil {
		log = slog.Default()
	}
	return &Warehouse{db: db, log: log}
}

func Connect(dsn string, log *slog.Logger) (*Warehouse, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("warehouse connect: %w", err)
	}
	return New(db, log), nil
}

type hourlyRecord struct {
	AreaID        string     `db:"area_id"`
	HourUTC       time.Time  `db:"hour_utc"`
	WaveHeightM   *float64   `db:"wave_height_m"`
	WavePeriodS   *float64   `db:"wave_period_s"`
	AirTempC      *float64   `db:"air_temp_c"`
	FeelslikeC    *float64   `db:"feelslike_c"`
	WindMS        *float64   `db:"wind_ms"`
	GustMS        *float64   `db:"gust_ms"`
	PrecipProbPct *int       `db:"precip_prob_pct"`
	PrecipMM      *float64   `db:"precip_mm"`
	UVIndex       *float64   `db:"uv_index"`
	EuAQI         *int       `db:"eu_aqi"`
	PM10          *float64   `db:"pm10"`
	PM25          *float64   `db:"pm2_5"`
	FetchedAtUTC  time.Time  `db:"fetched_at_utc"`
	Provider      string     `db:"provider"`
	IngestRunID   string     `db:"ingest_run_id"`
	SchemaVersion string     `db:"schema_version"`
}

const insertHourlySQL = `INSERT INTO ` + hourlyTable + ` (
	area_id, hour_utc, wave_height_m, wave_period_s, air_temp_c, feelslike_c,
	wind_ms, gust_ms, precip_prob_pct, precip_mm, uv_index, eu_aqi, pm10, pm2_5,
	fetched_at_utc, provider, ingest_run_id, schema_version
) VALUES (
	:area_id, :hour_utc, :wave_height_m, :wave_period_s, :air_temp_c, :feelslike_c,
	:wind_ms, :gust_ms, :precip_prob_pct, :precip_mm, :uv_index, :eu_aqi, :pm10, :pm2_5,
	:fetched_at_utc, :provider, :ingest_run_id, :schema_version
)`

// InsertHourly appends the normalized rows in a single batch statement; any
// per-row error fails the whole insert.
func (w *Warehouse) InsertHourly(ctx context.Context, rows []forecast.HourlyRow, fetchedAt time.Time, provider, runID string) error {
	start := time.Now()
	var err error
	defer func() {
		observability.ObserveSinkOp("warehouse", "insert_hourly", err, time.Since(start).Seconds())
	}()

	if len(rows) == 0 {
		return nil
	}

	records := make([]hourlyRecord, len(rows))
	for i, r := range rows {
		records[i] = hourlyRecord{
			AreaID:        r.AreaID,
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
			FetchedAtUTC:  fetchedAt.UTC(),
			Provider:      provider,
			IngestRunID:   runID,
			SchemaVersion: curatedSchemaVersion,
		}
	}

	if _, err = w.db.NamedExecContext(ctx, insertHourlySQL, records); err != nil {
		err = fmt.Errorf("warehouse insert %s (%d rows): %w", hourlyTable, len(records), err)
		return err
	}
	w.log.InfoContext(ctx, "storage write success", "layer", "warehouse", "table", hourlyTable, "row_count", len(records))
	return nil
}

type runRecord struct {
	RunID         string         `db:"run_id"`
	AreaID        string         `db:"area_id"`
	StartedAtUTC  time.Time      `db:"started_at_utc"`
	FinishedAtUTC time.Time      `db:"finished_at_utc"`
	Status        string         `db:"status"`
	Provider      string         `db:"provider"`
	HoursIngested int            `db:"hours_ingested"`
	DQFlags       pq.StringArray `db:"dq_flags"`
	ErrorMessage  *string        `db:"error_message"`
	SchemaVersion string         `db:"schema_version"`
}

const insertRunSQL = `INSERT INTO ` + runsTable + ` (
	run_id, area_id, started_at_utc, finished_at_utc, status, provider,
	hours_ingested, dq_flags, error_message, schema_version
) VALUES (
	:run_id, :area_id, :started_at_utc, :finished_at_utc, :status, :provider,
	:hours_ingested, :dq_flags, :error_message, :schema_version
)`

// WriteRun appends the immutable audit row for one ingest run.
func (w *Warehouse) WriteRun(ctx context.Context, rec forecast.IngestRunRecord) error {
	start := time.Now()
	var err error
	defer func() {
		observability.ObserveSinkOp("warehouse", "write_run", err, time.Since(start).Seconds())
	}()

	row := runRecord{
		RunID:         rec.RunID,
		AreaID:        rec.AreaID,
		StartedAtUTC:  rec.StartedAtUTC.UTC(),
		FinishedAtUTC: rec.FinishedAtUTC.UTC(),
		Status:        rec.Status,
		Provider:      rec.Provider,
		HoursIngested: rec.HoursIngested,
		DQFlags:       pq.StringArray(rec.DQFlags),
		SchemaVersion: runSchemaVersion,
	}
	if rec.ErrorMessage != "" {
		row.ErrorMessage = &rec.ErrorMessage
	}

	if _, err = w.db.NamedExecContext(ctx, insertRunSQL, row); err != nil {
		err = fmt.Errorf("warehouse insert %s: %w", runsTable, err)
		return err
	}
	w.log.InfoContext(ctx, "storage write success", "layer", "warehouse", "table", runsTable, "run_id", rec.RunID)
	return nil
}

const idempotencySQL = `SELECT count(*) FROM ` + runsTable + `
	WHERE area_id = $1
	  AND to_char(started_at_utc AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24') = $2
	  AND status = 'success'`

// AlreadyIngested reports whether a successful run exists for the area in the
// given UTC hour bucket (YYYY-MM-DDTHH).
func (w *Warehouse) AlreadyIngested(ctx context.Context, areaID, hourBucket string) (bool, error) {
	start := time.Now()
	var cnt int
	err := w.db.GetContext(ctx, &cnt, idempotencySQL, areaID, hourBucket)
	observability.ObserveSinkOp("warehouse", "idempotency_probe", err, time.Since(start).Seconds())
	if err != nil {
		return false, fmt.Errorf("warehouse idempotency query: %w", err)
	}
	return cnt > 0, nil
}
