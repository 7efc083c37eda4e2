// Package ingest drives one pipeline run: fetch, archive, normalize, check,
// fan out to the storage sinks, and record the outcome.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gonow-app/gonow/internal/core/observability"
	"github.com/gonow-app/gonow/internal/dq"
	"github.com/gonow-app/gonow/internal/events"
	"github.com/gonow-app/gonow/internal/forecast"
	"github.com/gonow-app/gonow/internal/logger"
	"github.com/gonow-app/gonow/internal/provider"
)

// Archive is the raw blob sink. Its failure terminates the run before any
// downstream write.
type Archive interface {
	WriteRaw(ctx context.Context, raw map[string]json.RawMessage, areaID string, fetchedAt time.Time, runID string) error
}

// Warehouse is the analytical sink plus the idempotency probe and the
// run-record audit.
type Warehouse interface {
	AlreadyIngested(ctx context.Context, areaID, hourBucket string) (bool, error)
	InsertHourly(ctx context.Context, rows []forecast.HourlyRow, fetchedAt time.Time, provider, runID string) error
	WriteRun(ctx context.Context, rec forecast.IngestRunRecord) error
}

// DocStore is the low-latency serving sink.
type DocStore interface {
	Update(ctx context.Context, doc forecast.Document) error
}

// EventSink receives a best-effort completion event per run.
type EventSink interface {
	Publish(ev events.RunEvent)
}

// Result is what the trigger caller receives.
type Result struct {
	RunID         string `json:"run_id"`
	Status        string `json:"status"`
	HoursIngested int    `json:"hours_ingested"`
}

type Params struct {
	Provider  provider.Interface
	Archive   Archive
	Warehouse Warehouse
	Docs      DocStore
	Events    EventSink // optional

	Lat         float64
	Lon         float64
	HorizonDays int
	Log         *slog.Logger
}

type Orchestrator struct {
	p Params
}

func New(p Params) *Orchestrator {
	if p.Log == nil {
		p.Log = slog.Default()
	}
	return &Orchestrator{p: p}
}

func newRunID(now time.Time) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return fmt.Sprintf("run_%s_%s", now.Format("20060102_150405"), suffix)
}

// Run executes the pipeline once. The run starts as success and is only
// ever downgraded; it never raises past this boundary.
func (o *Orchestrator) Run(ctx context.Context, areaID string, horizonDays int) Result {
	startedAt := time.Now().UTC()
	id := newRunID(startedAt)
	if horizonDays <= 0 {
		horizonDays = o.p.HorizonDays
	}

	ctx = logger.WithRunID(ctx, id)
	ctx = logger.WithArea(ctx, areaID)
	log := o.p.Log
	log.InfoContext(ctx, "ingest started", "area_id", areaID, "horizon_days", horizonDays)

	// Idempotency probe. A probe failure means "not prior": the pipeline
	// would rather double-ingest than silently stop.
	bucket := startedAt.Format("2006-01-02T15")
	if done, err := o.p.Warehouse.AlreadyIngested(ctx, areaID, bucket); err != nil {
		log.WarnContext(ctx, "idempotency probe failed, proceeding", "error", err)
	} else if done {
		log.InfoContext(ctx, "ingest skipped", "reason", "idempotency", "hour_bucket", bucket)
		observability.ObserveIngestRun(forecast.StatusSkipped, 0)
		return Result{RunID: id, Status: forecast.StatusSkipped}
	}

	raw := o.p.Provider.FetchRaw(ctx, areaID, o.p.Lat, o.p.Lon, horizonDays)
	if len(raw) == 0 {
		return o.finishFailed(ctx, id, areaID, startedAt, "All provider endpoints failed after retries")
	}
	fetchedAt := time.Now().UTC()

	if err := o.p.Archive.WriteRaw(ctx, raw, areaID, fetchedAt, id); err != nil {
		log.ErrorContext(ctx, "raw archive write failed", "error", err)
		return o.finishFailed(ctx, id, areaID, startedAt, fmt.Sprintf("raw archive write failed: %v", err))
	}

	rows, dailySun := o.p.Provider.Normalize(raw, areaID, fetchedAt)

	dqResult := dq.Run(rows)
	flags := dqResult.Flags
	status := forecast.StatusSuccess
	if dqResult.Degraded {
		status = forecast.StatusDegraded
	}
	if missing := missingEndpoints(o.p.Provider.Endpoints(), raw); len(missing) > 0 {
		status = forecast.StatusDegraded
		flags = append(flags, "missing_endpoints:"+strings.Join(missing, ","))
	}

	doc := forecast.Document{
		AreaID:       areaID,
		UpdatedAtUTC: fetchedAt,
		Provider:     o.p.Provider.Name(),
		HorizonDays:  horizonDays,
		IngestStatus: status,
		Hours:        make([]forecast.DocumentHour, 0, len(rows)),
		Daily:        dailySun,
	}
	for _, r := range rows {
		doc.Hours = append(doc.Hours, forecast.DocHour(r))
	}

	// Both sinks run concurrently; one failing must not cancel the other.
	var wg sync.WaitGroup
	var whErr, docErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		whErr = o.p.Warehouse.InsertHourly(ctx, rows, fetchedAt, o.p.Provider.Name(), id)
	}()
	go func() {
		defer wg.Done()
		docErr = o.p.Docs.Update(ctx, doc)
	}()
	wg.Wait()

	if whErr != nil {
		log.ErrorContext(ctx, "warehouse load failed", "error", whErr)
		flags = append(flags, fmt.Sprintf("bq_write_failed:%v", whErr))
		if status == forecast.StatusSuccess {
			status = forecast.StatusDegraded
		}
	}
	if docErr != nil {
		log.ErrorContext(ctx, "serving doc update failed", "error", docErr)
		flags = append(flags, fmt.Sprintf("firestore_write_failed:%v", docErr))
		if status == forecast.StatusSuccess {
			status = forecast.StatusDegraded
		}
	}
	if whErr != nil && docErr != nil {
		status = forecast.StatusFailed
	}

	finishedAt := time.Now().UTC()
	rec := forecast.IngestRunRecord{
		RunID:         id,
		AreaID:        areaID,
		StartedAtUTC:  startedAt,
		FinishedAtUTC: finishedAt,
		Status:        status,
		Provider:      o.p.Provider.Name(),
		HoursIngested: len(rows),
		DQFlags:       flags,
	}
	if err := o.p.Warehouse.WriteRun(ctx, rec); err != nil {
		log.ErrorContext(ctx, "run record write failed", "error", err)
	}

	o.publish(rec)
	observability.ObserveIngestRun(status, len(rows))
	log.InfoContext(ctx, "ingest completed",
		"status", status,
		"hours_ingested", len(rows),
		"dq_flags", flags,
		"duration_ms", finishedAt.Sub(startedAt).Milliseconds(),
	)
	return Result{RunID: id, Status: status, HoursIngested: len(rows)}
}

// finishFailed records a terminal failure. The run-record write is best
// effort here too.
func (o *Orchestrator) finishFailed(ctx context.Context, id, areaID string, startedAt time.Time, msg string) Result {
	rec := forecast.IngestRunRecord{
		RunID:         id,
		AreaID:        areaID,
		StartedAtUTC:  startedAt,
		FinishedAtUTC: time.Now().UTC(),
		Status:        forecast.StatusFailed,
		Provider:      o.p.Provider.Name(),
		ErrorMessage:  msg,
	}
	if err := o.p.Warehouse.WriteRun(ctx, rec); err != nil {
		o.p.Log.ErrorContext(ctx, "run record write failed", "error", err)
	}
	o.publish(rec)
	observability.ObserveIngestRun(forecast.StatusFailed, 0)
	return Result{RunID: id, Status: forecast.StatusFailed}
}

func (o *Orchestrator) publish(rec forecast.IngestRunRecord) {
	if o.p.Events == nil {
		return
	}
	o.p.Events.Publish(events.RunEvent{
		RunID:         rec.RunID,
		AreaID:        rec.AreaID,
		Status:        rec.Status,
		HoursIngested: rec.HoursIngested,
		DQFlags:       rec.DQFlags,
		TS:            rec.FinishedAtUTC,
	})
}

func missingEndpoints(all []string, raw map[string]json.RawMessage) []string {
	var missing []string
	for _, ep := range all {
		if _, ok := raw[ep]; !ok {
			missing = append(missing, ep)
		}
	}
	sort.Strings(missing)
	return missing
}
