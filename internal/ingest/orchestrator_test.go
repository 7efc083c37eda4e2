package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gonow-app/gonow/internal/events"
	"github.com/gonow-app/gonow/internal/forecast"
)

type fakeProvider struct {
	raw  map[string]json.RawMessage
	rows []forecast.HourlyRow
	sun  []forecast.DailySun
}

func (f *fakeProvider) Name() string        { return "open_meteo" }
func (f *fakeProvider) Endpoints() []string { return []string{"weather", "marine", "air_quality"} }
func (f *fakeProvider) FetchRaw(context.Context, string, float64, float64, int) map[string]json.RawMessage {
	return f.raw
}
func (f *fakeProvider) Normalize(map[string]json.RawMessage, string, time.Time) ([]forecast.HourlyRow, []forecast.DailySun) {
	return f.rows, f.sun
}

type fakeArchive struct {
	err   error
	calls int
}

func (f *fakeArchive) WriteRaw(context.Context, map[string]json.RawMessage, string, time.Time, string) error {
	f.calls++
	return f.err
}

type fakeWarehouse struct {
	mu sync.Mutex

	ingested  bool
	probeErr  error
	insertErr error
	runErr    error

	inserted int
	runs     []forecast.IngestRunRecord
}

func (f *fakeWarehouse) AlreadyIngested(context.Context, string, string) (bool, error) {
	return f.ingested, f.probeErr
}

func (f *fakeWarehouse) InsertHourly(_ context.Context, rows []forecast.HourlyRow, _ time.Time, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted += len(rows)
	return nil
}

func (f *fakeWarehouse) WriteRun(_ context.Context, rec forecast.IngestRunRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, rec)
	return f.runErr
}

func (f *fakeWarehouse) lastRun(t *testing.T) forecast.IngestRunRecord {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.runs) == 0 {
		t.Fatalf("no run record written")
	}
	return f.runs[len(f.runs)-1]
}

type fakeDocs struct {
	mu   sync.Mutex
	err  error
	docs []forecast.Document
}

func (f *fakeDocs) Update(_ context.Context, doc forecast.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.docs = append(f.docs, doc)
	return nil
}

type fakeEvents struct {
	published []events.RunEvent
}

func (f *fakeEvents) Publish(ev events.RunEvent) { f.published = append(f.published, ev) }

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

func cleanRows(n int) []forecast.HourlyRow {
	start := time.Date(2026, 2, 25, 0, 0, 0, 0, time.UTC)
	rows := make([]forecast.HourlyRow, n)
	for i := range rows {
		rows[i] = forecast.HourlyRow{
			AreaID:      "tel_aviv_coast",
			HourUTC:     start.Add(time.Duration(i) * time.Hour),
			WaveHeightM: fptr(0.4),
			FeelslikeC:  fptr(22),
			WindMS:      fptr(3),
			UVIndex:     fptr(4),
			EuAQI:       iptr(35),
		}
	}
	return rows
}

func allEndpoints() map[string]json.RawMessage {
	return map[string]json.RawMessage{
		"weather":     json.RawMessage(`{}`),
		"marine":      json.RawMessage(`{}`),
		"air_quality": json.RawMessage(`{}`),
	}
}

type fixture struct {
	prov  *fakeProvider
	arc   *fakeArchive
	wh    *fakeWarehouse
	docs  *fakeDocs
	ev    *fakeEvents
	orch  *Orchestrator
}

func newFixture() *fixture {
	f := &fixture{
		prov: &fakeProvider{raw: allEndpoints(), rows: cleanRows(168)},
		arc:  &fakeArchive{},
		wh:   &fakeWarehouse{},
		docs: &fakeDocs{},
		ev:   &fakeEvents{},
	}
	f.orch = New(Params{
		Provider:    f.prov,
		Archive:     f.arc,
		Warehouse:   f.wh,
		Docs:        f.docs,
		Events:      f.ev,
		Lat:         32.08,
		Lon:         34.77,
		HorizonDays: 7,
		Log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

func TestRun_Success(t *testing.T) {
	f := newFixture()
	res := f.orch.Run(context.Background(), "tel_aviv_coast", 7)

	if res.Status != forecast.StatusSuccess {
		t.Fatalf("status = %q, want success", res.Status)
	}
	if res.HoursIngested != 168 {
		t.Fatalf("hours ingested = %d", res.HoursIngested)
	}
	if f.wh.inserted != 168 {
		t.Fatalf("warehouse got %d rows", f.wh.inserted)
	}
	if len(f.docs.docs) != 1 || f.docs.docs[0].IngestStatus != forecast.StatusSuccess {
		t.Fatalf("serving doc not updated: %+v", f.docs.docs)
	}
	rec := f.wh.lastRun(t)
	if rec.Status != forecast.StatusSuccess || len(rec.DQFlags) != 0 {
		t.Fatalf("run record = %+v", rec)
	}
	if len(f.ev.published) != 1 || f.ev.published[0].RunID != res.RunID {
		t.Fatalf("completion event missing: %+v", f.ev.published)
	}
}

func TestRun_IDFormat(t *testing.T) {
	f := newFixture()
	res := f.orch.Run(context.Background(), "tel_aviv_coast", 7)
	pattern := regexp.MustCompile(`^run_\d{8}_\d{6}_[a-z0-9]{6}$`)
	if !pattern.MatchString(res.RunID) {
		t.Fatalf("run id %q does not match %s", res.RunID, pattern)
	}
}

func TestRun_SkippedWritesNothing(t *testing.T) {
	f := newFixture()
	f.wh.ingested = true

	res := f.orch.Run(context.Background(), "tel_aviv_coast", 7)
	if res.Status != forecast.StatusSkipped || res.HoursIngested != 0 {
		t.Fatalf("result = %+v", res)
	}
	if f.arc.calls != 0 || f.wh.inserted != 0 || len(f.wh.runs) != 0 || len(f.docs.docs) != 0 {
		t.Fatalf("skipped run must not touch any sink")
	}
}

func TestRun_ProbeFailureProceeds(t *testing.T) {
	f := newFixture()
	f.wh.probeErr = errors.New("warehouse down")

	res := f.orch.Run(context.Background(), "tel_aviv_coast", 7)
	if res.Status != forecast.StatusSuccess {
		t.Fatalf("probe failure should not stop the run: %+v", res)
	}
}

func TestRun_AllEndpointsFailed(t *testing.T) {
	f := newFixture()
	f.prov.raw = nil

	res := f.orch.Run(context.Background(), "tel_aviv_coast", 7)
	if res.Status != forecast.StatusFailed || res.HoursIngested != 0 {
		t.Fatalf("result = %+v", res)
	}
	rec := f.wh.lastRun(t)
	if rec.ErrorMessage != "All provider endpoints failed after retries" {
		t.Fatalf("error message = %q", rec.ErrorMessage)
	}
	if f.arc.calls != 0 || len(f.docs.docs) != 0 {
		t.Fatalf("downstream sinks must not run after a fetch wipeout")
	}
}

func TestRun_ArchiveFailureIsTerminal(t *testing.T) {
	f := newFixture()
	f.arc.err = errors.New("bucket gone")

	res := f.orch.Run(context.Background(), "tel_aviv_coast", 7)
	if res.Status != forecast.StatusFailed {
		t.Fatalf("status = %q, want failed", res.Status)
	}
	rec := f.wh.lastRun(t)
	if !strings.Contains(rec.ErrorMessage, "bucket gone") {
		t.Fatalf("error message = %q", rec.ErrorMessage)
	}
	if f.wh.inserted != 0 || len(f.docs.docs) != 0 {
		t.Fatalf("no downstream write after archive failure")
	}
}

func TestRun_DQDegraded(t *testing.T) {
	f := newFixture()
	f.prov.rows = cleanRows(80)

	res := f.orch.Run(context.Background(), "tel_aviv_coast", 7)
	if res.Status != forecast.StatusDegraded {
		t.Fatalf("status = %q, want degraded", res.Status)
	}
	rec := f.wh.lastRun(t)
	if len(rec.DQFlags) == 0 || !strings.Contains(rec.DQFlags[0], "very_low_hour_count:80") {
		t.Fatalf("dq flags = %v", rec.DQFlags)
	}
}

func TestRun_MissingEndpointDegrades(t *testing.T) {
	f := newFixture()
	delete(f.prov.raw, "marine")
	delete(f.prov.raw, "air_quality")

	res := f.orch.Run(context.Background(), "tel_aviv_coast", 7)
	if res.Status != forecast.StatusDegraded {
		t.Fatalf("status = %q, want degraded", res.Status)
	}
	rec := f.wh.lastRun(t)
	found := false
	for _, flag := range rec.DQFlags {
		if flag == "missing_endpoints:air_quality,marine" {
			found = true
		}
	}
	if !found {
		t.Fatalf("sorted missing_endpoints flag absent: %v", rec.DQFlags)
	}
}

func TestRun_SingleSinkFailureDegrades(t *testing.T) {
	f := newFixture()
	f.wh.insertErr = errors.New("quota")

	res := f.orch.Run(context.Background(), "tel_aviv_coast", 7)
	if res.Status != forecast.StatusDegraded {
		t.Fatalf("status = %q, want degraded", res.Status)
	}
	rec := f.wh.lastRun(t)
	found := false
	for _, flag := range rec.DQFlags {
		if strings.HasPrefix(flag, "bq_write_failed:") {
			found = true
		}
	}
	if !found {
		t.Fatalf("bq_write_failed flag absent: %v", rec.DQFlags)
	}
	if len(f.docs.docs) != 1 {
		t.Fatalf("serving doc should still be written")
	}
}

func TestRun_BothSinksFailed(t *testing.T) {
	f := newFixture()
	f.wh.insertErr = errors.New("quota")
	f.docs.err = errors.New("timeout")

	res := f.orch.Run(context.Background(), "tel_aviv_coast", 7)
	if res.Status != forecast.StatusFailed {
		t.Fatalf("status = %q, want failed", res.Status)
	}
	rec := f.wh.lastRun(t)
	if len(rec.DQFlags) < 2 {
		t.Fatalf("both sink flags expected: %v", rec.DQFlags)
	}
}

func TestRun_RunRecordFailureIsLoggedOnly(t *testing.T) {
	f := newFixture()
	f.wh.runErr = errors.New("audit down")

	res := f.orch.Run(context.Background(), "tel_aviv_coast", 7)
	if res.Status != forecast.StatusSuccess {
		t.Fatalf("audit failure must not change the response: %+v", res)
	}
}

func TestDecodeTrigger(t *testing.T) {
	raw, err := DecodeTrigger([]byte(`{"area_id":"haifa_bay","horizon_days":3}`))
	if err != nil {
		t.Fatalf("raw decode: %v", err)
	}
	if raw.AreaID != "haifa_bay" || raw.HorizonDays != 3 {
		t.Fatalf("raw payload = %+v", raw)
	}

	inner, _ := json.Marshal(TriggerPayload{AreaID: "haifa_bay", HorizonDays: 3})
	envelope, _ := json.Marshal(map[string]any{
		"message": map[string]string{"data": base64.StdEncoding.EncodeToString(inner)},
	})
	env, err := DecodeTrigger(envelope)
	if err != nil {
		t.Fatalf("envelope decode: %v", err)
	}
	if env != raw {
		t.Fatalf("envelope payload = %+v, want %+v", env, raw)
	}

	if _, err := DecodeTrigger([]byte(`{not json`)); err == nil {
		t.Fatalf("malformed body should fail")
	}
	if _, err := DecodeTrigger([]byte(`{"message":{"data":"%%%"}}`)); err == nil {
		t.Fatalf("bad base64 should fail")
	}
}

func TestTriggerHandler(t *testing.T) {
	f := newFixture()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := TriggerHandler(f.orch, "tel_aviv_coast", log)

	req := httptest.NewRequest(http.MethodPost, "/trigger", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	h(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var res Result
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("response decode: %v", err)
	}
	if res.Status != forecast.StatusSuccess || res.HoursIngested != 168 {
		t.Fatalf("result = %+v", res)
	}

	rr = httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodPost, "/trigger", strings.NewReader(`not json`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed body should be 400, got %d", rr.Code)
	}
}
