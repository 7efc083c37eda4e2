package openmeteo

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gonow-app/gonow/internal/retry"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 4, BaseDelay: time.Millisecond, JitterMax: time.Millisecond}
}

const sampleWeather = `{
	"hourly": {
		"time": ["2026-02-25T06:00", "2026-02-25T07:00", "2026-02-25T08:00"],
		"temperature_2m": [24.1, 24.8, 25.2],
		"apparent_temperature": [25.3, 25.9, 26.4],
		"wind_speed_10m": [12.6, 10.8, 9.0],
		"wind_gusts_10m": [18.0, 16.2, 14.4],
		"precipitation_probability": [0, 5, 10],
		"precipitation": [0.0, 0.0, 0.1],
		"uv_index": [0.0, 1.5, 3.0]
	},
	"daily": {
		"time": ["2026-02-25"],
		"sunrise": ["2026-02-25T04:21"],
		"sunset": ["2026-02-25T15:39"]
	}
}`

const sampleMarine = `{
	"hourly": {
		"time": ["2026-02-25T06:00", "2026-02-25T07:00", "2026-02-25T08:00"],
		"wave_height": [0.4, 0.5, 0.6],
		"wave_period": [5.2, 5.4, 5.6]
	}
}`

const sampleAirQuality = `{
	"hourly": {
		"time": ["2026-02-25T06:00", "2026-02-25T07:00", "2026-02-25T08:00"],
		"european_aqi": [42, 44, 45],
		"pm10": [18.5, 19.0, 19.5],
		"pm2_5": [8.2, 8.4, 8.6]
	}
}`

func sampleRaw() map[string]json.RawMessage {
	return map[string]json.RawMessage{
		EndpointWeather:    json.RawMessage(sampleWeather),
		EndpointMarine:     json.RawMessage(sampleMarine),
		EndpointAirQuality: json.RawMessage(sampleAirQuality),
	}
}

func TestNormalize_MergesThreeEndpoints(t *testing.T) {
	c := New("https://example.test", nil, discardLog())
	rows, daily := c.Normalize(sampleRaw(), "tel_aviv_coast", time.Now().UTC())

	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if len(daily) != 1 {
		t.Fatalf("expected 1 daily sun row, got %d", len(daily))
	}
	for _, r := range rows {
		if r.AreaID != "tel_aviv_coast" {
			t.Fatalf("wrong area_id %q", r.AreaID)
		}
	}

	r0 := rows[0]
	if r0.WindMS == nil || *r0.WindMS != 3.5 {
		t.Fatalf("wind 12.6 km/h should normalize to 3.50 m/s, got %v", r0.WindMS)
	}
	if r0.GustMS == nil || *r0.GustMS != 5.0 {
		t.Fatalf("gust 18.0 km/h should normalize to 5.00 m/s, got %v", r0.GustMS)
	}
	if r0.AirTempC == nil || *r0.AirTempC != 24.1 {
		t.Fatalf("temperature passthrough broken: %v", r0.AirTempC)
	}
	if r0.WaveHeightM == nil || *r0.WaveHeightM != 0.4 {
		t.Fatalf("wave height passthrough broken: %v", r0.WaveHeightM)
	}
	if r0.PrecipProbPct == nil || *r0.PrecipProbPct != 0 {
		t.Fatalf("precip prob should coerce to int 0, got %v", r0.PrecipProbPct)
	}
	if r0.EuAQI == nil || *r0.EuAQI != 42 {
		t.Fatalf("eu_aqi should coerce to int 42, got %v", r0.EuAQI)
	}
	if r0.PM25 == nil || *r0.PM25 != 8.2 {
		t.Fatalf("pm2_5 passthrough broken: %v", r0.PM25)
	}
}

func TestNormalize_RowsSortedAscending(t *testing.T) {
	c := New("https://example.test", nil, discardLog())
	rows, _ := c.Normalize(sampleRaw(), "tel_aviv_coast", time.Now().UTC())
	for i := 1; i < len(rows); i++ {
		if !rows[i-1].HourUTC.Before(rows[i].HourUTC) {
			t.Fatalf("rows not sorted at %d: %v >= %v", i, rows[i-1].HourUTC, rows[i].HourUTC)
		}
	}
	if got := rows[0].HourUTC; got != time.Date(2026, 2, 25, 6, 0, 0, 0, time.UTC) {
		t.Fatalf("first hour should be 06:00 UTC, got %v", got)
	}
}

func TestNormalize_MissingEndpointLeavesFieldsNil(t *testing.T) {
	raw := sampleRaw()
	delete(raw, EndpointMarine)

	c := New("https://example.test", nil, discardLog())
	rows, _ := c.Normalize(raw, "tel_aviv_coast", time.Now().UTC())
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for _, r := range rows {
		if r.WaveHeightM != nil || r.WavePeriodS != nil {
			t.Fatalf("marine fields should be nil when marine endpoint is missing")
		}
		if r.FeelslikeC == nil || r.EuAQI == nil {
			t.Fatalf("present endpoints should still contribute")
		}
	}
}

func TestNormalize_EmptyRawReturnsEmpty(t *testing.T) {
	c := New("https://example.test", nil, discardLog())
	rows, daily := c.Normalize(map[string]json.RawMessage{}, "tel_aviv_coast", time.Now().UTC())
	if len(rows) != 0 || len(daily) != 0 {
		t.Fatalf("expected empty output, got %d rows %d daily", len(rows), len(daily))
	}
}

func TestNormalize_DailySunOnlyFromWeather(t *testing.T) {
	raw := sampleRaw()
	delete(raw, EndpointWeather)

	c := New("https://example.test", nil, discardLog())
	_, daily := c.Normalize(raw, "tel_aviv_coast", time.Now().UTC())
	if len(daily) != 0 {
		t.Fatalf("daily sun rows should be absent without the weather endpoint")
	}
}

// routes the three endpoint paths of one test server
func newUpstream(t *testing.T, weather, marine, aq http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/forecast", weather)
	mux.HandleFunc("/v1/marine", marine)
	mux.HandleFunc("/v1/air-quality", aq)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func serveJSON(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}
}

func TestFetchRaw_AllEndpointsPresent(t *testing.T) {
	srv := newUpstream(t, serveJSON(sampleWeather), serveJSON(sampleMarine), serveJSON(sampleAirQuality))

	c := New(srv.URL, srv.Client(), discardLog(),
		WithMarineBase(srv.URL), WithAirQualityBase(srv.URL), WithRetry(fastRetry()))
	raw := c.FetchRaw(context.Background(), "tel_aviv_coast", 32.08, 34.77, 7)

	if len(raw) != 3 {
		t.Fatalf("expected 3 endpoints, got %d", len(raw))
	}
	for _, name := range c.Endpoints() {
		if _, ok := raw[name]; !ok {
			t.Fatalf("missing endpoint %q", name)
		}
	}
}

func TestFetchRaw_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	flaky := func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, sampleMarine)
	}
	srv := newUpstream(t, serveJSON(sampleWeather), flaky, serveJSON(sampleAirQuality))

	c := New(srv.URL, srv.Client(), discardLog(),
		WithMarineBase(srv.URL), WithAirQualityBase(srv.URL), WithRetry(fastRetry()))
	raw := c.FetchRaw(context.Background(), "tel_aviv_coast", 32.08, 34.77, 7)

	if _, ok := raw[EndpointMarine]; !ok {
		t.Fatalf("marine endpoint should recover on third attempt")
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 marine attempts, got %d", got)
	}
}

func TestFetchRaw_ExhaustedEndpointOmitted(t *testing.T) {
	var calls atomic.Int32
	down := func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}
	srv := newUpstream(t, serveJSON(sampleWeather), down, serveJSON(sampleAirQuality))

	c := New(srv.URL, srv.Client(), discardLog(),
		WithMarineBase(srv.URL), WithAirQualityBase(srv.URL), WithRetry(fastRetry()))
	raw := c.FetchRaw(context.Background(), "tel_aviv_coast", 32.08, 34.77, 7)

	if _, ok := raw[EndpointMarine]; ok {
		t.Fatalf("marine endpoint should be omitted after exhausting retries")
	}
	if len(raw) != 2 {
		t.Fatalf("expected 2 surviving endpoints, got %d", len(raw))
	}
	if got := calls.Load(); got != 4 {
		t.Fatalf("expected 4 attempts (1 initial + 3 retries), got %d", got)
	}
}

func TestFetchRaw_InvalidJSONTriggersRetry(t *testing.T) {
	var calls atomic.Int32
	garbage := func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, "<html>not json</html>")
	}
	srv := newUpstream(t, serveJSON(sampleWeather), serveJSON(sampleMarine), garbage)

	c := New(srv.URL, srv.Client(), discardLog(),
		WithMarineBase(srv.URL), WithAirQualityBase(srv.URL), WithRetry(fastRetry()))
	raw := c.FetchRaw(context.Background(), "tel_aviv_coast", 32.08, 34.77, 7)

	if _, ok := raw[EndpointAirQuality]; ok {
		t.Fatalf("air quality endpoint should be omitted on unparseable body")
	}
	if got := calls.Load(); got != 4 {
		t.Fatalf("expected 4 attempts on parse failure, got %d", got)
	}
}
