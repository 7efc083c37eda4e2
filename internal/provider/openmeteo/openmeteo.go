// Package openmeteo fetches the three Open-Meteo free-tier endpoints
// (weather, marine, air quality) and merges them into normalized hourly rows.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gonow-app/gonow/internal/core/observability"
	"github.com/gonow-app/gonow/internal/forecast"
	"github.com/gonow-app/gonow/internal/retry"
)

const (
	ProviderName = "open_meteo"

	EndpointWeather    = "weather"
	EndpointMarine     = "marine"
	EndpointAirQuality = "air_quality"

	// Open-Meteo hourly/daily timestamps are local wall clock without a zone
	// suffix; they are pinned to UTC on parse.
	timeLayout = "2006-01-02T15:04"
)

type Client struct {
	weatherBase    string
	marineBase     string
	airQualityBase string
	http           *http.Client
	retry          retry.Config
	log            *slog.Logger
}

type Option func(*Client)

func WithMarineBase(u string) Option {
	return func(c *Client) { c.marineBase = trimSlash(u) }
}

func WithAirQualityBase(u string) Option {
	return func(c *Client) { c.airQualityBase = trimSlash(u) }
}

func WithRetry(cfg retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

func New(baseURL string, httpClient *http.Client, log *slog.Logger, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		weatherBase:    trimSlash(baseURL),
		marineBase:     "https://marine-api.open-meteo.com",
		airQualityBase: "https://air-quality-api.open-meteo.com",
		http:           httpClient,
		retry:          retry.Defaults(),
		log:            log,
	}
	for _, f := range opts {
		f(c)
	}
	return c
}

func (c *Client) Name() string { return ProviderName }

func (c *Client) Endpoints() []string {
	return []string{EndpointWeather, EndpointMarine, EndpointAirQuality}
}

func (c *Client) buildURLs(lat, lon float64, horizonDays int) map[string]string {
	base := fmt.Sprintf("latitude=%v&longitude=%v&forecast_days=%d&timezone=auto", lat, lon, horizonDays)
	return map[string]string{
		EndpointWeather: c.weatherBase + "/v1/forecast?" + base +
			"&hourly=temperature_2m,apparent_temperature,wind_speed_10m,wind_gusts_10m," +
			"precipitation_probability,precipitation,uv_index" +
			"&daily=sunrise,sunset",
		EndpointMarine: c.marineBase + "/v1/marine?" + base +
			"&hourly=wave_height,wave_period,wave_direction",
		EndpointAirQuality: c.airQualityBase + "/v1/air-quality?" + base +
			"&hourly=european_aqi,pm10,pm2_5",
	}
}

// FetchRaw issues the three endpoint GETs concurrently, each inside its own
// retry loop. Endpoints that exhaust their attempts are omitted from the map.
func (c *Client) FetchRaw(ctx context.Context, areaID string, lat, lon float64, horizonDays int) map[string]json.RawMessage {
	urls := c.buildURLs(lat, lon, horizonDays)

	var mu sync.Mutex
	raw := make(map[string]json.RawMessage, len(urls))

	var wg sync.WaitGroup
	for _, endpoint := range c.Endpoints() {
		wg.Add(1)
		go func(endpoint, url string) {
			defer wg.Done()
			body, err := c.fetchEndpoint(ctx, endpoint, url)
			if err != nil {
				return
			}
			mu.Lock()
			raw[endpoint] = body
			mu.Unlock()
		}(endpoint, urls[endpoint])
	}
	wg.Wait()

	return raw
}

func (c *Client) fetchEndpoint(ctx context.Context, endpoint, url string) (json.RawMessage, error) {
	start := time.Now()
	attempt := 0
	var body json.RawMessage

	err := retry.Do(ctx, c.retry, func() error {
		attempt++
		b, err := c.getJSON(ctx, url)
		observability.IncFetchAttempt(endpoint, err == nil)
		if err != nil {
			c.log.WarnContext(ctx, "provider fetch attempt failed",
				"endpoint", endpoint, "attempt", attempt, "err", err)
			return err
		}
		body = b
		return nil
	})
	observability.ObserveFetch(endpoint, err == nil, time.Since(start).Seconds())
	if err != nil {
		c.log.ErrorContext(ctx, "provider fetch failed",
			"endpoint", endpoint, "attempts", attempt, "err", err)
		return nil, err
	}
	c.log.InfoContext(ctx, "provider fetch success", "endpoint", endpoint, "attempt", attempt)
	return body, nil
}

func (c *Client) getJSON(ctx context.Context, url string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("upstream status %d", res.StatusCode)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("invalid JSON body (%d bytes)", len(body))
	}
	return body, nil
}

// endpointPayload covers all three endpoint shapes; unknown fields are ignored
// and absent series stay nil.
type endpointPayload struct {
	Hourly hourlyBlock `json:"hourly"`
	Daily  dailyBlock  `json:"daily"`
}

type hourlyBlock struct {
	Time []string `json:"time"`

	Temperature2M            []*float64 `json:"temperature_2m"`
	ApparentTemperature      []*float64 `json:"apparent_temperature"`
	WindSpeed10M             []*float64 `json:"wind_speed_10m"`
	WindGusts10M             []*float64 `json:"wind_gusts_10m"`
	PrecipitationProbability []*float64 `json:"precipitation_probability"`
	Precipitation            []*float64 `json:"precipitation"`
	UVIndex                  []*float64 `json:"uv_index"`

	WaveHeight []*float64 `json:"wave_height"`
	WavePeriod []*float64 `json:"wave_period"`

	EuropeanAQI []*float64 `json:"european_aqi"`
	PM10        []*float64 `json:"pm10"`
	PM25        []*float64 `json:"pm2_5"`
}

type dailyBlock struct {
	Time    []string `json:"time"`
	Sunrise []string `json:"sunrise"`
	Sunset  []string `json:"sunset"`
}

// Normalize merges the present endpoint responses into rows sorted ascending
// by hour, plus daily sun rows from the weather endpoint's daily block.
// Fields sourced from a missing endpoint are nil in every row.
func (c *Client) Normalize(raw map[string]json.RawMessage, areaID string, fetchedAt time.Time) ([]forecast.HourlyRow, []forecast.DailySun) {
	payloads := make(map[string]*endpointPayload, len(raw))
	for endpoint, body := range raw {
		var p endpointPayload
		if err := json.Unmarshal(body, &p); err != nil {
			c.log.Warn("endpoint payload decode failed", "endpoint", endpoint, "err", err)
			continue
		}
		payloads[endpoint] = &p
	}

	hourSet := map[string]struct{}{}
	for _, p := range payloads {
		for _, t := range p.Hourly.Time {
			hourSet[t] = struct{}{}
		}
	}
	if len(hourSet) == 0 {
		return nil, nil
	}

	hours := make([]string, 0, len(hourSet))
	for h := range hourSet {
		hours = append(hours, h)
	}
	sort.Strings(hours)

	weather := indexed(payloads[EndpointWeather])
	marine := indexed(payloads[EndpointMarine])
	aq := indexed(payloads[EndpointAirQuality])

	rows := make([]forecast.HourlyRow, 0, len(hours))
	for _, ts := range hours {
		hourUTC, err := time.Parse(timeLayout, ts)
		if err != nil {
			continue
		}
		rows = append(rows, forecast.HourlyRow{
			AreaID:  areaID,
			HourUTC: hourUTC.UTC(),

			AirTempC:      weather.at(ts, func(h *hourlyBlock) []*float64 { return h.Temperature2M }),
			FeelslikeC:    weather.at(ts, func(h *hourlyBlock) []*float64 { return h.ApparentTemperature }),
			WindMS:        kmhToMS(weather.at(ts, func(h *hourlyBlock) []*float64 { return h.WindSpeed10M })),
			GustMS:        kmhToMS(weather.at(ts, func(h *hourlyBlock) []*float64 { return h.WindGusts10M })),
			PrecipProbPct: toInt(weather.at(ts, func(h *hourlyBlock) []*float64 { return h.PrecipitationProbability })),
			PrecipMM:      weather.at(ts, func(h *hourlyBlock) []*float64 { return h.Precipitation }),
			UVIndex:       weather.at(ts, func(h *hourlyBlock) []*float64 { return h.UVIndex }),

			WaveHeightM: marine.at(ts, func(h *hourlyBlock) []*float64 { return h.WaveHeight }),
			WavePeriodS: marine.at(ts, func(h *hourlyBlock) []*float64 { return h.WavePeriod }),

			EuAQI: toInt(aq.at(ts, func(h *hourlyBlock) []*float64 { return h.EuropeanAQI })),
			PM10:  aq.at(ts, func(h *hourlyBlock) []*float64 { return h.PM10 }),
			PM25:  aq.at(ts, func(h *hourlyBlock) []*float64 { return h.PM25 }),
		})
	}

	daily := c.normalizeDaily(payloads[EndpointWeather])

	c.log.Info("normalize complete", "row_count", len(rows), "daily_count", len(daily), "area_id", areaID)
	return rows, daily
}

func (c *Client) normalizeDaily(weather *endpointPayload) []forecast.DailySun {
	if weather == nil {
		return nil
	}
	d := weather.Daily
	out := make([]forecast.DailySun, 0, len(d.Time))
	for i, date := range d.Time {
		if i >= len(d.Sunrise) || i >= len(d.Sunset) {
			break
		}
		sunrise, err1 := time.Parse(timeLayout, d.Sunrise[i])
		sunset, err2 := time.Parse(timeLayout, d.Sunset[i])
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, forecast.DailySun{
			Date:       date,
			SunriseUTC: sunrise.UTC(),
			SunsetUTC:  sunset.UTC(),
		})
	}
	return out
}

// endpointIndex resolves a timestamp to the endpoint's parallel-array slot.
type endpointIndex struct {
	payload *endpointPayload
	idx     map[string]int
}

func indexed(p *endpointPayload) endpointIndex {
	e := endpointIndex{payload: p, idx: map[string]int{}}
	if p != nil {
		for i, t := range p.Hourly.Time {
			e.idx[t] = i
		}
	}
	return e
}

func (e endpointIndex) at(ts string, series func(*hourlyBlock) []*float64) *float64 {
	if e.payload == nil {
		return nil
	}
	i, ok := e.idx[ts]
	if !ok {
		return nil
	}
	values := series(&e.payload.Hourly)
	if i >= len(values) {
		return nil
	}
	return values[i]
}

func kmhToMS(v *float64) *float64 {
	if v == nil {
		return nil
	}
	ms := math.Round(*v/3.6*100) / 100
	return &ms
}

func toInt(v *float64) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
