// Package api serves the public read endpoints: raw forecast hours, scored
// hours, and the service health probe. It only reads the serving document;
// the ingest worker owns all writes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/gonow-app/gonow/internal/forecast"
	"github.com/gonow-app/gonow/internal/logger"
	"github.com/gonow-app/gonow/internal/scoring"
	"github.com/gonow-app/gonow/internal/store/serving"
)

const apiVersion = "1.0.0"

// DocGetter is the read capability the API needs from the serving store.
type DocGetter interface {
	Get(ctx context.Context, areaID string) (forecast.Document, error)
}

type Config struct {
	AreaID             string
	FreshnessThreshold time.Duration
	UnhealthyThreshold time.Duration
	DocCacheTTL        time.Duration
}

type Handler struct {
	docs       DocGetter
	cache      *expirable.LRU[string, forecast.Document]
	thresholds scoring.Thresholds
	cfg        Config
	log        *slog.Logger
	now        func() time.Time
}

func NewHandler(docs DocGetter, cfg Config, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		docs:       docs,
		cache:      expirable.NewLRU[string, forecast.Document](8, nil, cfg.DocCacheTTL),
		thresholds: scoring.Balanced(),
		cfg:        cfg,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/v1/public", func(r chi.Router) {
		r.Get("/forecast", h.getForecast)
		r.Get("/scores", h.getScores)
		r.Get("/health", h.getHealth)
	})
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error     errorDetail `json:"error"`
	RequestID string      `json:"request_id"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	reqID := logger.RequestIDFromContext(r.Context())
	if reqID == "" {
		reqID = logger.NewID()
	}
	writeJSON(w, status, errorResponse{
		Error:     errorDetail{Code: code, Message: message},
		RequestID: reqID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// getDoc serves the document through the short-lived cache. Misses and
// errors are never cached.
func (h *Handler) getDoc(ctx context.Context, areaID string) (forecast.Document, error) {
	if doc, ok := h.cache.Get(areaID); ok {
		return doc, nil
	}
	doc, err := h.docs.Get(ctx, areaID)
	if err != nil {
		return forecast.Document{}, err
	}
	h.cache.Add(areaID, doc)
	return doc, nil
}

// resolveArea validates the query parameters shared by forecast and scores.
func (h *Handler) resolveArea(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	areaID := r.URL.Query().Get("area_id")
	if areaID == "" {
		h.writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "area_id is required")
		return "", 0, false
	}
	if areaID != h.cfg.AreaID {
		h.writeError(w, r, http.StatusNotFound, "NOT_FOUND", "Unknown area_id: "+areaID)
		return "", 0, false
	}
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 7 {
			h.writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "days must be between 1 and 7")
			return "", 0, false
		}
		days = n
	}
	return areaID, days, true
}

func (h *Handler) freshness(updatedAt time.Time) (int, string) {
	age := int(h.now().Sub(updatedAt).Minutes())
	if time.Duration(age)*time.Minute < h.cfg.FreshnessThreshold {
		return age, "fresh"
	}
	return age, "stale"
}

type forecastResponse struct {
	AreaID             string                  `json:"area_id"`
	UpdatedAtUTC       time.Time               `json:"updated_at_utc"`
	Provider           string                  `json:"provider"`
	Freshness          string                  `json:"freshness"`
	ForecastAgeMinutes int                     `json:"forecast_age_minutes"`
	HorizonDays        int                     `json:"horizon_days"`
	Hours              []forecast.DocumentHour `json:"hours"`
}

func (h *Handler) getForecast(w http.ResponseWriter, r *http.Request) {
	areaID, days, ok := h.resolveArea(w, r)
	if !ok {
		return
	}

	doc, err := h.getDoc(r.Context(), areaID)
	if errors.Is(err, serving.ErrNotFound) {
		h.writeError(w, r, http.StatusNotFound, "NOT_FOUND", "No forecast data for area_id: "+areaID)
		return
	}
	if err != nil {
		h.log.ErrorContext(r.Context(), "serving document read failed", "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "INTERNAL", "forecast store unavailable")
		return
	}

	age, fresh := h.freshness(doc.UpdatedAtUTC)
	writeJSON(w, http.StatusOK, forecastResponse{
		AreaID:             areaID,
		UpdatedAtUTC:       doc.UpdatedAtUTC,
		Provider:           doc.Provider,
		Freshness:          fresh,
		ForecastAgeMinutes: age,
		HorizonDays:        doc.HorizonDays,
		Hours:              h.upcomingHours(doc, days),
	})
}

// upcomingHours keeps hours at or after now, capped at days*24.
func (h *Handler) upcomingHours(doc forecast.Document, days int) []forecast.DocumentHour {
	now := h.now()
	max := days * 24
	out := make([]forecast.DocumentHour, 0, max)
	for _, hour := range doc.Hours {
		if hour.HourUTC.Before(now) {
			continue
		}
		if len(out) >= max {
			break
		}
		out = append(out, hour)
	}
	return out
}

type scoredHour struct {
	forecast.DocumentHour
	Scores map[string]scoring.ModeScore `json:"scores"`
}

type scoresResponse struct {
	AreaID             string              `json:"area_id"`
	UpdatedAtUTC       time.Time           `json:"updated_at_utc"`
	Freshness          string              `json:"freshness"`
	ForecastAgeMinutes int                 `json:"forecast_age_minutes"`
	ScoringVersion     string              `json:"scoring_version"`
	HorizonDays        int                 `json:"horizon_days"`
	Hours              []scoredHour        `json:"hours"`
	Daily              []forecast.DailySun `json:"daily"`
}

func (h *Handler) getScores(w http.ResponseWriter, r *http.Request) {
	areaID, days, ok := h.resolveArea(w, r)
	if !ok {
		return
	}

	doc, err := h.getDoc(r.Context(), areaID)
	if errors.Is(err, serving.ErrNotFound) {
		h.writeError(w, r, http.StatusNotFound, "NOT_FOUND", "No forecast data for area_id: "+areaID)
		return
	}
	if err != nil {
		h.log.ErrorContext(r.Context(), "serving document read failed", "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "INTERNAL", "forecast store unavailable")
		return
	}

	// date (YYYY-MM-DD) -> sunset. A date with no daily row simply has no
	// sunset gate for its hours.
	sunsets := make(map[string]time.Time, len(doc.Daily))
	for _, d := range doc.Daily {
		sunsets[d.Date] = d.SunsetUTC
	}

	hours := h.upcomingHours(doc, days)
	scored := make([]scoredHour, 0, len(hours))
	for _, hour := range hours {
		input := scoring.HourInput{
			HourUTC:       hour.HourUTC,
			WaveHeightM:   hour.WaveHeightM,
			FeelslikeC:    hour.FeelslikeC,
			GustMS:        hour.GustMS,
			PrecipProbPct: hour.PrecipProbPct,
			PrecipMM:      hour.PrecipMM,
			UVIndex:       hour.UVIndex,
			EuAQI:         hour.EuAQI,
		}
		if sunset, ok := sunsets[hour.HourUTC.Format("2006-01-02")]; ok {
			input.SunsetUTC = &sunset
		}
		out := scoring.ScoreHour(input, h.thresholds)
		scored = append(scored, scoredHour{
			DocumentHour: hour,
			Scores: map[string]scoring.ModeScore{
				"swim_solo": out.SwimSolo,
				"swim_dog":  out.SwimDog,
				"run_solo":  out.RunSolo,
				"run_dog":   out.RunDog,
			},
		})
	}

	age, fresh := h.freshness(doc.UpdatedAtUTC)
	writeJSON(w, http.StatusOK, scoresResponse{
		AreaID:             areaID,
		UpdatedAtUTC:       doc.UpdatedAtUTC,
		Freshness:          fresh,
		ForecastAgeMinutes: age,
		ScoringVersion:     scoring.ScoringVersion,
		HorizonDays:        doc.HorizonDays,
		Hours:              scored,
		Daily:              doc.Daily,
	})
}

type healthDetail struct {
	AreaID       string `json:"area_id"`
	UpdatedAtUTC string `json:"updated_at_utc"`
	AgeMinutes   int    `json:"age_minutes"`
	Freshness    string `json:"freshness"`
	IngestStatus string `json:"ingest_status"`
	HoursCount   int    `json:"hours_count"`
}

type healthResponse struct {
	Status         string       `json:"status"`
	Version        string       `json:"version"`
	ScoringVersion string       `json:"scoring_version"`
	Forecast       healthDetail `json:"forecast"`
	TimestampUTC   string       `json:"timestamp_utc"`
}

func (h *Handler) getHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Version:        apiVersion,
		ScoringVersion: scoring.ScoringVersion,
		TimestampUTC:   h.now().Format(time.RFC3339),
	}

	doc, err := h.getDoc(r.Context(), h.cfg.AreaID)
	if err != nil {
		resp.Status = "unhealthy"
		resp.Forecast = healthDetail{
			AreaID:       h.cfg.AreaID,
			AgeMinutes:   -1,
			Freshness:    "stale",
			IngestStatus: forecast.StatusFailed,
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	age, fresh := h.freshness(doc.UpdatedAtUTC)
	switch {
	case time.Duration(age)*time.Minute < h.cfg.FreshnessThreshold && doc.IngestStatus == forecast.StatusSuccess:
		resp.Status = "healthy"
	case time.Duration(age)*time.Minute >= h.cfg.UnhealthyThreshold:
		resp.Status = "unhealthy"
	default:
		resp.Status = "degraded"
	}
	resp.Forecast = healthDetail{
		AreaID:       h.cfg.AreaID,
		UpdatedAtUTC: doc.UpdatedAtUTC.Format(time.RFC3339),
		AgeMinutes:   age,
		Freshness:    fresh,
		IngestStatus: doc.IngestStatus,
		HoursCount:   len(doc.Hours),
	}
	writeJSON(w, http.StatusOK, resp)
}
