package ingest

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// TriggerPayload is the scheduler message. Both fields are optional and
// default from the runtime config.
type TriggerPayload struct {
	AreaID      string `json:"area_id"`
	HorizonDays int    `json:"horizon_days"`
}

// pushEnvelope is the Pub/Sub-style push wrapper: the payload arrives
// base64-encoded under message.data.
type pushEnvelope struct {
	Message *struct {
		Data string `json:"data"`
	} `json:"message"`
}

// DecodeTrigger accepts either the raw payload or a push envelope.
func DecodeTrigger(body []byte) (TriggerPayload, error) {
	var env pushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return TriggerPayload{}, err
	}
	if env.Message != nil {
		decoded, err := base64.StdEncoding.DecodeString(env.Message.Data)
		if err != nil {
			return TriggerPayload{}, err
		}
		var p TriggerPayload
		if err := json.Unmarshal(decoded, &p); err != nil {
			return TriggerPayload{}, err
		}
		return p, nil
	}
	var p TriggerPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return TriggerPayload{}, err
	}
	return p, nil
}

// TriggerHandler runs the pipeline synchronously for each POST. Delivery
// succeeds with 200 even when the run itself failed; the caller reads the
// status from the body.
func TriggerHandler(o *Orchestrator, defaultAreaID string, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		payload, err := DecodeTrigger(body)
		if err != nil {
			log.ErrorContext(r.Context(), "invalid trigger message", "error", err)
			http.Error(w, "invalid trigger payload", http.StatusBadRequest)
			return
		}
		if payload.AreaID == "" {
			payload.AreaID = defaultAreaID
		}

		result := o.Run(r.Context(), payload.AreaID, payload.HorizonDays)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(result)
	}
}
