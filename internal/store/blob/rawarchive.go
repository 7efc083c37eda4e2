package blob

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/gonow-app/gonow/internal/core/observability"
)

const rawSchemaVersion = "raw_v1"

type rawMeta struct {
	FetchedAtUTC  string `json:"fetched_at_utc"`
	ProviderName  string `json:"provider_name"`
	Endpoint      string `json:"endpoint"`
	SchemaVersion string `json:"schema_version"`
	IngestRunID   string `json:"ingest_run_id"`
	PayloadXXH64  string `json:"payload_xxh64"`
}

type rawEnvelope struct {
	Meta     rawMeta         `json:"_meta"`
	Response json.RawMessage `json:"response"`
}

// RawArchive wraps a Store and writes one metadata-enveloped object per
// fetched endpoint under the content-addressed raw path.
type RawArchive struct {
	store    Store
	provider string
	log      *slog.Logger
}

func NewRawArchive(store Store, provider string, log *slog.Logger) *RawArchive {
	if log == nil {
		log = slog.Default()
	}
	return &RawArchive{store: store, provider: provider, log: log}
}

// WriteRaw archives every present endpoint body. The first write error
// aborts: the orchestrator treats a partial archive as a failed run.
func (a *RawArchive) WriteRaw(ctx context.Context, raw map[string]json.RawMessage, areaID string, fetchedAt time.Time, runID string) error {
	start := time.Now()
	var err error
	defer func() {
		observability.ObserveSinkOp("raw_archive", "write", err, time.Since(start).Seconds())
	}()

	for endpoint, body := range raw {
		path := rawPath(endpoint, areaID, fetchedAt, runID)
		env := rawEnvelope{
			Meta: rawMeta{
				FetchedAtUTC:  fetchedAt.UTC().Format(time.RFC3339),
				ProviderName:  a.provider,
				Endpoint:      endpoint,
				SchemaVersion: rawSchemaVersion,
				IngestRunID:   runID,
				PayloadXXH64:  fmt.Sprintf("%016x", xxhash.Sum64(body)),
			},
			Response: body,
		}
		var payload []byte
		payload, err = json.Marshal(env)
		if err != nil {
			return fmt.Errorf("raw envelope %s: %w", endpoint, err)
		}
		if err = a.store.Write(ctx, path, payload, "application/json"); err != nil {
			return fmt.Errorf("raw archive %s: %w", endpoint, err)
		}
		a.log.InfoContext(ctx, "storage write success", "layer", "raw_archive", "path", path)
	}
	return nil
}

func rawPath(endpoint, areaID string, fetchedAt time.Time, runID string) string {
	return fmt.Sprintf("raw/openmeteo/%s/area_id=%s/%s/%s.json",
		endpoint, areaID, fetchedAt.UTC().Format("2006/01/02/15"), runID)
}
