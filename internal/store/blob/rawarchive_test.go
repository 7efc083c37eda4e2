package blob

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteRaw_PathAndEnvelope(t *testing.T) {
	dir := t.TempDir()
	archive := NewRawArchive(NewFS(dir), "open_meteo", slog.New(slog.NewTextHandler(io.Discard, nil)))

	raw := map[string]json.RawMessage{
		"weather": json.RawMessage(`{"hourly":{"time":[]}}`),
	}
	fetchedAt := time.Date(2026, 2, 25, 14, 3, 0, 0, time.UTC)

	if err := archive.WriteRaw(context.Background(), raw, "tel_aviv_coast", fetchedAt, "run_20260225_140300_ab12cd"); err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}

	want := filepath.Join(dir, "raw", "openmeteo", "weather",
		"area_id=tel_aviv_coast", "2026", "02", "25", "14", "run_20260225_140300_ab12cd.json")
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("expected blob at %s: %v", want, err)
	}

	var env struct {
		Meta struct {
			FetchedAtUTC  string `json:"fetched_at_utc"`
			ProviderName  string `json:"provider_name"`
			Endpoint      string `json:"endpoint"`
			SchemaVersion string `json:"schema_version"`
			IngestRunID   string `json:"ingest_run_id"`
			PayloadXXH64  string `json:"payload_xxh64"`
		} `json:"_meta"`
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("envelope decode: %v", err)
	}
	if env.Meta.SchemaVersion != "raw_v1" {
		t.Fatalf("schema_version = %q", env.Meta.SchemaVersion)
	}
	if env.Meta.ProviderName != "open_meteo" || env.Meta.Endpoint != "weather" {
		t.Fatalf("meta mismatch: %+v", env.Meta)
	}
	if env.Meta.IngestRunID != "run_20260225_140300_ab12cd" {
		t.Fatalf("run id mismatch: %q", env.Meta.IngestRunID)
	}
	if len(env.Meta.PayloadXXH64) != 16 {
		t.Fatalf("payload_xxh64 should be 16 hex chars, got %q", env.Meta.PayloadXXH64)
	}
	if string(env.Response) != `{"hourly":{"time":[]}}` {
		t.Fatalf("response body altered: %s", env.Response)
	}
}

func TestWriteRaw_OneObjectPerEndpoint(t *testing.T) {
	dir := t.TempDir()
	archive := NewRawArchive(NewFS(dir), "open_meteo", slog.New(slog.NewTextHandler(io.Discard, nil)))

	raw := map[string]json.RawMessage{
		"weather":     json.RawMessage(`{}`),
		"marine":      json.RawMessage(`{}`),
		"air_quality": json.RawMessage(`{}`),
	}
	if err := archive.WriteRaw(context.Background(), raw, "tel_aviv_coast", time.Now().UTC(), "run_x"); err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}

	count := 0
	_ = filepath.Walk(dir, func(_ string, info os.FileInfo, _ error) error {
		if info != nil && !info.IsDir() {
			count++
		}
		return nil
	})
	if count != 3 {
		t.Fatalf("expected 3 archived objects, got %d", count)
	}
}
