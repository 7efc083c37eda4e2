// Package serving maintains the per-area forecast document in Redis. The
// ingest worker overwrites the document whole; the read API only gets it.
package serving

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gonow-app/gonow/internal/core/observability"
	"github.com/gonow-app/gonow/internal/forecast"
)

// ErrNotFound means no document has been written for the area yet.
var ErrNotFound = errors.New("serving: document not found")

const keyPrefix = "forecast:"

type Store struct {
	rdb *redis.Client
	log *slog.Logger
}

func New(ctx context.Context, addr string, log *slog.Logger) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("serving ping %s: %w", addr, err)
	}
	return NewWithClient(rdb, log), nil
}

func NewWithClient(rdb *redis.Client, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{rdb: rdb, log: log}
}

func (s *Store) Close() error { return s.rdb.Close() }

func docKey(areaID string) string { return keyPrefix + areaID }

// Update replaces the area document in one SET. An empty hours slice is
// refused so a failed run can never blank out the last good document.
func (s *Store) Update(ctx context.Context, doc forecast.Document) error {
	start := time.Now()
	var err error
	defer func() {
		observability.ObserveSinkOp("serving", "update", err, time.Since(start).Seconds())
	}()

	if len(doc.Hours) == 0 {
		s.log.WarnContext(ctx, "serving update skipped, empty hours", "area_id", doc.AreaID)
		return nil
	}

	var payload []byte
	payload, err = json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("serving marshal %s: %w", doc.AreaID, err)
	}
	if err = s.rdb.Set(ctx, docKey(doc.AreaID), payload, 0).Err(); err != nil {
		err = fmt.Errorf("serving set %s: %w", doc.AreaID, err)
		return err
	}
	s.log.InfoContext(ctx, "storage write success", "layer", "serving", "area_id", doc.AreaID, "hour_count", len(doc.Hours))
	return nil
}

// Get returns the current document for the area, or ErrNotFound.
func (s *Store) Get(ctx context.Context, areaID string) (forecast.Document, error) {
	start := time.Now()
	data, err := s.rdb.Get(ctx, docKey(areaID)).Bytes()
	observability.ObserveSinkOp("serving", "get", err, time.Since(start).Seconds())
	if errors.Is(err, redis.Nil) {
		return forecast.Document{}, ErrNotFound
	}
	if err != nil {
		return forecast.Document{}, fmt.Errorf("serving get %s: %w", areaID, err)
	}
	var doc forecast.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return forecast.Document{}, fmt.Errorf("serving decode %s: %w", areaID, err)
	}
	return doc, nil
}
