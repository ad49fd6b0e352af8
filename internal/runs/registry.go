// Package runs tracks background enrichment runs: a per-run Redis hash for
// polling clients and failure-mode inference for the streaming UX.
package runs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/linkpellow/scrapeshifter/internal/database"
	"github.com/linkpellow/scrapeshifter/internal/models"
	"github.com/linkpellow/scrapeshifter/internal/pkg/ulid"
)

const (
	runKeyPrefix = "enrich:run:"

	// RunTTL bounds how long a finished (or abandoned) run stays pollable.
	RunTTL = time.Hour
)

// Registry stores run state in Redis. Every write refreshes the TTL, so a
// live run never expires under a polling client.
type Registry struct {
	redis  *database.Redis
	logger *slog.Logger
}

func NewRegistry(redis *database.Redis, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{redis: redis, logger: logger}
}

// Create registers a new run and returns its ID.
func (r *Registry) Create(ctx context.Context) (string, error) {
	runID := ulid.New()
	now := time.Now().UTC().Format(time.RFC3339)
	err := r.redis.HSetWithTTL(ctx, runKeyPrefix+runID, map[string]any{
		"status":     string(models.RunStatusRunning),
		"created_at": now,
		"updated_at": now,
	}, RunTTL)
	if err != nil {
		return "", err
	}
	return runID, nil
}

// SetProgress stores the latest progress event for polling clients. Only the
// newest event is kept; the full history lives in the stream, not here.
func (r *Registry) SetProgress(ctx context.Context, runID string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	r.update(ctx, runID, map[string]any{"progress": string(payload)})
}

// Finish marks a run done and stores its final result event.
func (r *Registry) Finish(ctx context.Context, runID string, result any) {
	payload, err := json.Marshal(result)
	if err != nil {
		r.Fail(ctx, runID, "marshal result: "+err.Error())
		return
	}
	r.update(ctx, runID, map[string]any{
		"status": string(models.RunStatusDone),
		"result": string(payload),
	})
}

// Fail marks a run errored.
func (r *Registry) Fail(ctx context.Context, runID, errMsg string) {
	r.update(ctx, runID, map[string]any{
		"status": string(models.RunStatusError),
		"error":  errMsg,
	})
}

// Get fetches a run record, or nil when expired or never created.
func (r *Registry) Get(ctx context.Context, runID string) (*models.RunRecord, error) {
	fields, err := r.redis.HGetAll(ctx, runKeyPrefix+runID)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	rec := &models.RunRecord{
		RunID:    runID,
		Status:   models.RunStatus(fields["status"]),
		Progress: fields["progress"],
		Result:   fields["result"],
		Error:    fields["error"],
	}
	if t, err := time.Parse(time.RFC3339, fields["created_at"]); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, fields["updated_at"]); err == nil {
		rec.UpdatedAt = t
	}
	return rec, nil
}

func (r *Registry) update(ctx context.Context, runID string, fields map[string]any) {
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339)
	if err := r.redis.HSetWithTTL(ctx, runKeyPrefix+runID, fields, RunTTL); err != nil {
		r.logger.Warn("run state write failed", slog.String("run_id", runID), slog.String("error", err.Error()))
	}
}
