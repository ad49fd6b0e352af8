// Package chimera bridges the pipeline to the scraping core over Redis.
// Missions go out on a list queue; each mission gets a private reply list and
// a telemetry list the core appends progress lines to.
package chimera

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/linkpellow/scrapeshifter/internal/database"
	"github.com/linkpellow/scrapeshifter/internal/models"
)

const (
	resultsPrefix   = "chimera:results:"
	telemetryPrefix = "chimera:telemetry:"
	missionPrefix   = "mission:"

	missionStatusTTL = 24 * time.Hour
	telemetryPoll    = time.Second
)

// ErrMissionTimeout means the core never replied within the station timeout.
var ErrMissionTimeout = errors.New("chimera mission timed out")

// TelemetryFunc receives progress lines the core emits while working a
// mission. Called from the awaiting goroutine; must not block.
type TelemetryFunc func(line string)

// Bridge dispatches missions and awaits replies.
type Bridge struct {
	redis   *database.Redis
	queue   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewBridge creates a bridge for the given mission queue.
func NewBridge(redis *database.Redis, queue string, timeout time.Duration, logger *slog.Logger) *Bridge {
	if queue == "" {
		queue = "chimera:missions"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{redis: redis, queue: queue, timeout: timeout, logger: logger}
}

// Timeout returns the reply wait the bridge was configured with.
func (b *Bridge) Timeout() time.Duration { return b.timeout }

// NewMission builds a deep-search mission for a lead and provider. The lead
// payload carries target_provider so older cores that only read the lead
// still route correctly.
func (b *Bridge) NewMission(lead models.Lead, provider, carrier string, blueprint map[string]any) *models.Mission {
	leadCopy := lead.Clone()
	leadCopy["target_provider"] = provider
	return &models.Mission{
		MissionID:      uuid.NewString(),
		Lead:           leadCopy,
		Instruction:    "deep_search",
		LinkedInURL:    lead.LinkedInURL(),
		Target:         "linkedin_profile",
		TargetProvider: provider,
		Carrier:        carrier,
		Blueprint:      blueprint,
	}
}

// Dispatch pushes a mission onto the queue and records a status hash the
// admin surface can inspect for a day.
func (b *Bridge) Dispatch(ctx context.Context, m *models.Mission) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal mission: %w", err)
	}
	if err := b.redis.LPush(ctx, b.queue, string(payload)); err != nil {
		return fmt.Errorf("queue mission: %w", err)
	}
	if err := b.redis.HSetWithTTL(ctx, missionPrefix+m.MissionID, map[string]any{
		"status":    "queued",
		"provider":  m.TargetProvider,
		"queued_at": time.Now().UTC().Format(time.RFC3339),
	}, missionStatusTTL); err != nil {
		b.logger.Warn("mission status write failed", slog.String("mission_id", m.MissionID), slog.String("error", err.Error()))
	}
	b.logger.Info("chimera mission queued",
		slog.String("mission_id", m.MissionID),
		slog.String("provider", m.TargetProvider),
	)
	return nil
}

// Await blocks until the core replies, the configured timeout passes, or ctx
// is cancelled. While waiting it tails the mission's telemetry list and feeds
// new lines to onTelemetry. The reply and telemetry keys are cleaned up on
// the way out. A status=failed reply is returned as a result, not an error.
func (b *Bridge) Await(ctx context.Context, missionID string, onTelemetry TelemetryFunc) (*models.MissionResult, time.Duration, error) {
	resultsKey := resultsPrefix + missionID
	telemetryKey := telemetryPrefix + missionID
	start := time.Now()
	deadline := start.Add(b.timeout)
	var telemetrySeen int64

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = b.redis.Delete(cleanupCtx, resultsKey)
		_ = b.redis.Delete(cleanupCtx, telemetryKey)
	}()

	for {
		if err := ctx.Err(); err != nil {
			return nil, time.Since(start), err
		}
		if time.Now().After(deadline) {
			b.setStatus(missionID, "timeout")
			return nil, time.Since(start), fmt.Errorf("%w after %s", ErrMissionTimeout, b.timeout)
		}

		// Short BRPOP so telemetry stays live while we wait.
		payload, ok, err := b.redis.BRPop(ctx, telemetryPoll, resultsKey)
		if err != nil {
			return nil, time.Since(start), fmt.Errorf("await mission reply: %w", err)
		}
		if !ok {
			telemetrySeen = b.drainTelemetry(ctx, telemetryKey, telemetrySeen, onTelemetry)
			continue
		}

		telemetrySeen = b.drainTelemetry(ctx, telemetryKey, telemetrySeen, onTelemetry)
		elapsed := time.Since(start)

		result, err := models.ParseMissionResult([]byte(payload))
		if err != nil {
			b.setStatus(missionID, "bad_reply")
			return nil, elapsed, fmt.Errorf("parse mission reply: %w", err)
		}
		if result.MissionID == "" {
			result.MissionID = missionID
		}
		if result.Failed() {
			b.setStatus(missionID, "failed")
		} else {
			b.setStatus(missionID, "done")
		}
		return result, elapsed, nil
	}
}

// Status reads the mission status hash, for the admin surface.
func (b *Bridge) Status(ctx context.Context, missionID string) (map[string]string, error) {
	return b.redis.HGetAll(ctx, missionPrefix+missionID)
}

// QueueDepth returns the number of missions waiting for the core.
func (b *Bridge) QueueDepth(ctx context.Context) (int64, error) {
	return b.redis.LLen(ctx, b.queue)
}

func (b *Bridge) drainTelemetry(ctx context.Context, key string, seen int64, onTelemetry TelemetryFunc) int64 {
	if onTelemetry == nil {
		return seen
	}
	lines, err := b.redis.LRange(ctx, key, seen, -1)
	if err != nil || len(lines) == 0 {
		return seen
	}
	for _, line := range lines {
		onTelemetry(line)
	}
	return seen + int64(len(lines))
}

func (b *Bridge) setStatus(missionID, status string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.redis.HSet(ctx, missionPrefix+missionID, map[string]any{
		"status":   status,
		"ended_at": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		b.logger.Debug("mission status update failed", slog.String("mission_id", missionID))
	}
}
