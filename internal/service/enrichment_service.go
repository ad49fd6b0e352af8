// Package service provides business logic implementations.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/linkpellow/scrapeshifter/internal/chimera"
	"github.com/linkpellow/scrapeshifter/internal/config"
	"github.com/linkpellow/scrapeshifter/internal/database"
	"github.com/linkpellow/scrapeshifter/internal/models"
	"github.com/linkpellow/scrapeshifter/internal/pipeline"
	"github.com/linkpellow/scrapeshifter/internal/pipeline/stations"
	"github.com/linkpellow/scrapeshifter/internal/runs"
)

// QueueStatus is the admin view of the queueing system.
type QueueStatus struct {
	Queue        string `json:"queue"`
	QueueDepth   int64  `json:"queue_depth"`
	FailedQueue  string `json:"failed_queue"`
	FailedDepth  int64  `json:"failed_depth"`
	MissionDepth int64  `json:"mission_depth"`
	Paused       bool   `json:"paused"`
	PauseReason  string `json:"pause_reason,omitempty"`
}

// EnrichmentService is the control-plane surface over the pipeline: runs,
// queues, the DLQ, and the pause switch.
type EnrichmentService interface {
	// StartRun kicks off a background run and returns its ID for polling.
	StartRun(ctx context.Context, lead models.Lead) (string, error)
	// GetRun returns run state, or nil when unknown or expired.
	GetRun(ctx context.Context, runID string) (*models.RunRecord, error)
	// StreamRun runs the pipeline synchronously, writing NDJSON progress
	// events to w, ending with a final summary event.
	StreamRun(ctx context.Context, lead models.Lead, w io.Writer) error

	// EnqueueLead pushes a lead onto the worker queue.
	EnqueueLead(ctx context.Context, lead models.Lead) error
	// QueueStatus reports queue depths and the pause flag.
	QueueStatus(ctx context.Context) (*QueueStatus, error)

	// ListDLQ returns up to limit dead-lettered lead payloads, newest first.
	ListDLQ(ctx context.Context, limit int64) ([]json.RawMessage, error)
	// RetryDLQ moves up to max dead-lettered leads back onto the queue.
	RetryDLQ(ctx context.Context, max int64) (int64, error)
	// RetryDLQItem re-queues the single DLQ entry at index.
	RetryDLQItem(ctx context.Context, index int64) error

	// Pause halts new deep-search missions until Resume.
	Pause(ctx context.Context, reason string) error
	Resume(ctx context.Context) error
	// Paused reports the pause flag and its reason.
	Paused(ctx context.Context) (bool, string, error)
}

type enrichmentService struct {
	redis    *database.Redis
	engine   *pipeline.Engine
	bridge   *chimera.Bridge
	registry *runs.Registry
	cfg      config.WorkerConfig
	logger   *slog.Logger
}

// NewEnrichmentService creates the service.
func NewEnrichmentService(
	redis *database.Redis,
	engine *pipeline.Engine,
	bridge *chimera.Bridge,
	registry *runs.Registry,
	cfg config.WorkerConfig,
	logger *slog.Logger,
) EnrichmentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &enrichmentService{
		redis:    redis,
		engine:   engine,
		bridge:   bridge,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
}

func (s *enrichmentService) StartRun(ctx context.Context, lead models.Lead) (string, error) {
	if len(lead) == 0 {
		return "", errors.New("empty lead")
	}
	runID, err := s.registry.Create(ctx)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}

	go s.runInBackground(runID, lead)
	return runID, nil
}

// runInBackground executes one run detached from the request context. Run
// lifetime is bounded by the engine's station timeouts, not the HTTP request.
func (s *enrichmentService) runInBackground(runID string, lead models.Lead) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	var steps []pipeline.StepRecord
	sink := &registrySink{ctx: ctx, registry: s.registry, runID: runID}

	final, err := s.engine.Run(ctx, lead, pipeline.RunOptions{
		Steps:    &steps,
		Progress: sink,
	})
	if err != nil {
		s.registry.Fail(ctx, runID, err.Error())
		return
	}

	saved, _ := final["saved"].(bool)
	cost, _ := final[pipeline.KeyPipelineCost].(float64)
	s.registry.Finish(ctx, runID, runs.FinalEvent(saved, cost, steps, final))
}

func (s *enrichmentService) GetRun(ctx context.Context, runID string) (*models.RunRecord, error) {
	return s.registry.Get(ctx, runID)
}

func (s *enrichmentService) StreamRun(ctx context.Context, lead models.Lead, w io.Writer) error {
	out := runs.NewNDJSONWriter(w)
	sink := pipeline.NewChanSink(256)

	var steps []pipeline.StepRecord
	logBuf := pipeline.NewLogBuffer(200)

	done := make(chan struct{})
	var final models.Lead
	var runErr error
	go func() {
		defer close(done)
		final, runErr = s.engine.Run(ctx, lead, pipeline.RunOptions{
			Steps:     &steps,
			LogBuffer: logBuf,
			Progress:  sink,
		})
	}()

	for {
		select {
		case ev := <-sink.C:
			if err := out.Write(ev); err != nil {
				// Client went away; let the run finish for its side effects.
				<-done
				return err
			}
		case <-done:
			// Drain anything emitted between the last read and completion.
			for {
				select {
				case ev := <-sink.C:
					if err := out.Write(ev); err != nil {
						return err
					}
				default:
					if runErr != nil {
						return runErr
					}
					saved, _ := final["saved"].(bool)
					cost, _ := final[pipeline.KeyPipelineCost].(float64)
					return out.Write(runs.FinalEvent(saved, cost, steps, final))
				}
			}
		}
	}
}

func (s *enrichmentService) EnqueueLead(ctx context.Context, lead models.Lead) error {
	payload, err := json.Marshal(lead)
	if err != nil {
		return fmt.Errorf("marshal lead: %w", err)
	}
	return s.redis.LPush(ctx, s.cfg.Queue, string(payload))
}

func (s *enrichmentService) QueueStatus(ctx context.Context) (*QueueStatus, error) {
	qlen, err := s.redis.LLen(ctx, s.cfg.Queue)
	if err != nil {
		return nil, err
	}
	flen, err := s.redis.LLen(ctx, s.cfg.FailedQueue)
	if err != nil {
		return nil, err
	}
	mlen, err := s.bridge.QueueDepth(ctx)
	if err != nil {
		return nil, err
	}
	paused, reason, err := s.Paused(ctx)
	if err != nil {
		return nil, err
	}
	return &QueueStatus{
		Queue:        s.cfg.Queue,
		QueueDepth:   qlen,
		FailedQueue:  s.cfg.FailedQueue,
		FailedDepth:  flen,
		MissionDepth: mlen,
		Paused:       paused,
		PauseReason:  reason,
	}, nil
}

func (s *enrichmentService) ListDLQ(ctx context.Context, limit int64) ([]json.RawMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	items, err := s.redis.LRange(ctx, s.cfg.FailedQueue, 0, limit-1)
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		if json.Valid([]byte(item)) {
			out = append(out, json.RawMessage(item))
		} else {
			quoted, _ := json.Marshal(item)
			out = append(out, quoted)
		}
	}
	return out, nil
}

func (s *enrichmentService) RetryDLQ(ctx context.Context, max int64) (int64, error) {
	if max <= 0 || max > 1000 {
		max = 100
	}
	var moved int64
	for moved < max {
		payload, ok, err := s.redis.RPop(ctx, s.cfg.FailedQueue)
		if err != nil {
			return moved, err
		}
		if !ok {
			break
		}
		if err := s.redis.LPush(ctx, s.cfg.Queue, payload); err != nil {
			// Put it back so nothing is lost.
			_ = s.redis.LPush(ctx, s.cfg.FailedQueue, payload)
			return moved, err
		}
		moved++
	}
	s.logger.Info("dlq retry", slog.Int64("moved", moved))
	return moved, nil
}

// RetryDLQItem removes exactly one entry by index using the LSET-tombstone
// trick: overwrite the slot, LREM the tombstone, requeue the original.
func (s *enrichmentService) RetryDLQItem(ctx context.Context, index int64) error {
	items, err := s.redis.LRange(ctx, s.cfg.FailedQueue, index, index)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("no DLQ entry at index %d", index)
	}
	payload := items[0]

	const tombstone = "__RETRYING__"
	if err := s.redis.LSet(ctx, s.cfg.FailedQueue, index, tombstone); err != nil {
		return err
	}
	if err := s.redis.LRem(ctx, s.cfg.FailedQueue, 1, tombstone); err != nil {
		return err
	}
	return s.redis.LPush(ctx, s.cfg.Queue, payload)
}

func (s *enrichmentService) Pause(ctx context.Context, reason string) error {
	if reason == "" {
		reason = "manual"
	}
	return s.redis.Set(ctx, stations.SystemPausedKey, reason, 0)
}

func (s *enrichmentService) Resume(ctx context.Context) error {
	return s.redis.Delete(ctx, stations.SystemPausedKey)
}

func (s *enrichmentService) Paused(ctx context.Context) (bool, string, error) {
	v, err := s.redis.Get(ctx, stations.SystemPausedKey)
	if err != nil {
		return false, "", err
	}
	return v != "", v, nil
}

// registrySink forwards progress events into the run registry so polling
// clients see the newest event.
type registrySink struct {
	ctx      context.Context
	registry *runs.Registry
	runID    string
}

func (s *registrySink) Emit(ev pipeline.ProgressEvent) {
	s.registry.SetProgress(s.ctx, s.runID, ev)
}
