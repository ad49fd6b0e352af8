// Package worker runs the lead queue loop: pop, enrich, retry with backoff,
// dead-letter on terminal failure.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/linkpellow/scrapeshifter/internal/config"
	"github.com/linkpellow/scrapeshifter/internal/database"
	"github.com/linkpellow/scrapeshifter/internal/models"
	"github.com/linkpellow/scrapeshifter/internal/pipeline"
)

const statusInterval = time.Minute

// Worker consumes leads_to_enrich and drives the pipeline engine. One worker
// processes one lead at a time; parallelism comes from running more replicas,
// which BRPOP distributes across naturally.
type Worker struct {
	redis  *database.Redis
	engine *pipeline.Engine
	cfg    config.WorkerConfig
	logger *slog.Logger

	// retryCount tracks per-lead attempts across requeues. Keyed by the
	// lead's dedup identity, scoped to this process: a worker restart resets
	// counts, which only delays DLQ routing, never loses a lead.
	retryCount map[string]int

	sleep func(ctx context.Context, d time.Duration)
}

func New(redis *database.Redis, engine *pipeline.Engine, cfg config.WorkerConfig, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		redis:      redis,
		engine:     engine,
		cfg:        cfg,
		logger:     logger,
		retryCount: make(map[string]int),
		sleep:      sleepCtx,
	}
}

// Run processes leads until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("queue worker starting",
		slog.String("queue", w.cfg.Queue),
		slog.String("failed_queue", w.cfg.FailedQueue),
		slog.Int("max_retries", w.cfg.MaxRetries),
		slog.Float64("budget", w.engine.BudgetLimit()),
	)
	w.logger.Info(w.engine.DescribeRoute())

	lastStatus := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			w.logger.Info("queue worker stopping")
			return err
		}

		payload, ok, err := w.redis.BRPop(ctx, w.cfg.PopTimeout, w.cfg.Queue)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("queue pop failed, backing off", slog.String("error", err.Error()))
			w.sleep(ctx, w.cfg.RetryBaseDelay)
			continue
		}
		if !ok {
			if time.Since(lastStatus) >= statusInterval {
				w.logStatus(ctx)
				lastStatus = time.Now()
			}
			continue
		}

		w.handle(ctx, payload)
	}
}

// ProcessOne runs a single lead synchronously, for the admin endpoint.
// Returns the enriched lead, the step history, and whether it saved.
func (w *Worker) ProcessOne(ctx context.Context, lead models.Lead, opts pipeline.RunOptions) (models.Lead, bool, error) {
	final, err := w.engine.Run(ctx, lead, opts)
	if err != nil {
		return final, false, err
	}
	saved, _ := final["saved"].(bool)
	return final, saved, nil
}

func (w *Worker) handle(ctx context.Context, payload string) {
	lead, err := models.ParseLead([]byte(payload))
	if err != nil {
		w.logger.Error("lead JSON unparseable, dead-lettering", slog.String("error", err.Error()))
		w.deadLetter(ctx, payload)
		leadsProcessed.WithLabelValues("bad_json").Inc()
		return
	}

	leadID := lead.ID()
	w.logger.Info("processing lead", slog.String("lead", leadID))

	final, err := w.engine.Run(ctx, lead, pipeline.RunOptions{})
	if err != nil {
		// Only cancellation reaches here; requeue untouched for the next worker.
		w.logger.Warn("run cancelled, requeueing lead", slog.String("lead", leadID))
		_ = w.redis.LPush(context.WithoutCancel(ctx), w.cfg.Queue, payload)
		return
	}

	if saved, _ := final["saved"].(bool); saved {
		delete(w.retryCount, leadID)
		w.logger.Info("lead enriched and saved",
			slog.String("lead", leadID),
			slog.Any("cost", final[pipeline.KeyPipelineCost]),
		)
		leadsProcessed.WithLabelValues("saved").Inc()
		return
	}

	w.retryCount[leadID]++
	attempt := w.retryCount[leadID]
	if attempt >= w.cfg.MaxRetries {
		w.logger.Error("lead failed too many times, dead-lettering",
			slog.String("lead", leadID),
			slog.Int("attempts", attempt),
		)
		delete(w.retryCount, leadID)
		w.deadLetter(ctx, payload)
		leadsProcessed.WithLabelValues("dead_lettered").Inc()
		return
	}

	delay := w.cfg.RetryBaseDelay * time.Duration(1<<(attempt-1))
	w.logger.Info("retrying lead",
		slog.String("lead", leadID),
		slog.Duration("delay", delay),
		slog.Int("attempt", attempt),
		slog.Int("max", w.cfg.MaxRetries),
	)
	leadsProcessed.WithLabelValues("retried").Inc()
	w.sleep(ctx, delay)
	if err := w.redis.LPush(context.WithoutCancel(ctx), w.cfg.Queue, payload); err != nil {
		w.logger.Error("requeue failed, dead-lettering", slog.String("lead", leadID), slog.String("error", err.Error()))
		w.deadLetter(ctx, payload)
	}
}

func (w *Worker) deadLetter(ctx context.Context, payload string) {
	if err := w.redis.LPush(context.WithoutCancel(ctx), w.cfg.FailedQueue, payload); err != nil {
		// Last resort: the lead is lost unless it is in the logs.
		w.logger.Error("dead-letter push failed, dumping lead to log",
			slog.String("error", err.Error()),
			slog.String("payload", payload),
		)
	}
}

func (w *Worker) logStatus(ctx context.Context) {
	qlen, err1 := w.redis.LLen(ctx, w.cfg.Queue)
	flen, err2 := w.redis.LLen(ctx, w.cfg.FailedQueue)
	if err1 != nil || err2 != nil {
		return
	}
	queueDepth.WithLabelValues(w.cfg.Queue).Set(float64(qlen))
	queueDepth.WithLabelValues(w.cfg.FailedQueue).Set(float64(flen))
	w.logger.Debug("waiting for leads",
		slog.Int64("queue", qlen),
		slog.Int64("failed", flen),
	)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
