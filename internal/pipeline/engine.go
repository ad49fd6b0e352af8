package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/linkpellow/scrapeshifter/internal/models"
)

// StepRecord is one per-station entry appended to a step collector. It feeds
// the streaming UX and failure-mode inference.
type StepRecord struct {
	Station    string    `json:"station"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Condition  string    `json:"condition"`
	Status     string    `json:"status"` // ok | stop | fail
	Error      string    `json:"error,omitempty"`
	Hint       string    `json:"hint,omitempty"`
	RecentLogs []string  `json:"recent_logs,omitempty"`
}

// RunOptions carries the optional observers for a run.
type RunOptions struct {
	// Steps, when non-nil, receives one StepRecord per station that started.
	Steps *[]StepRecord
	// LogBuffer, when non-nil, supplies the recent log lines attached to
	// failing steps.
	LogBuffer *LogBuffer
	// Progress, when non-nil, receives live events.
	Progress ProgressSink
}

// Engine executes a fixed route of stations sequentially against one lead at
// a time. Station failures are non-fatal to the run — downstream stations may
// still contribute partial value. Only budget exhaustion aborts: further spend
// is guaranteed useless. Retry and alternate-provider logic live inside
// stations; the engine is deliberately linear.
type Engine struct {
	route          []Station
	budgetLimit    float64
	stationTimeout time.Duration // 0 = stations manage their own deadlines
	logger         *slog.Logger
}

// NewEngine creates an engine for the given route and per-lead budget.
func NewEngine(route []Station, budgetLimit float64, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{route: route, budgetLimit: budgetLimit, logger: logger}
}

// WithStationTimeout bounds each station's Process call. Zero disables.
func (e *Engine) WithStationTimeout(d time.Duration) *Engine {
	e.stationTimeout = d
	return e
}

// Route returns the configured stations in order.
func (e *Engine) Route() []Station {
	return e.route
}

// BudgetLimit returns the per-lead budget.
func (e *Engine) BudgetLimit() float64 {
	return e.budgetLimit
}

// Run executes the route against initial and returns the enriched lead with
// _pipeline_cost, _pipeline_stations_executed, and _pipeline_errors attached.
// The returned error is non-nil only on cancellation; station failures are
// captured in the lead's history and error count instead.
func (e *Engine) Run(ctx context.Context, initial models.Lead, opts RunOptions) (models.Lead, error) {
	pctx := NewContext(initial, e.budgetLimit)
	pctx.Progress = opts.Progress

	// Resolve the working name up front so name-keyed prerequisites hold.
	if !pctx.Data.Has("name") {
		if n := pctx.Data.DisplayName(); n != "" {
			pctx.Data["name"] = n
		}
	}

	total := len(e.route)
	e.logger.Info("pipeline starting",
		slog.Int("stations", total),
		slog.Float64("budget", e.budgetLimit),
	)

	for i, station := range e.route {
		if err := ctx.Err(); err != nil {
			pctx.RecordError(station.Name(), "run cancelled")
			return e.finish(pctx), err
		}

		name := station.Name()
		pctx.Emit(ProgressEvent{
			Type:    EventRunning,
			Station: name,
			Step:    i + 1,
			Total:   total,
			Pct:     float64(i) / float64(total),
		})

		t0 := time.Now()
		startedAt := t0.UTC()

		// Prerequisite gate: skip this station, not the run. The station
		// never started, so it gets an error entry but no history entry.
		if missing := missingInputs(station, pctx.Data); len(missing) > 0 {
			msg := fmt.Sprintf("missing prerequisites: %v", missing)
			e.logger.Warn("station skipped", slog.String("station", name), slog.String("reason", msg))
			pctx.RecordError(name, msg)
			e.record(opts, StepRecord{Station: name, StartedAt: startedAt, Condition: string(Fail), Status: "fail", Error: msg})
			e.emitStation(pctx, name, i, total, "fail", 0, msg)
			continue
		}

		// Budget gate: fatal. Everything after this point would be wasted spend.
		if !pctx.CanAfford(station.CostEstimate()) {
			msg := fmt.Sprintf("budget exhausted: %.4f + %.4f > %.4f", pctx.TotalCost, station.CostEstimate(), pctx.BudgetLimit)
			e.logger.Warn("pipeline stopped", slog.String("station", name), slog.String("reason", msg))
			pctx.RecordError(name, msg)
			e.record(opts, StepRecord{Station: name, StartedAt: startedAt, Condition: string(Fail), Status: "fail", Error: msg})
			e.emitStation(pctx, name, i, total, "fail", 0, msg)
			break
		}

		delta, cond, err := e.processSafe(ctx, station, pctx)
		duration := time.Since(t0)
		stationDuration.WithLabelValues(name).Observe(duration.Seconds())

		if err != nil {
			var serr *StationError
			msg := err.Error()
			step := StepRecord{
				Station:    name,
				StartedAt:  startedAt,
				DurationMS: duration.Milliseconds(),
				Condition:  string(Fail),
				Status:     "fail",
				Error:      msg,
			}
			if errors.As(err, &serr) {
				step.Hint = serr.SuggestedFix
			}
			if opts.LogBuffer != nil {
				step.RecentLogs = opts.LogBuffer.Last(20)
			}
			e.logger.Error("station failed", slog.String("station", name), slog.String("error", msg))
			pctx.Update(nil, name, 0, Fail, msg)
			e.record(opts, step)
			e.emitStation(pctx, name, i, total, "fail", duration, msg)
			stationsExecuted.WithLabelValues(name, "fail").Inc()
			continue
		}

		status := "ok"
		switch cond {
		case SkipRemaining:
			status = "stop"
		case Fail:
			status = "fail"
			delta = nil // failed stations do not mutate the lead
		}

		cost := station.CostEstimate()
		pctx.Update(delta, name, cost, cond, "")
		e.record(opts, StepRecord{
			Station:    name,
			StartedAt:  startedAt,
			DurationMS: duration.Milliseconds(),
			Condition:  string(cond),
			Status:     status,
		})
		e.emitStation(pctx, name, i, total, status, duration, "")
		stationsExecuted.WithLabelValues(name, status).Inc()

		if cond == SkipRemaining {
			e.logger.Info("stop condition hit, finishing early", slog.String("station", name))
			break
		}
		if cond == Fail {
			e.logger.Warn("station reported failure", slog.String("station", name))
			continue
		}
		e.logger.Debug("station completed",
			slog.String("station", name),
			slog.Float64("cost", cost),
			slog.Float64("total_cost", pctx.TotalCost),
		)
	}

	return e.finish(pctx), nil
}

// processSafe invokes the station with the optional per-station timeout and
// converts panics into station failures so one bad station cannot kill the
// worker.
func (e *Engine) processSafe(ctx context.Context, station Station, pctx *Context) (delta map[string]any, cond StopCondition, err error) {
	if e.stationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.stationTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			delta, cond = nil, Fail
			err = fmt.Errorf("station panic: %v", r)
		}
	}()
	return station.Process(ctx, pctx)
}

func (e *Engine) finish(pctx *Context) models.Lead {
	e.logger.Info("pipeline complete",
		slog.Float64("cost", pctx.TotalCost),
		slog.Int("stations_executed", len(pctx.History)),
		slog.Int("errors", len(pctx.Errors)),
	)
	pipelineCost.Observe(pctx.TotalCost)

	final := pctx.Data
	final[KeyPipelineCost] = pctx.TotalCost
	final[KeyPipelineStations] = len(pctx.History)
	final[KeyPipelineErrors] = len(pctx.Errors)
	return final
}

func (e *Engine) record(opts RunOptions, step StepRecord) {
	if opts.Steps != nil {
		*opts.Steps = append(*opts.Steps, step)
	}
}

func (e *Engine) emitStation(pctx *Context, name string, i, total int, status string, d time.Duration, errMsg string) {
	pctx.Emit(ProgressEvent{
		Type:       EventStation,
		Station:    name,
		Step:       i + 1,
		Total:      total,
		Pct:        float64(i+1) / float64(total),
		Status:     status,
		DurationMS: d.Milliseconds(),
		Error:      errMsg,
	})
}

func missingInputs(station Station, data models.Lead) []string {
	var missing []string
	for _, key := range station.RequiredInputs() {
		if !data.Has(key) {
			missing = append(missing, key)
		}
	}
	return missing
}

// DescribeRoute renders the route for startup logs.
func (e *Engine) DescribeRoute() string {
	out := "Pipeline route:"
	for i, s := range e.route {
		out += fmt.Sprintf("\n  %d. %s (cost $%.4f, requires %v)", i+1, s.Name(), s.CostEstimate(), s.RequiredInputs())
	}
	return out
}
