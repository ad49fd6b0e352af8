package stations

import (
	"context"
	"log/slog"

	"github.com/linkpellow/scrapeshifter/internal/enrichment"
	"github.com/linkpellow/scrapeshifter/internal/pipeline"
)

// SkipTrace is the paid contact lookup, run only when the free sources came
// up empty. Failing to find a phone fails the station: downstream carrier and
// DNC gates have nothing to work with.
type SkipTrace struct {
	tracer enrichment.SkipTracer
	logger *slog.Logger
}

func NewSkipTrace(tracer enrichment.SkipTracer, logger *slog.Logger) *SkipTrace {
	if logger == nil {
		logger = slog.Default()
	}
	return &SkipTrace{tracer: tracer, logger: logger}
}

func (s *SkipTrace) Name() string { return "Skip-Tracing API" }

func (s *SkipTrace) RequiredInputs() []string {
	return []string{"firstName", "lastName", "city", "state"}
}

func (s *SkipTrace) ProducesOutputs() []string { return []string{"phone", "email"} }

func (s *SkipTrace) CostEstimate() float64 { return enrichment.SkipTraceCost }

func (s *SkipTrace) Process(ctx context.Context, pctx *pipeline.Context) (map[string]any, pipeline.StopCondition, error) {
	// Free-first: anything upstream that already found a phone wins.
	if pctx.Data.GetString("phone", "chimera_phone") != "" {
		s.logger.Info("phone already found, skipping paid trace")
		return nil, pipeline.Continue, nil
	}

	result, err := s.tracer.Trace(ctx,
		pctx.Data.GetString("firstName"),
		pctx.Data.GetString("lastName"),
		pctx.Data.GetString("city"),
		pctx.Data.GetString("state"),
	)
	if err != nil {
		return nil, pipeline.Fail, &pipeline.StationError{
			Step:         s.Name(),
			Reason:       "skip trace lookup failed: " + err.Error(),
			SuggestedFix: "check the skip-trace API key and quota",
		}
	}
	if result == nil || result.Phone == "" {
		s.logger.Warn("skip trace found no phone")
		return nil, pipeline.Fail, nil
	}

	out := map[string]any{"phone": result.Phone}
	if result.Email != "" {
		out["email"] = result.Email
	}
	if result.Age != nil {
		out["age"] = float64(*result.Age)
	}
	if result.Address != "" {
		out["address"] = result.Address
	}
	s.logger.Info("skip trace found phone")
	return out, pipeline.Continue, nil
}
