package stations

import (
	"context"
	"log/slog"

	"github.com/linkpellow/scrapeshifter/internal/enrichment"
	"github.com/linkpellow/scrapeshifter/internal/pipeline"
)

// DNCScrub checks the lead's phone against do-not-call registries. With the
// no-op scrubber wired it always passes, stamping dnc_status so downstream
// consumers can see the scrub never ran. A real scrubber returning a listed
// number stops the route.
type DNCScrub struct {
	scrubber enrichment.DNCScrubber
	logger   *slog.Logger
}

func NewDNCScrub(scrubber enrichment.DNCScrubber, logger *slog.Logger) *DNCScrub {
	if scrubber == nil {
		scrubber = enrichment.NoopDNCScrubber{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DNCScrub{scrubber: scrubber, logger: logger}
}

func (s *DNCScrub) Name() string { return "DNC Scrubbing" }

func (s *DNCScrub) RequiredInputs() []string { return nil }

func (s *DNCScrub) ProducesOutputs() []string { return []string{"dnc_status", "can_contact"} }

func (s *DNCScrub) CostEstimate() float64 { return 0 }

func (s *DNCScrub) Process(ctx context.Context, pctx *pipeline.Context) (map[string]any, pipeline.StopCondition, error) {
	res, err := s.scrubber.Scrub(ctx, pctx.Data.GetString("phone"))
	if err != nil {
		// Fail open, matching the rest of the compliance seam's posture.
		s.logger.Error("dnc scrub error, passing lead through", slog.String("error", err.Error()))
		return map[string]any{"dnc_status": enrichment.DNCStatusSkipped, "can_contact": true},
			pipeline.Continue, nil
	}

	out := map[string]any{"dnc_status": res.Status, "can_contact": res.CanContact}
	if !res.CanContact {
		s.logger.Warn("lead is on a do-not-call registry, stopping route")
		return out, pipeline.SkipRemaining, nil
	}
	return out, pipeline.Continue, nil
}
