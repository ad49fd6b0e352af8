package stations

import (
	"context"
	"log/slog"

	"github.com/linkpellow/scrapeshifter/internal/enrichment"
	"github.com/linkpellow/scrapeshifter/internal/pipeline"
)

// Demographics adds zipcode-level census context: median household income and
// home value. Never critical; every failure continues the route.
type Demographics struct {
	census *enrichment.CensusClient
	logger *slog.Logger
}

func NewDemographics(census *enrichment.CensusClient, logger *slog.Logger) *Demographics {
	if logger == nil {
		logger = slog.Default()
	}
	return &Demographics{census: census, logger: logger}
}

func (s *Demographics) Name() string { return "Demographic Enrichment" }

func (s *Demographics) RequiredInputs() []string { return []string{"zipcode"} }

func (s *Demographics) ProducesOutputs() []string {
	return []string{"income", "income_range", "median_home_value"}
}

func (s *Demographics) CostEstimate() float64 { return 0.01 }

func (s *Demographics) Process(ctx context.Context, pctx *pipeline.Context) (map[string]any, pipeline.StopCondition, error) {
	demo, err := s.census.Lookup(ctx, pctx.Data.GetString("zipcode"))
	if err != nil {
		s.logger.Warn("census lookup failed", slog.String("error", err.Error()))
		return nil, pipeline.Continue, nil
	}

	out := map[string]any{}
	if demo.MedianIncome > 0 {
		// Only fill income when no person-level source already did.
		if !pctx.Data.Has("income") && !pctx.Data.Has("chimera_income") {
			out["income"] = demo.MedianIncome
		}
		out["income_range"] = incomeRange(demo.MedianIncome)
	}
	if demo.MedianHomeValue > 0 {
		out["median_home_value"] = demo.MedianHomeValue
	}

	s.logger.Info("demographics enriched",
		slog.String("zipcode", demo.Zipcode),
		slog.Int("median_income", demo.MedianIncome),
	)
	return out, pipeline.Continue, nil
}

func incomeRange(income int) string {
	switch {
	case income < 35000:
		return "<35k"
	case income < 75000:
		return "35k-75k"
	case income < 150000:
		return "75k-150k"
	default:
		return "150k+"
	}
}
