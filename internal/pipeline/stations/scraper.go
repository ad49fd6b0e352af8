package stations

import (
	"context"
	"log/slog"

	"github.com/linkpellow/scrapeshifter/internal/models"
	"github.com/linkpellow/scrapeshifter/internal/pipeline"
)

// Scraper runs the free scraper pool against a lead.
type Scraper interface {
	Enrich(ctx context.Context, lead models.Lead) (map[string]any, error)
}

// FreeScrape tries the free scraper pool before any paid source is touched.
// It never fails the run: an empty or errored scrape just means the paid
// fallbacks downstream get their turn.
type FreeScrape struct {
	scraper Scraper
	logger  *slog.Logger
}

func NewFreeScrape(scraper Scraper, logger *slog.Logger) *FreeScrape {
	if logger == nil {
		logger = slog.Default()
	}
	return &FreeScrape{scraper: scraper, logger: logger}
}

func (s *FreeScrape) Name() string { return "Scraper Enrichment" }

func (s *FreeScrape) RequiredInputs() []string {
	return []string{"firstName", "lastName", "city", "state"}
}

func (s *FreeScrape) ProducesOutputs() []string {
	return []string{"phone", "age", "income", "address", "email"}
}

func (s *FreeScrape) CostEstimate() float64 { return 0 }

func (s *FreeScrape) Process(ctx context.Context, pctx *pipeline.Context) (map[string]any, pipeline.StopCondition, error) {
	if s.scraper == nil {
		return nil, pipeline.Continue, nil
	}
	result, err := s.scraper.Enrich(ctx, pctx.Data)
	if err != nil {
		s.logger.Warn("free scrape failed, paid fallback will run", slog.String("error", err.Error()))
		return nil, pipeline.Continue, nil
	}
	if phone, _ := result["phone"].(string); phone != "" {
		s.logger.Info("free scrape found phone")
	} else {
		s.logger.Info("free scrape found no phone, paid fallback will run")
	}
	return result, pipeline.Continue, nil
}
