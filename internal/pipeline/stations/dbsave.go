package stations

import (
	"context"
	"log/slog"

	"github.com/linkpellow/scrapeshifter/internal/models"
	"github.com/linkpellow/scrapeshifter/internal/pipeline"
)

// LeadSaver persists the enriched lead. Implemented by the Postgres
// repository.
type LeadSaver interface {
	Save(ctx context.Context, lead models.Lead) (leadID int64, err error)
}

// DatabaseSave writes the Golden Record. This is the one station whose
// failure means the whole run produced nothing durable, so it fails loudly.
type DatabaseSave struct {
	saver  LeadSaver
	logger *slog.Logger
}

func NewDatabaseSave(saver LeadSaver, logger *slog.Logger) *DatabaseSave {
	if logger == nil {
		logger = slog.Default()
	}
	return &DatabaseSave{saver: saver, logger: logger}
}

func (s *DatabaseSave) Name() string { return "Database Save" }

// linkedinUrl is the dedup key; without it the upsert has no identity.
func (s *DatabaseSave) RequiredInputs() []string { return []string{"linkedinUrl"} }

func (s *DatabaseSave) ProducesOutputs() []string { return []string{"saved", "lead_id"} }

func (s *DatabaseSave) CostEstimate() float64 { return 0 }

func (s *DatabaseSave) Process(ctx context.Context, pctx *pipeline.Context) (map[string]any, pipeline.StopCondition, error) {
	leadID, err := s.saver.Save(ctx, pctx.Data)
	if err != nil {
		s.logger.Error("lead save failed", slog.String("error", err.Error()))
		return nil, pipeline.Fail, &pipeline.StationError{
			Step:         s.Name(),
			Reason:       "database write failed: " + err.Error(),
			SuggestedFix: "check DATABASE_URL and that migrations have run",
		}
	}
	s.logger.Info("lead saved", slog.Int64("lead_id", leadID))
	return map[string]any{"saved": true, "lead_id": leadID}, pipeline.Continue, nil
}
