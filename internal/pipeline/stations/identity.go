// Package stations contains the concrete stops on the enrichment route.
package stations

import (
	"context"
	"log/slog"

	"github.com/linkpellow/scrapeshifter/internal/enrichment"
	"github.com/linkpellow/scrapeshifter/internal/pipeline"
)

// Identity parses the raw lead into structured identity fields. Free, and the
// only station whose failure should usually end interest in the lead: without
// a first and last name nothing downstream can search.
type Identity struct {
	logger *slog.Logger
}

func NewIdentity(logger *slog.Logger) *Identity {
	if logger == nil {
		logger = slog.Default()
	}
	return &Identity{logger: logger}
}

func (s *Identity) Name() string { return "Identity Resolution" }

func (s *Identity) RequiredInputs() []string { return []string{"name"} }

func (s *Identity) ProducesOutputs() []string {
	return []string{"firstName", "lastName", "fullName", "city", "state", "zipcode", "company", "title"}
}

func (s *Identity) CostEstimate() float64 { return 0 }

func (s *Identity) Process(ctx context.Context, pctx *pipeline.Context) (map[string]any, pipeline.StopCondition, error) {
	result := enrichment.ResolveIdentity(pctx.Data)

	first, _ := result["firstName"].(string)
	last, _ := result["lastName"].(string)
	if first == "" || last == "" {
		s.logger.Warn("identity resolution incomplete",
			slog.String("name", pctx.Data.GetString("name")),
		)
		return nil, pipeline.Fail, &pipeline.StationError{
			Step:         s.Name(),
			Reason:       "could not split lead name into first and last",
			SuggestedFix: "check the lead's name field for credentials or company suffixes",
		}
	}

	s.logger.Info("identity resolved",
		slog.String("first", first),
		slog.String("last", last),
	)
	return result, pipeline.Continue, nil
}
