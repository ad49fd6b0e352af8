package stations

import (
	"context"
	"log/slog"

	"github.com/linkpellow/scrapeshifter/internal/blueprint"
	"github.com/linkpellow/scrapeshifter/internal/pipeline"
	"github.com/linkpellow/scrapeshifter/internal/router"
)

// BlueprintLoader resolves the likely target provider ahead of the deep
// search and preloads its site blueprint, so the scraping core never starts a
// mission blind. A missing blueprint is not fatal: the station signals the
// mapping workflow and the run continues.
type BlueprintLoader struct {
	store  *blueprint.Store
	router *router.Router
	logger *slog.Logger
}

func NewBlueprintLoader(store *blueprint.Store, rt *router.Router, logger *slog.Logger) *BlueprintLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlueprintLoader{store: store, router: rt, logger: logger}
}

func (s *BlueprintLoader) Name() string { return "Blueprint Loader" }

func (s *BlueprintLoader) RequiredInputs() []string { return []string{"linkedinUrl"} }

// Outputs are internal underscore keys, not lead fields.
func (s *BlueprintLoader) ProducesOutputs() []string { return nil }

func (s *BlueprintLoader) CostEstimate() float64 { return 0 }

func (s *BlueprintLoader) Process(ctx context.Context, pctx *pipeline.Context) (map[string]any, pipeline.StopCondition, error) {
	provider := s.router.SelectProvider(ctx, pctx.Data, nil, "")
	domain := router.ProviderDomain(provider)
	pctx.EmitSubstep(s.Name(), "loading", domain)

	if loaded := s.store.LoadOrMap(ctx, domain); loaded != nil {
		pctx.EmitSubstep(s.Name(), "loaded", domain)
		return map[string]any{
			pipeline.KeyBlueprint:       loaded.Blueprint,
			pipeline.KeyBlueprintDomain: loaded.Domain,
		}, pipeline.Continue, nil
	}

	pctx.EmitSubstep(s.Name(), "mapping_required", domain)
	return map[string]any{pipeline.KeyMappingRequired: domain}, pipeline.Continue, nil
}
