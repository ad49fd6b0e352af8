package stations

import (
	"fmt"
	"log/slog"

	"github.com/linkpellow/scrapeshifter/internal/blueprint"
	"github.com/linkpellow/scrapeshifter/internal/chimera"
	"github.com/linkpellow/scrapeshifter/internal/consensus"
	"github.com/linkpellow/scrapeshifter/internal/database"
	"github.com/linkpellow/scrapeshifter/internal/enrichment"
	"github.com/linkpellow/scrapeshifter/internal/pipeline"
	"github.com/linkpellow/scrapeshifter/internal/router"
)

// Deps bundles everything the stations need. Optional members may be nil;
// the affected stations degrade rather than break.
type Deps struct {
	Redis      *database.Redis
	Bridge     *chimera.Bridge
	Router     *router.Router
	Poison     *consensus.PoisonTracker
	Blueprints *blueprint.Store
	Hive       *enrichment.HiveClient
	Scraper    Scraper
	SkipTracer enrichment.SkipTracer
	Validator  enrichment.PhoneValidator
	Scrubber   enrichment.DNCScrubber
	Census     *enrichment.CensusClient
	Saver      LeadSaver
	Alerter    PauseAlerter
	Logger     *slog.Logger
}

// DefaultRouteName is used when no route is configured.
const DefaultRouteName = "full_enrichment"

// BuildRoute assembles a named station route. Unknown names are an error so a
// typo in PIPELINE_NAME fails at startup, not at the first lead.
func BuildRoute(name string, d Deps) ([]pipeline.Station, error) {
	if name == "" {
		name = DefaultRouteName
	}
	log := d.Logger

	identity := NewIdentity(log)
	bp := NewBlueprintLoader(d.Blueprints, d.Router, log)
	deep := NewDeepSearch(d.Redis, d.Bridge, d.Router, d.Poison, d.Hive, d.Alerter, log)
	scrape := NewFreeScrape(d.Scraper, log)
	skip := NewSkipTrace(d.SkipTracer, log)
	gate := NewCarrierGate(d.Validator, log)
	dnc := NewDNCScrub(d.Scrubber, log)
	demo := NewDemographics(d.Census, log)
	save := NewDatabaseSave(d.Saver, log)

	switch name {
	case DefaultRouteName:
		return []pipeline.Station{identity, bp, deep, scrape, skip, gate, dnc, demo, save}, nil
	case "deep_search_only":
		// Trust the scraping core end to end; no paid fallbacks.
		return []pipeline.Station{identity, bp, deep, gate, dnc, save}, nil
	case "contact_only":
		// Free and paid contact lookup without the browser fleet.
		return []pipeline.Station{identity, scrape, skip, gate, dnc, save}, nil
	default:
		return nil, fmt.Errorf("unknown pipeline route %q", name)
	}
}
