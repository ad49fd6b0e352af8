package runs

import (
	"strings"

	"github.com/linkpellow/scrapeshifter/internal/models"
	"github.com/linkpellow/scrapeshifter/internal/pipeline"
)

// Diagnosis is the failure classification attached to the final stream event.
type Diagnosis struct {
	Mode      models.FailureMode
	FailureAt string
	Hint      string
}

// Diagnose classifies why a run produced no saved record, from its step
// history and final lead. Order matters: the most specific signal wins.
func Diagnose(steps []pipeline.StepRecord, final models.Lead) Diagnosis {
	if len(steps) == 0 {
		return Diagnosis{
			Mode: models.FailureStartup,
			Hint: "the run never started a station; check worker logs and Redis connectivity",
		}
	}

	if domain, ok := final[pipeline.KeyMappingRequired].(string); ok && domain != "" {
		return Diagnosis{
			Mode:      models.FailureMapping,
			FailureAt: "Blueprint Loader",
			Hint:      "no blueprint for " + domain + "; run a Dojo mapping session",
		}
	}

	for i := range steps {
		step := &steps[i]
		if step.Status != "fail" && step.Error == "" {
			continue
		}
		errLower := strings.ToLower(step.Error)
		switch {
		case strings.Contains(errLower, "captcha"):
			return Diagnosis{
				Mode:      models.FailureCaptcha,
				FailureAt: step.Station,
				Hint:      hintOr(step, "provider is serving captchas; rotate carriers or wait out the ban"),
			}
		case strings.Contains(errLower, "selector") || strings.Contains(errLower, "trauma"):
			return Diagnosis{
				Mode:      models.FailureSelector,
				FailureAt: step.Station,
				Hint:      hintOr(step, "site layout likely changed; re-map the blueprint"),
			}
		case strings.Contains(errLower, "timed out") || strings.Contains(errLower, "timeout"):
			return Diagnosis{
				Mode:      models.FailureCoreTimeout,
				FailureAt: step.Station,
				Hint:      hintOr(step, "the scraping core never replied; check that the core is running and consuming missions"),
			}
		}
	}

	// Dedicated checks per station once no error text matched.
	for i := range steps {
		step := &steps[i]
		if step.Status != "fail" {
			continue
		}
		switch step.Station {
		case "Chimera Deep Search":
			return Diagnosis{
				Mode:      models.FailureCoreResult,
				FailureAt: step.Station,
				Hint:      hintOr(step, "the scraping core replied with a failure; check core logs for this mission"),
			}
		case "Database Save", "Telnyx Gatekeep", "DNC Scrubbing", "Demographic Enrichment":
			return Diagnosis{
				Mode:      models.FailureDownstream,
				FailureAt: step.Station,
				Hint:      hintOr(step, "a post-search station failed; the search data itself may be fine"),
			}
		}
	}

	// Nothing failed outright, but the run still did not save.
	if final.GetString("phone", "chimera_phone") == "" && final.GetString("email", "chimera_email") == "" {
		return Diagnosis{
			Mode:      models.FailureEmpty,
			FailureAt: "Chimera Deep Search",
			Hint:      "every provider came back empty for this lead; try again later or relax the lead's location",
		}
	}

	for i := range steps {
		if steps[i].Status == "fail" {
			return Diagnosis{
				Mode:      models.FailureUnknown,
				FailureAt: steps[i].Station,
				Hint:      hintOr(&steps[i], "unclassified failure; inspect the step's recent logs"),
			}
		}
	}
	return Diagnosis{Mode: models.FailureUnknown, Hint: "run finished without saving; inspect the step history"}
}

func hintOr(step *pipeline.StepRecord, fallback string) string {
	if step.Hint != "" {
		return step.Hint
	}
	return fallback
}
