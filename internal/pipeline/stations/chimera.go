package stations

import (
	"context"
	"log/slog"
	"time"

	"github.com/linkpellow/scrapeshifter/internal/chimera"
	"github.com/linkpellow/scrapeshifter/internal/consensus"
	"github.com/linkpellow/scrapeshifter/internal/database"
	"github.com/linkpellow/scrapeshifter/internal/enrichment"
	"github.com/linkpellow/scrapeshifter/internal/models"
	"github.com/linkpellow/scrapeshifter/internal/pipeline"
	"github.com/linkpellow/scrapeshifter/internal/router"
)

const (
	// SystemPausedKey halts new missions while set. Operators set it when the
	// worker fleet is burning or a provider is actively banning.
	SystemPausedKey = "SYSTEM_STATE:PAUSED"

	pausePollInterval = 15 * time.Second
	pauseWaitMax      = 120 * time.Second
)

// PauseAlerter notifies operators when a run skipped the deep search because
// the system stayed paused.
type PauseAlerter interface {
	SystemPaused(ctx context.Context, reason string, waitedSeconds int)
}

// DeepSearch drives the scraping core through the mission bridge: provider
// selection via the epsilon-greedy router, failover across the Magazine,
// poison detection on returned values, and cross-source consensus for
// high-value leads.
type DeepSearch struct {
	redis   *database.Redis
	bridge  *chimera.Bridge
	router  *router.Router
	poison  *consensus.PoisonTracker
	hive    *enrichment.HiveClient
	alerter PauseAlerter
	logger  *slog.Logger

	sleep func(ctx context.Context, d time.Duration) // swappable for tests
}

func NewDeepSearch(
	redis *database.Redis,
	bridge *chimera.Bridge,
	rt *router.Router,
	poison *consensus.PoisonTracker,
	hive *enrichment.HiveClient,
	alerter PauseAlerter,
	logger *slog.Logger,
) *DeepSearch {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeepSearch{
		redis:   redis,
		bridge:  bridge,
		router:  rt,
		poison:  poison,
		hive:    hive,
		alerter: alerter,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

func (s *DeepSearch) Name() string { return "Chimera Deep Search" }

func (s *DeepSearch) RequiredInputs() []string { return []string{"linkedinUrl"} }

func (s *DeepSearch) ProducesOutputs() []string {
	return []string{"chimera_income", "chimera_age", "chimera_phone", "chimera_email", "chimera_raw"}
}

func (s *DeepSearch) CostEstimate() float64 { return 0.05 }

func (s *DeepSearch) Process(ctx context.Context, pctx *pipeline.Context) (map[string]any, pipeline.StopCondition, error) {
	linkedinURL := pctx.Data.LinkedInURL()
	if linkedinURL == "" {
		return nil, pipeline.Fail, &pipeline.StationError{
			Step:         s.Name(),
			Reason:       "lead has no LinkedIn URL",
			SuggestedFix: "deep search is keyed on linkedinUrl; check upstream field mapping",
		}
	}

	if skip := s.waitWhilePaused(ctx, pctx); skip {
		return nil, pipeline.Continue, nil
	}

	leadState := s.router.LeadState(pctx.Data)
	preferred := ""
	if s.hive != nil {
		preferred = s.hive.PredictProvider(ctx,
			pctx.Data.Company(), pctx.Data.GetString("city", "City"), pctx.Data.Title())
	}

	tried := map[string]bool{}
	provider := s.router.SelectProvider(ctx, pctx.Data, tried, preferred)

	for provider != "" {
		if err := ctx.Err(); err != nil {
			return nil, pipeline.Fail, err
		}
		tried[provider] = true
		result, elapsed := s.attempt(ctx, pctx, provider)

		if result == nil || result.Failed() {
			s.recordFailure(ctx, provider, leadState, elapsed, result)
			provider = s.router.NextProvider(ctx, provider, tried)
			continue
		}

		return s.harvest(ctx, pctx, provider, leadState, tried, elapsed, result), pipeline.Continue, nil
	}

	s.logger.Warn("all providers exhausted", slog.String("linkedin_url", linkedinURL))
	return nil, pipeline.Continue, nil
}

// attempt dispatches one mission and waits for the reply. A nil result means
// timeout, transport error, or unparseable reply.
func (s *DeepSearch) attempt(ctx context.Context, pctx *pipeline.Context, provider string) (*models.MissionResult, time.Duration) {
	domain := router.ProviderDomain(provider)
	carrier := s.router.PreferredCarrier(ctx, domain)

	var bp map[string]any
	if v, ok := pctx.Data[pipeline.KeyBlueprint].(map[string]any); ok {
		bp = v
	}

	mission := s.bridge.NewMission(pctx.Data, provider, carrier, bp)
	pctx.EmitSubstep(s.Name(), "dispatch", provider)

	if err := s.bridge.Dispatch(ctx, mission); err != nil {
		s.logger.Warn("mission dispatch failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		return nil, s.bridge.Timeout()
	}

	result, elapsed, err := s.bridge.Await(ctx, mission.MissionID, func(line string) {
		pctx.EmitSubstep(s.Name(), "telemetry", line)
	})
	if err != nil {
		s.logger.Warn("mission reply not usable",
			slog.String("provider", provider),
			slog.String("mission_id", mission.MissionID),
			slog.String("error", err.Error()),
		)
		return nil, elapsed
	}
	return result, elapsed
}

// harvest turns a successful reply into the station delta and feeds every
// learning loop: router health, carrier health, poison detection, the hive,
// and cross-source consensus for high-value leads.
func (s *DeepSearch) harvest(
	ctx context.Context,
	pctx *pipeline.Context,
	provider, leadState string,
	tried map[string]bool,
	elapsed time.Duration,
	result *models.MissionResult,
) map[string]any {
	domain := router.ProviderDomain(provider)
	s.router.RecordResult(ctx, provider, leadState, router.Outcome{
		Success:        true,
		LatencyMS:      float64(elapsed.Milliseconds()),
		CaptchaSolved:  result.CaptchaSolved,
		DatatypesFound: result.DatatypesFound(),
	})
	s.router.RecordCarrierResult(ctx, domain, s.router.PreferredCarrier(ctx, domain), true)

	linkedinURL := pctx.Data.LinkedInURL()
	if s.poison != nil {
		if result.Phone != "" {
			s.poison.RecordDataPoint(ctx, provider, "phone", result.Phone, linkedinURL)
		}
		if result.Email != "" {
			s.poison.RecordDataPoint(ctx, provider, "email", result.Email, linkedinURL)
		}
	}

	// Found values land under both the raw key (so downstream stations like
	// the carrier gate see them) and the chimera_ prefix (so the save layer
	// can attribute the source).
	out := map[string]any{}
	if result.Income != nil {
		out["income"] = result.Income
		out["chimera_income"] = result.Income
	}
	if result.Age != nil {
		out["age"] = *result.Age
		out["chimera_age"] = *result.Age
	}
	if result.Phone != "" {
		out["phone"] = result.Phone
		out["chimera_phone"] = result.Phone
	}
	if result.Email != "" {
		out["email"] = result.Email
		out["chimera_email"] = result.Email
	}
	out["chimera_raw"] = result.Raw

	if consensus.NeedsVisionVerification(result.VisionConfidence) {
		out[consensus.FlagNeedsOCRVerify] = true
		s.logger.Warn("low vision confidence, flagged for OCR verification",
			slog.String("provider", provider),
			slog.Float64("confidence", *result.VisionConfidence),
		)
	}

	if s.hive != nil {
		s.hive.StorePattern(ctx,
			pctx.Data.Company(), pctx.Data.GetString("city", "City"), pctx.Data.Title(),
			provider, result.DatatypesFound())
	}

	if pctx.Data.IsHighValue() {
		s.crossSource(ctx, pctx, provider, leadState, tried, result, out)
	}

	s.logger.Info("deep search complete",
		slog.String("provider", provider),
		slog.Any("datatypes", result.DatatypesFound()),
	)
	return out
}

// crossSource runs a second provider against the same lead and flags the run
// for manual reconciliation when the two replies disagree. Best-effort: a
// failed or missing second opinion changes nothing.
func (s *DeepSearch) crossSource(
	ctx context.Context,
	pctx *pipeline.Context,
	firstProvider, leadState string,
	tried map[string]bool,
	first *models.MissionResult,
	out map[string]any,
) {
	second := s.router.NextProvider(ctx, firstProvider, tried)
	if second == "" {
		return
	}
	pctx.EmitSubstep(s.Name(), "cross_source", second)

	var bp map[string]any
	if v, ok := pctx.Data[pipeline.KeyBlueprint].(map[string]any); ok {
		bp = v
	}
	secondDomain := router.ProviderDomain(second)
	mission := s.bridge.NewMission(pctx.Data, second, "", bp)
	if err := s.bridge.Dispatch(ctx, mission); err != nil {
		s.router.RecordResult(ctx, second, leadState, router.Outcome{Success: false})
		s.router.RecordCarrierResult(ctx, secondDomain, "", false)
		return
	}
	verify, velapsed, err := s.bridge.Await(ctx, mission.MissionID, nil)
	if err != nil || verify == nil || verify.Failed() {
		s.router.RecordResult(ctx, second, leadState, router.Outcome{
			Success:   false,
			LatencyMS: float64(velapsed.Milliseconds()),
		})
		s.router.RecordCarrierResult(ctx, secondDomain, "", false)
		return
	}

	s.router.RecordResult(ctx, second, leadState, router.Outcome{
		Success:        true,
		LatencyMS:      float64(velapsed.Milliseconds()),
		CaptchaSolved:  verify.CaptchaSolved,
		DatatypesFound: verify.DatatypesFound(),
	})
	s.router.RecordCarrierResult(ctx, secondDomain, "", true)

	if consensus.CheckCrossSource(first.Raw, verify.Raw) {
		out[consensus.FlagNeedsReconciliation] = true
		s.logger.Warn("high-value lead providers disagree, flagged for reconciliation",
			slog.String("provider_a", firstProvider),
			slog.String("provider_b", second),
		)
	}
}

func (s *DeepSearch) recordFailure(ctx context.Context, provider, leadState string, elapsed time.Duration, result *models.MissionResult) {
	s.router.RecordResult(ctx, provider, leadState, router.Outcome{
		Success:   false,
		LatencyMS: float64(elapsed.Milliseconds()),
	})
	domain := router.ProviderDomain(provider)
	s.router.RecordCarrierResult(ctx, domain, s.router.PreferredCarrier(ctx, domain), false)
	if result != nil && result.Error != "" {
		s.logger.Warn("mission failed",
			slog.String("provider", provider),
			slog.String("error", result.Error),
		)
	}
}

// waitWhilePaused blocks while SYSTEM_STATE:PAUSED is set, up to pauseWaitMax.
// Returns true when the station should skip its work because the pause
// outlasted the wait. Redis errors read as not-paused.
func (s *DeepSearch) waitWhilePaused(ctx context.Context, pctx *pipeline.Context) bool {
	waited := time.Duration(0)
	for waited < pauseWaitMax {
		v, err := s.redis.Get(ctx, SystemPausedKey)
		if err != nil || v == "" {
			return false
		}
		s.logger.Warn("system paused, waiting",
			slog.Duration("waited", waited),
			slog.Duration("max", pauseWaitMax),
		)
		pctx.EmitSubstep(s.Name(), "paused", v)
		step := pausePollInterval
		if remaining := pauseWaitMax - waited; remaining < step {
			step = remaining
		}
		s.sleep(ctx, step)
		waited += step
		if ctx.Err() != nil {
			return true
		}
	}

	if v, err := s.redis.Get(ctx, SystemPausedKey); err == nil && v != "" {
		s.logger.Warn("system still paused after max wait, skipping deep search")
		if s.alerter != nil {
			s.alerter.SystemPaused(ctx, v, int(pauseWaitMax.Seconds()))
		}
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
