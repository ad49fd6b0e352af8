package router

import (
	"context"
	"log/slog"
	"math/rand"
	"sort"
	"strings"

	"github.com/linkpellow/scrapeshifter/internal/database"
	"github.com/linkpellow/scrapeshifter/internal/models"
)

const (
	providerHealthPrefix = "provider_health:"

	// Epsilon-greedy parameters.
	epsilon       = 0.1
	latencyWeight = 0.2
	preferredBias = 0.15

	// EMA smoothing for average latency.
	latencyAlpha = 0.2
)

// BlacklistChecker reports whether a provider is currently blacklisted.
// Implemented by the consensus poison tracker.
type BlacklistChecker interface {
	IsBlacklisted(ctx context.Context, provider string) bool
}

// Outcome is the result of one provider attempt.
type Outcome struct {
	Success        bool
	LatencyMS      float64
	CaptchaSolved  bool
	DatatypesFound []string
}

// Router selects providers and records their outcomes. Health state lives in
// Redis; reads and writes are best-effort set-field updates, so stale reads
// and occasional lost updates are acceptable.
type Router struct {
	redis     *database.Redis
	blacklist BlacklistChecker
	logger    *slog.Logger

	// randFloat is swappable for deterministic tests.
	randFloat func() float64
	randIntn  func(n int) int
}

// New creates a router. blacklist may be nil (no providers excluded).
func New(redis *database.Redis, blacklist BlacklistChecker, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		redis:     redis,
		blacklist: blacklist,
		logger:    logger,
		randFloat: rand.Float64,
		randIntn:  rand.Intn,
	}
}

// LeadState derives the deterministic bandit bucket for a lead, so the router
// learns per-segment preferences (e.g. one provider works better for tech
// leads in large metros).
func (r *Router) LeadState(lead models.Lead) string {
	company := strings.ToLower(strings.TrimSpace(lead.Company()))
	city := strings.ToLower(strings.TrimSpace(lead.GetString("city", "City")))
	if company == "" && city == "" {
		return "default"
	}
	return company + "|" + city
}

// SelectProvider chooses one eligible provider for the lead. With probability
// epsilon it explores uniformly; otherwise it exploits the highest-scoring
// provider. A preferred hint (from the hive-mind predictor) gets a fixed score
// bias but still has to beat the field. When nothing is eligible the fixed
// default is returned so callers never receive an empty provider.
func (r *Router) SelectProvider(ctx context.Context, lead models.Lead, tried map[string]bool, preferred string) string {
	eligible := r.eligible(ctx, tried)
	if len(eligible) == 0 {
		return DefaultProvider
	}
	if len(eligible) == 1 {
		return eligible[0]
	}

	if r.randFloat() < epsilon {
		return eligible[r.randIntn(len(eligible))]
	}

	healths := make(map[string]models.ProviderHealth, len(eligible))
	var maxLatency float64
	for _, p := range eligible {
		h := r.health(ctx, p)
		healths[p] = h
		if h.AvgLatencyMS > maxLatency {
			maxLatency = h.AvgLatencyMS
		}
	}

	best := ""
	bestScore := -1.0
	for _, p := range eligible {
		h := healths[p]
		score := h.SuccessRate()
		if maxLatency > 0 {
			score -= latencyWeight * (h.AvgLatencyMS / maxLatency)
		}
		if p == preferred {
			score += preferredBias
		}
		switch {
		case score > bestScore:
			best, bestScore = p, score
		case score == bestScore && best != "":
			// Ties: lowest latency, then lexicographic for determinism.
			bh := healths[best]
			if h.AvgLatencyMS < bh.AvgLatencyMS || (h.AvgLatencyMS == bh.AvgLatencyMS && p < best) {
				best = p
			}
		}
	}
	return best
}

// NextProvider returns the next candidate after a failure, respecting the
// same exclusions. Unlike SelectProvider it returns "" when the Magazine is
// exhausted so the caller can stop iterating.
func (r *Router) NextProvider(ctx context.Context, failed string, tried map[string]bool) string {
	for _, p := range Magazine {
		if p == failed || tried[p] {
			continue
		}
		if r.blacklist != nil && r.blacklist.IsBlacklisted(ctx, p) {
			continue
		}
		return p
	}
	return ""
}

// RecordResult updates the provider's health hash with one attempt.
func (r *Router) RecordResult(ctx context.Context, provider, leadState string, out Outcome) {
	key := providerHealthPrefix + provider
	h := r.health(ctx, provider)

	h.Attempts++
	if out.Success {
		h.Successes++
	}
	if out.CaptchaSolved {
		h.CaptchaSolves++
	}
	if h.AvgLatencyMS == 0 {
		h.AvgLatencyMS = out.LatencyMS
	} else {
		h.AvgLatencyMS = h.AvgLatencyMS*(1-latencyAlpha) + out.LatencyMS*latencyAlpha
	}

	if err := r.redis.HSet(ctx, key, h.Fields()); err != nil {
		r.logger.Warn("provider health write failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		return
	}
	r.logger.Debug("provider result recorded",
		slog.String("provider", provider),
		slog.String("lead_state", leadState),
		slog.Bool("success", out.Success),
		slog.Float64("latency_ms", out.LatencyMS),
		slog.Any("datatypes", out.DatatypesFound),
	)
}

// Health returns the current health record for a provider.
func (r *Router) Health(ctx context.Context, provider string) models.ProviderHealth {
	return r.health(ctx, provider)
}

func (r *Router) health(ctx context.Context, provider string) models.ProviderHealth {
	fields, err := r.redis.HGetAll(ctx, providerHealthPrefix+provider)
	if err != nil {
		r.logger.Warn("provider health read failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		return models.ProviderHealth{}
	}
	return models.ParseProviderHealth(fields)
}

func (r *Router) eligible(ctx context.Context, tried map[string]bool) []string {
	var out []string
	for _, p := range Magazine {
		if tried[p] {
			continue
		}
		if r.blacklist != nil && r.blacklist.IsBlacklisted(ctx, p) {
			continue
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
