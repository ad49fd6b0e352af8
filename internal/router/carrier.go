package router

import (
	"context"
	"log/slog"

	"github.com/linkpellow/scrapeshifter/internal/models"
)

const (
	carrierHealthPrefix = "carrier_health:"
	carrierSetPrefix    = "carriers:"

	// DefaultCarrier is used when a domain has no recorded carrier history.
	DefaultCarrier = "default"

	// Minimum attempts before a carrier's success rate is trusted for
	// preference; below this every carrier looks the same.
	carrierMinAttempts = 3
)

// PreferredCarrier returns the residential-proxy carrier with the best
// success rate for a domain, or DefaultCarrier when no carrier has enough
// history yet.
func (r *Router) PreferredCarrier(ctx context.Context, domain string) string {
	carriers, err := r.redis.SMembers(ctx, carrierSetPrefix+domain)
	if err != nil || len(carriers) == 0 {
		return DefaultCarrier
	}

	best := DefaultCarrier
	bestRate := -1.0
	for _, c := range carriers {
		fields, err := r.redis.HGetAll(ctx, carrierHealthPrefix+domain+":"+c)
		if err != nil {
			continue
		}
		h := models.ParseProviderHealth(fields)
		if h.Attempts < carrierMinAttempts {
			continue
		}
		rate := h.SuccessRate()
		if rate > bestRate || (rate == bestRate && c < best) {
			best, bestRate = c, rate
		}
	}
	return best
}

// RecordCarrierResult updates the per-(domain,carrier) health hash.
func (r *Router) RecordCarrierResult(ctx context.Context, domain, carrier string, success bool) {
	if carrier == "" {
		carrier = DefaultCarrier
	}
	key := carrierHealthPrefix + domain + ":" + carrier

	fields, err := r.redis.HGetAll(ctx, key)
	if err != nil {
		r.logger.Warn("carrier health read failed", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	h := models.ParseProviderHealth(fields)
	h.Attempts++
	if success {
		h.Successes++
	}

	if err := r.redis.HSet(ctx, key, h.Fields()); err != nil {
		r.logger.Warn("carrier health write failed", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	if err := r.redis.SAdd(ctx, carrierSetPrefix+domain, carrier); err != nil {
		r.logger.Warn("carrier set write failed", slog.String("domain", domain), slog.String("error", err.Error()))
	}
}
