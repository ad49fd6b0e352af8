// Package consensus implements the shield around provider output: entropy
// poison detection, provider blacklisting, cross-source reconciliation, and
// the vision-confidence gate.
package consensus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/linkpellow/scrapeshifter/internal/database"
)

const (
	poisonPrefix    = "poison:p:"
	blacklistPrefix = "blacklist:provider:"

	// PoisonWindow is the rolling window in which repeated values count.
	// SADD + EXPIRE semantics: fresh writes refresh the whole set's TTL, old
	// members do not individually expire.
	PoisonWindow = time.Hour
	// BlacklistTTL is how long a poisoned provider stays excluded.
	BlacklistTTL = 4 * time.Hour
	// poisonThreshold: a value seen from more than this many distinct leads
	// within the window marks the provider as poisoned.
	poisonThreshold = 3
)

// Alerter delivers fire-and-forget operator notifications.
type Alerter interface {
	ProviderBlacklisted(ctx context.Context, provider, reason string, ttlHours int)
}

// PoisonTracker detects entropy poison: a provider returning the same phone
// or email for many distinct leads, a symptom of a decoy or broken selector.
type PoisonTracker struct {
	redis   *database.Redis
	alerter Alerter
	logger  *slog.Logger
}

// NewPoisonTracker creates a tracker. alerter may be nil.
func NewPoisonTracker(redis *database.Redis, alerter Alerter, logger *slog.Logger) *PoisonTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &PoisonTracker{redis: redis, alerter: alerter, logger: logger}
}

// RecordDataPoint registers that leadID received value of dataType from
// provider. Returns true when this observation tripped the poison threshold
// and blacklisted the provider. Only phone and email participate.
func (t *PoisonTracker) RecordDataPoint(ctx context.Context, provider, dataType, value, leadID string) bool {
	if dataType != "phone" && dataType != "email" {
		return false
	}
	v := normalizeValue(value)
	if v == "" {
		return false
	}

	key := poisonPrefix + provider + ":" + dataType + ":" + hashValue(v)
	card, err := t.redis.SAddWithTTL(ctx, key, PoisonWindow, leadID)
	if err != nil {
		t.logger.Warn("poison record failed", slog.String("provider", provider), slog.String("error", err.Error()))
		return false
	}
	if card <= poisonThreshold {
		return false
	}

	t.logger.Warn("entropy poison detected",
		slog.String("provider", provider),
		slog.String("data_type", dataType),
		slog.Int64("distinct_leads", card),
	)
	t.Blacklist(ctx, provider, "entropy_poison")
	return true
}

// Blacklist marks a provider ineligible for BlacklistTTL and notifies the
// alert webhook. Writes are idempotent, so concurrent detections are fine.
func (t *PoisonTracker) Blacklist(ctx context.Context, provider, reason string) {
	if err := t.redis.Set(ctx, blacklistPrefix+provider, "1", BlacklistTTL); err != nil {
		t.logger.Warn("blacklist write failed", slog.String("provider", provider), slog.String("error", err.Error()))
		return
	}
	providerBlacklists.WithLabelValues(provider, reason).Inc()
	if t.alerter != nil {
		t.alerter.ProviderBlacklisted(ctx, provider, reason, int(BlacklistTTL/time.Hour))
	}
}

// IsBlacklisted reports whether a provider is currently excluded. Errors read
// as "not blacklisted" so a Redis hiccup never blocks the whole Magazine.
func (t *PoisonTracker) IsBlacklisted(ctx context.Context, provider string) bool {
	n, err := t.redis.Exists(ctx, blacklistPrefix+provider)
	if err != nil {
		return false
	}
	return n > 0
}

func normalizeValue(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func hashValue(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])[:24]
}
