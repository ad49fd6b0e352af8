package models

import "strconv"

// ProviderHealth is the per-provider (or per-carrier) success record kept in a
// Redis hash. Reads and writes are best effort; a missing hash means an
// unknown provider with a neutral score. Occasional lost updates are
// acceptable and self-correct under volume.
type ProviderHealth struct {
	Attempts      int64
	Successes     int64
	CaptchaSolves int64
	AvgLatencyMS  float64
}

// ParseProviderHealth builds a health record from a Redis hash.
func ParseProviderHealth(h map[string]string) ProviderHealth {
	var p ProviderHealth
	p.Attempts, _ = strconv.ParseInt(h["attempts"], 10, 64)
	p.Successes, _ = strconv.ParseInt(h["successes"], 10, 64)
	p.CaptchaSolves, _ = strconv.ParseInt(h["captcha_solves"], 10, 64)
	p.AvgLatencyMS, _ = strconv.ParseFloat(h["avg_latency_ms"], 64)
	return p
}

// Fields returns the hash representation written back to Redis.
func (p ProviderHealth) Fields() map[string]interface{} {
	return map[string]interface{}{
		"attempts":       p.Attempts,
		"successes":      p.Successes,
		"captcha_solves": p.CaptchaSolves,
		"avg_latency_ms": strconv.FormatFloat(p.AvgLatencyMS, 'f', 1, 64),
	}
}

// SuccessRate returns successes/attempts, or 0.5 (neutral) with no history.
func (p ProviderHealth) SuccessRate() float64 {
	if p.Attempts == 0 {
		return 0.5
	}
	return float64(p.Successes) / float64(p.Attempts)
}
