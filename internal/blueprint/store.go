// Package blueprint manages site blueprints: the selector maps the scraping
// core needs to navigate a provider site. Redis is the live store, Postgres
// and disk are durable copies, and the Dojo mapping workflow is signalled
// over pub/sub.
package blueprint

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/linkpellow/scrapeshifter/internal/database"
)

const (
	primaryPrefix = "BLUEPRINT:"
	legacyPrefix  = "blueprint:"

	dojoAlertsChannel  = "dojo:alerts"
	needMappingSet     = "dojo:domains_need_mapping"
	activeDomainPrefix = "dojo:active_domain:"
	traumaPrefix       = "trauma:"

	activeDomainTTL = time.Hour
	// TraumaTTL keeps a domain marked as recently-broken long enough for a
	// human to look at it.
	TraumaTTL = 7 * 24 * time.Hour
)

// Loaded is a blueprint resolved for a provider domain.
type Loaded struct {
	Domain    string
	Blueprint map[string]any
}

// Repository persists blueprints durably alongside the Redis live copy.
type Repository interface {
	Upsert(ctx context.Context, domain string, blueprint map[string]any, source string) error
}

// AutoMapper attempts to generate a blueprint for an unmapped domain.
// Implementations are expected to rate-limit themselves per domain.
type AutoMapper interface {
	AttemptAutoMap(ctx context.Context, domain string) (committed bool, err error)
}

// Store reads and writes blueprints.
type Store struct {
	redis  *database.Redis
	repo   Repository
	mapper AutoMapper
	dir    string
	logger *slog.Logger
}

// NewStore creates a store. repo, mapper, and dir are each optional.
func NewStore(redis *database.Redis, repo Repository, mapper AutoMapper, dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{redis: redis, repo: repo, mapper: mapper, dir: dir, logger: logger}
}

// Load fetches the blueprint for a domain, checking BLUEPRINT:{domain} then
// the legacy blueprint:{domain} key. The hash's "data" field (falling back to
// "blueprint_json") holds the full blueprint; a hash with only "instructions"
// is wrapped into a minimal blueprint. Returns nil when nothing usable exists.
func (s *Store) Load(ctx context.Context, domain string) *Loaded {
	for _, prefix := range []string{primaryPrefix, legacyPrefix} {
		raw, err := s.redis.HGetAll(ctx, prefix+domain)
		if err != nil {
			s.logger.Warn("blueprint read failed", slog.String("key", prefix+domain), slog.String("error", err.Error()))
			continue
		}
		if len(raw) == 0 {
			continue
		}

		dataStr := raw["data"]
		if dataStr == "" {
			dataStr = raw["blueprint_json"]
		}
		if dataStr != "" {
			var bp map[string]any
			if err := json.Unmarshal([]byte(dataStr), &bp); err != nil {
				s.logger.Error("blueprint JSON parse failed", slog.String("domain", domain), slog.String("error", err.Error()))
			} else {
				return &Loaded{Domain: domain, Blueprint: bp}
			}
		}

		if instr := raw["instructions"]; instr != "" {
			var parsed any
			if err := json.Unmarshal([]byte(instr), &parsed); err == nil {
				return &Loaded{Domain: domain, Blueprint: map[string]any{
					"instructions": parsed,
					"domain":       domain,
				}}
			}
		}
	}
	return nil
}

// LoadOrMap resolves a blueprint, attempting auto-mapping once when the
// domain is unmapped. When nothing works it signals the Dojo and returns nil.
func (s *Store) LoadOrMap(ctx context.Context, domain string) *Loaded {
	if bp := s.Load(ctx, domain); bp != nil {
		return bp
	}

	if s.mapper != nil {
		committed, err := s.mapper.AttemptAutoMap(ctx, domain)
		if err != nil {
			s.logger.Warn("auto-map attempt failed", slog.String("domain", domain), slog.String("error", err.Error()))
		} else if committed {
			if bp := s.Load(ctx, domain); bp != nil {
				s.logger.Info("auto-mapped blueprint loaded", slog.String("domain", domain))
				return bp
			}
		}
	}

	s.RequestMapping(ctx, domain)
	return nil
}

// RequestMapping tells the Dojo a domain needs a human (or auto) mapping
// session: publish on dojo:alerts and track in the need-mapping set.
func (s *Store) RequestMapping(ctx context.Context, domain string) {
	payload, _ := json.Marshal(map[string]string{"type": "mapping_required", "domain": domain})
	if err := s.redis.Publish(ctx, dojoAlertsChannel, string(payload)); err != nil {
		s.logger.Warn("dojo alert publish failed", slog.String("domain", domain), slog.String("error", err.Error()))
	}
	if err := s.redis.SAdd(ctx, needMappingSet, domain); err != nil {
		s.logger.Warn("need-mapping set write failed", slog.String("domain", domain), slog.String("error", err.Error()))
	}
	s.logger.Warn("no blueprint, mapping required", slog.String("domain", domain))
}

// Commit writes a blueprint everywhere it needs to live: the legacy Redis
// hash (what the loader and the scraping core consume), the blueprint
// directory on disk, and the site_blueprints table. It also marks the domain
// active for an hour and clears pending/need-mapping state.
func (s *Store) Commit(ctx context.Context, domain string, bp map[string]any, source string) error {
	data, err := json.Marshal(bp)
	if err != nil {
		return fmt.Errorf("marshal blueprint: %w", err)
	}

	ext, _ := bp["extraction"].(map[string]any)
	if ext == nil {
		ext, _ = bp["extractionPaths"].(map[string]any)
	}
	extJSON, _ := json.Marshal(ext)

	fields := map[string]any{
		"data":            string(data),
		"updated_at":      time.Now().UTC().Format(time.RFC3339),
		"name_selector":   firstString(bp["name_selector"], indexString(ext, "name_input"), indexString(ext, "search_input")),
		"result_selector": firstString(bp["result_selector"], indexString(ext, "result"), indexString(ext, "result_list")),
		"url":             firstString(bp["targetUrl"], bp["url"]),
		"extraction":      string(extJSON),
	}
	if err := s.redis.HSet(ctx, legacyPrefix+domain, fields); err != nil {
		return fmt.Errorf("write blueprint hash: %w", err)
	}

	if s.dir != "" {
		if err := os.MkdirAll(s.dir, 0o755); err == nil {
			pretty, _ := json.MarshalIndent(bp, "", "  ")
			if err := os.WriteFile(filepath.Join(s.dir, domain+".json"), pretty, 0o644); err != nil {
				s.logger.Warn("blueprint file write failed", slog.String("domain", domain), slog.String("error", err.Error()))
			}
		}
	}

	if s.repo != nil {
		if err := s.repo.Upsert(ctx, domain, bp, source); err != nil {
			// Non-fatal: Redis is the copy the pipeline reads.
			s.logger.Warn("blueprint DB upsert failed", slog.String("domain", domain), slog.String("error", err.Error()))
		}
	}

	if err := s.redis.Set(ctx, activeDomainPrefix+domain, "1", activeDomainTTL); err != nil {
		s.logger.Warn("active-domain write failed", slog.String("domain", domain), slog.String("error", err.Error()))
	}
	_ = s.redis.Delete(ctx, legacyPrefix+domain+":pending")
	_ = s.redis.SRem(ctx, needMappingSet, domain)

	s.logger.Info("blueprint committed", slog.String("domain", domain), slog.String("source", source))
	return nil
}

// DomainsNeedingMapping lists domains the Dojo has been asked to map.
func (s *Store) DomainsNeedingMapping(ctx context.Context) ([]string, error) {
	return s.redis.SMembers(ctx, needMappingSet)
}

// TraumaRecord is the JSON blob stored at trauma:{domain}.
type TraumaRecord struct {
	Selector string `json:"selector,omitempty"`
	Reason   string `json:"reason"`
	TS       string `json:"ts"`
}

// RecordTrauma marks a domain as recently broken (selector drift, bans).
// selector names the failing selector when known.
func (s *Store) RecordTrauma(ctx context.Context, domain, selector, reason string) {
	payload, err := json.Marshal(TraumaRecord{
		Selector: selector,
		Reason:   reason,
		TS:       time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, traumaPrefix+domain, string(payload), TraumaTTL); err != nil {
		s.logger.Warn("trauma write failed", slog.String("domain", domain), slog.String("error", err.Error()))
	}
}

// Trauma returns the recorded trauma reason for a domain, or "".
func (s *Store) Trauma(ctx context.Context, domain string) string {
	v, err := s.redis.Get(ctx, traumaPrefix+domain)
	if err != nil || v == "" {
		return ""
	}
	var rec TraumaRecord
	if err := json.Unmarshal([]byte(v), &rec); err == nil && rec.Reason != "" {
		return rec.Reason
	}
	// Older deployments stored the bare reason string.
	return v
}

func firstString(vals ...any) string {
	for _, v := range vals {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func indexString(m map[string]any, key string) any {
	if m == nil {
		return nil
	}
	return m[key]
}
