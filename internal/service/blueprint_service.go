package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/linkpellow/scrapeshifter/internal/blueprint"
	"github.com/linkpellow/scrapeshifter/internal/repository"
	"github.com/linkpellow/scrapeshifter/internal/router"
)

// BlueprintService is the admin surface over site blueprints.
type BlueprintService interface {
	// Get returns the live blueprint for a domain (Redis first, then the
	// durable copy), or nil when unmapped.
	Get(ctx context.Context, domain string) (map[string]any, error)
	// Commit stores a blueprint everywhere and clears mapping state.
	Commit(ctx context.Context, domain string, bp map[string]any, source string) error
	// ListDomains lists domains with a durable blueprint.
	ListDomains(ctx context.Context) ([]string, error)
	// DomainsNeedingMapping lists domains awaiting a mapping session.
	DomainsNeedingMapping(ctx context.Context) ([]string, error)
	// Trauma returns the recorded trauma reason for a domain, or "".
	Trauma(ctx context.Context, domain string) string
}

type blueprintService struct {
	store *blueprint.Store
	repo  repository.BlueprintRepository
}

// NewBlueprintService creates the service. repo may be nil (Redis only).
func NewBlueprintService(store *blueprint.Store, repo repository.BlueprintRepository) BlueprintService {
	return &blueprintService{store: store, repo: repo}
}

func (s *blueprintService) Get(ctx context.Context, domain string) (map[string]any, error) {
	if loaded := s.store.Load(ctx, domain); loaded != nil {
		return loaded.Blueprint, nil
	}
	if s.repo != nil {
		row, err := s.repo.GetByDomain(ctx, domain)
		if err != nil {
			return nil, err
		}
		if row != nil {
			return row.Blueprint, nil
		}
	}
	return nil, nil
}

func (s *blueprintService) Commit(ctx context.Context, domain string, bp map[string]any, source string) error {
	if domain == "" {
		return errors.New("domain is required")
	}
	if len(bp) == 0 {
		return fmt.Errorf("empty blueprint for %s", domain)
	}
	if source == "" {
		source = "api"
	}
	return s.store.Commit(ctx, domain, bp, source)
}

func (s *blueprintService) ListDomains(ctx context.Context) ([]string, error) {
	if s.repo != nil {
		return s.repo.ListDomains(ctx)
	}
	// Without a durable store, the Magazine's domains are the universe.
	out := make([]string, 0, len(router.Magazine))
	for _, p := range router.Magazine {
		out = append(out, router.ProviderDomain(p))
	}
	return out, nil
}

func (s *blueprintService) DomainsNeedingMapping(ctx context.Context) ([]string, error) {
	return s.store.DomainsNeedingMapping(ctx)
}

func (s *blueprintService) Trauma(ctx context.Context, domain string) string {
	return s.store.Trauma(ctx, domain)
}
