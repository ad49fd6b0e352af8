package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SiteBlueprint is one durable blueprint row.
type SiteBlueprint struct {
	Domain    string         `json:"domain"`
	Blueprint map[string]any `json:"blueprint"`
	Source    string         `json:"source"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// BlueprintRepository is the durable (Postgres) side of the blueprint store.
type BlueprintRepository interface {
	Upsert(ctx context.Context, domain string, blueprint map[string]any, source string) error
	GetByDomain(ctx context.Context, domain string) (*SiteBlueprint, error)
	ListDomains(ctx context.Context) ([]string, error)
}

type blueprintRepo struct {
	pool *pgxpool.Pool
}

// NewBlueprintRepository creates a new blueprint repository.
func NewBlueprintRepository(pool *pgxpool.Pool) BlueprintRepository {
	return &blueprintRepo{pool: pool}
}

func (r *blueprintRepo) Upsert(ctx context.Context, domain string, blueprint map[string]any, source string) error {
	data, err := json.Marshal(blueprint)
	if err != nil {
		return fmt.Errorf("marshal blueprint: %w", err)
	}
	query := `
		INSERT INTO site_blueprints (domain, blueprint, source, updated_at)
		VALUES ($1, $2::jsonb, $3, NOW())
		ON CONFLICT (domain) DO UPDATE SET
			blueprint = EXCLUDED.blueprint,
			source = EXCLUDED.source,
			updated_at = NOW()`
	if _, err := r.pool.Exec(ctx, query, domain, string(data), source); err != nil {
		return fmt.Errorf("upsert blueprint: %w", err)
	}
	return nil
}

func (r *blueprintRepo) GetByDomain(ctx context.Context, domain string) (*SiteBlueprint, error) {
	query := `SELECT domain, blueprint, source, updated_at FROM site_blueprints WHERE domain = $1`
	var bp SiteBlueprint
	var raw []byte
	err := r.pool.QueryRow(ctx, query, domain).Scan(&bp.Domain, &raw, &bp.Source, &bp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &bp.Blueprint); err != nil {
		return nil, fmt.Errorf("decode blueprint for %s: %w", domain, err)
	}
	return &bp, nil
}

func (r *blueprintRepo) ListDomains(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT domain FROM site_blueprints ORDER BY domain`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
