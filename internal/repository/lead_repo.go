// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linkpellow/scrapeshifter/internal/models"
)

// LeadRepository persists Golden Records.
type LeadRepository interface {
	// Save upserts the enriched lead keyed on linkedin_url and returns the
	// row id. Present values win over absent ones in the merge.
	Save(ctx context.Context, lead models.Lead) (int64, error)
	GetByLinkedInURL(ctx context.Context, linkedinURL string) (*models.GoldenRecord, error)
	ListRecent(ctx context.Context, limit int) ([]*models.GoldenRecord, error)
	Count(ctx context.Context) (int, error)
}

type leadRepo struct {
	pool *pgxpool.Pool
}

// NewLeadRepository creates a new lead repository.
func NewLeadRepository(pool *pgxpool.Pool) LeadRepository {
	return &leadRepo{pool: pool}
}

// Save upserts the Golden Record. COALESCE on the conflict branch keeps the
// freshest non-null value per column.
func (r *leadRepo) Save(ctx context.Context, lead models.Lead) (int64, error) {
	linkedinURL := lead.LinkedInURL()
	if linkedinURL == "" {
		return 0, errors.New("lead has no linkedin_url, cannot deduplicate")
	}

	name := lead.DisplayName()
	title := lead.Title()
	age := extractAge(lead)
	income := extractIncome(lead)

	confAge := ConfidenceAge(age, title)
	confIncome := ConfidenceIncome(income, title)

	meta, err := json.Marshal(buildSourceMetadata(lead, age, income, title, confAge, confIncome))
	if err != nil {
		return 0, fmt.Errorf("marshal source metadata: %w", err)
	}

	query := `
		INSERT INTO leads (
			linkedin_url, name, first_name, last_name, phone, email,
			city, state, zipcode, company, title, age, income, carrier,
			dnc_status, can_contact, confidence_age, confidence_income,
			source_metadata, enriched_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19::jsonb, NOW())
		ON CONFLICT (linkedin_url) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), leads.name),
			first_name = COALESCE(EXCLUDED.first_name, leads.first_name),
			last_name = COALESCE(EXCLUDED.last_name, leads.last_name),
			phone = COALESCE(EXCLUDED.phone, leads.phone),
			email = COALESCE(EXCLUDED.email, leads.email),
			city = COALESCE(EXCLUDED.city, leads.city),
			state = COALESCE(EXCLUDED.state, leads.state),
			zipcode = COALESCE(EXCLUDED.zipcode, leads.zipcode),
			company = COALESCE(EXCLUDED.company, leads.company),
			title = COALESCE(EXCLUDED.title, leads.title),
			age = COALESCE(EXCLUDED.age, leads.age),
			income = COALESCE(EXCLUDED.income, leads.income),
			carrier = COALESCE(EXCLUDED.carrier, leads.carrier),
			dnc_status = EXCLUDED.dnc_status,
			can_contact = EXCLUDED.can_contact,
			confidence_age = EXCLUDED.confidence_age,
			confidence_income = EXCLUDED.confidence_income,
			source_metadata = EXCLUDED.source_metadata,
			enriched_at = NOW(),
			updated_at = NOW()
		RETURNING id`

	dncStatus := lead.GetString("dnc_status")
	if dncStatus == "" {
		dncStatus = "UNKNOWN"
	}
	canContact, _ := lead["can_contact"].(bool)

	var id int64
	err = r.pool.QueryRow(ctx, query,
		linkedinURL,
		name,
		nullable(lead.GetString("firstName", "first_name")),
		nullable(lead.GetString("lastName", "last_name")),
		nullable(lead.GetString("phone", "chimera_phone")),
		nullable(lead.GetString("email", "chimera_email")),
		nullable(lead.GetString("city")),
		nullable(lead.GetString("state")),
		nullable(lead.GetString("zipcode")),
		nullable(lead.Company()),
		nullable(title),
		age,
		income,
		nullable(lead.GetString("carrier")),
		dncStatus,
		canContact,
		confAge,
		confIncome,
		string(meta),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert lead: %w", err)
	}
	return id, nil
}

// GetByLinkedInURL fetches one Golden Record, or nil when absent.
func (r *leadRepo) GetByLinkedInURL(ctx context.Context, linkedinURL string) (*models.GoldenRecord, error) {
	query := selectColumns + ` FROM leads WHERE linkedin_url = $1`
	rec, err := scanRecord(r.pool.QueryRow(ctx, query, linkedinURL))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// ListRecent returns the most recently enriched records.
func (r *leadRepo) ListRecent(ctx context.Context, limit int) ([]*models.GoldenRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := selectColumns + ` FROM leads ORDER BY enriched_at DESC NULLS LAST LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.GoldenRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the total number of Golden Records.
func (r *leadRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM leads`).Scan(&n)
	return n, err
}

const selectColumns = `
	SELECT id, linkedin_url, name, first_name, last_name, phone, email,
	       city, state, zipcode, company, title, age, income, carrier,
	       dnc_status, can_contact, confidence_age, confidence_income,
	       source_metadata, enriched_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.GoldenRecord, error) {
	var rec models.GoldenRecord
	var meta []byte
	err := row.Scan(
		&rec.ID, &rec.LinkedInURL, &rec.Name, &rec.FirstName, &rec.LastName,
		&rec.Phone, &rec.Email, &rec.City, &rec.State, &rec.Zipcode,
		&rec.Company, &rec.Title, &rec.Age, &rec.Income, &rec.Carrier,
		&rec.DNCStatus, &rec.CanContact, &rec.ConfidenceAge, &rec.ConfidenceIncome,
		&meta, &rec.EnrichedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &rec.SourceMetadata)
	}
	return &rec, nil
}

// ConfidenceIncome scores how believable an income is given the lead's title.
// A junior title with six-figure income is the classic poisoned-extraction
// shape, so it scores low and gets flagged for manual review.
func ConfidenceIncome(income *string, title string) float64 {
	if income == nil || title == "" {
		return 1.0
	}
	val, ok := parseIncome(*income)
	if !ok {
		return 1.0
	}
	t := strings.ToLower(title)
	junior := strings.Contains(t, "junior") || strings.Contains(t, "associate") || strings.Contains(t, "intern")
	if junior && val > 100_000 {
		return 0.3
	}
	return 1.0
}

// ConfidenceAge scores how believable an age is given the lead's title.
// Age past typical retirement with a non-retiree title is suspicious.
func ConfidenceAge(age *int, title string) float64 {
	if age == nil {
		return 1.0
	}
	if *age > 59 && title != "" && !strings.Contains(strings.ToLower(title), "retir") {
		return 0.6
	}
	return 1.0
}

// needsManualCheck mirrors the review queue trigger: either confidence below
// its threshold flags the record.
func needsManualCheck(confAge, confIncome float64) bool {
	return confAge < 0.7 || confIncome < 0.5
}

func buildSourceMetadata(lead models.Lead, age *int, income *string, title string, confAge, confIncome float64) map[string]any {
	sources := map[string]string{}
	if age != nil {
		if _, ok := lead["chimera_age"]; ok {
			sources["age"] = "chimera"
		} else {
			sources["age"] = "census"
		}
	}
	if income != nil {
		if _, ok := lead["chimera_income"]; ok {
			sources["income"] = "chimera"
		} else {
			sources["income"] = "census"
		}
	}
	meta := map[string]any{
		"sources":         sources,
		"needs_vlm_check": needsManualCheck(confAge, confIncome),
		"title":           title,
	}
	for _, flag := range []string{"NEEDS_RECONCILIATION", "NEEDS_OLMOCR_VERIFICATION"} {
		if v, ok := lead[flag].(bool); ok && v {
			meta[flag] = true
		}
	}
	return meta
}

func extractAge(lead models.Lead) *int {
	for _, key := range []string{"age", "chimera_age"} {
		switch v := lead[key].(type) {
		case float64:
			a := int(v)
			return &a
		case int:
			a := v
			return &a
		case string:
			if a, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return &a
			}
		}
	}
	return nil
}

func extractIncome(lead models.Lead) *string {
	for _, key := range []string{"income", "median_income", "chimera_income"} {
		switch v := lead[key].(type) {
		case string:
			if v != "" {
				return &v
			}
		case float64:
			s := strconv.FormatInt(int64(v), 10)
			return &s
		case int:
			s := strconv.Itoa(v)
			return &s
		}
	}
	return nil
}

// parseIncome handles "$120,000", "120k", and plain numbers.
func parseIncome(s string) (int, bool) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	if strings.HasSuffix(s, "k") || strings.HasSuffix(s, "K") {
		s = s[:len(s)-1] + "000"
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
