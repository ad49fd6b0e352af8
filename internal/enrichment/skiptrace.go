package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// SkipTraceCost is charged only when the paid lookup actually runs.
const SkipTraceCost = 0.15

// SkipTraceResult carries whatever the paid source returned.
type SkipTraceResult struct {
	Phone   string  `json:"phone"`
	Email   string  `json:"email"`
	Age     *int    `json:"age"`
	Address string  `json:"address"`
	Cost    float64 `json:"cost"`
}

// SkipTracer resolves contact info from identity fields.
type SkipTracer interface {
	Trace(ctx context.Context, firstName, lastName, city, state string) (*SkipTraceResult, error)
}

// RapidSkipTracer calls the paid skip-tracing API. It is only invoked when the
// free providers came up empty; callers gate it on missing phone data.
type RapidSkipTracer struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewRapidSkipTracer creates a tracer. An empty apiKey disables it.
func NewRapidSkipTracer(apiKey, baseURL string, logger *slog.Logger) *RapidSkipTracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RapidSkipTracer{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

type rapidSkipResponse struct {
	Results []struct {
		Phone   string `json:"phone"`
		Email   string `json:"email"`
		Age     *int   `json:"age"`
		Address string `json:"address"`
	} `json:"results"`
}

// Trace runs the paid lookup. A disabled client returns (nil, nil) so the
// station can record "nothing found" without charging the budget.
func (t *RapidSkipTracer) Trace(ctx context.Context, firstName, lastName, city, state string) (*SkipTraceResult, error) {
	if t.apiKey == "" || firstName == "" || lastName == "" {
		return nil, nil
	}

	q := url.Values{}
	q.Set("first_name", firstName)
	q.Set("last_name", lastName)
	if city != "" {
		q.Set("city", city)
	}
	if state != "" {
		q.Set("state", state)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build skip trace request: %w", err)
	}
	req.Header.Set("x-rapidapi-key", t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("skip trace request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("skip trace status %d", resp.StatusCode)
	}

	var sr rapidSkipResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode skip trace response: %w", err)
	}
	if len(sr.Results) == 0 {
		// The call still happened, so it still costs.
		return &SkipTraceResult{Cost: SkipTraceCost}, nil
	}

	r := sr.Results[0]
	return &SkipTraceResult{
		Phone:   r.Phone,
		Email:   r.Email,
		Age:     r.Age,
		Address: r.Address,
		Cost:    SkipTraceCost,
	}, nil
}
