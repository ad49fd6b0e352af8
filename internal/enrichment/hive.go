package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// HiveClient talks to the hive-mind predictor service, which learns which
// provider finds data for leads with a given company/city/title shape. Both
// calls are best-effort hints: any failure means "no opinion".
type HiveClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHiveClient creates a client. An empty baseURL disables the hive.
func NewHiveClient(baseURL string, logger *slog.Logger) *HiveClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &HiveClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		logger:  logger,
	}
}

// PredictProvider asks the hive which provider to try first for a lead shape.
// Returns "" when the hive is disabled, unreachable, or has no prediction.
func (h *HiveClient) PredictProvider(ctx context.Context, company, city, title string) string {
	if h.baseURL == "" {
		return ""
	}
	body, _ := json.Marshal(map[string]string{
		"company": company,
		"city":    city,
		"title":   title,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/predict-path", bytes.NewReader(body))
	if err != nil {
		return ""
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var out struct {
		Provider string `json:"provider"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ""
	}
	return out.Provider
}

// StorePattern reports back which provider found which datatypes for a lead
// shape, feeding the predictor.
func (h *HiveClient) StorePattern(ctx context.Context, company, city, title, provider string, datatypes []string) {
	if h.baseURL == "" {
		return
	}
	body, _ := json.Marshal(map[string]any{
		"company":   company,
		"city":      city,
		"title":     title,
		"provider":  provider,
		"datatypes": datatypes,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/store-pattern", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Debug("hive store-pattern failed", slog.String("error", err.Error()))
		return
	}
	resp.Body.Close()
}
