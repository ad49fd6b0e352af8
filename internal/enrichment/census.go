package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Demographics holds zipcode-level ACS estimates.
type Demographics struct {
	Zipcode         string `json:"zipcode"`
	MedianIncome    int    `json:"median_income"`
	MedianHomeValue int    `json:"median_home_value"`
}

// CensusClient fetches zipcode-level demographics from the ACS 5-year API.
// Demographics are best-effort context, never a hard dependency: all failures
// return (nil, error) and callers swallow the error.
type CensusClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewCensusClient(baseURL string, logger *slog.Logger) *CensusClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &CensusClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// Lookup fetches median household income and home value for a zipcode.
func (c *CensusClient) Lookup(ctx context.Context, zipcode string) (*Demographics, error) {
	if len(zipcode) != 5 {
		return nil, fmt.Errorf("invalid zipcode %q", zipcode)
	}

	q := url.Values{}
	q.Set("get", "B19013_001E,B25077_001E")
	q.Set("for", "zip code tabulation area:"+zipcode)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("census request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("census status %d", resp.StatusCode)
	}

	// The API returns a header row followed by value rows.
	var rows [][]string
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode census response: %w", err)
	}
	if len(rows) < 2 || len(rows[1]) < 2 {
		return nil, fmt.Errorf("census returned no data for %s", zipcode)
	}

	income, _ := strconv.Atoi(rows[1][0])
	home, _ := strconv.Atoi(rows[1][1])
	return &Demographics{Zipcode: zipcode, MedianIncome: income, MedianHomeValue: home}, nil
}
