package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const telnyxLookupURL = "https://api.telnyx.com/v2/number_lookup/"

// PhoneValidation is the distilled result of a carrier lookup.
type PhoneValidation struct {
	Phone       string `json:"phone"`
	LineType    string `json:"line_type"` // mobile, landline, voip, unknown
	CarrierName string `json:"carrier_name"`
	Valid       bool   `json:"valid"`
}

// IsMobile reports whether the number is worth texting.
func (v PhoneValidation) IsMobile() bool {
	return strings.EqualFold(v.LineType, "mobile")
}

// PhoneValidator looks up line type and carrier for a phone number.
type PhoneValidator interface {
	Validate(ctx context.Context, phone string) (*PhoneValidation, error)
}

// TelnyxClient validates phone numbers against the Telnyx number-lookup API.
// Lookups fail open: a dead or unconfigured API yields a Valid result with
// LineType "unknown" rather than blocking enrichment.
type TelnyxClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewTelnyxClient creates a validator. An empty apiKey disables lookups.
func NewTelnyxClient(apiKey string, timeout time.Duration, logger *slog.Logger) *TelnyxClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TelnyxClient{
		apiKey:  apiKey,
		baseURL: telnyxLookupURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// WithBaseURL overrides the API endpoint, for tests.
func (c *TelnyxClient) WithBaseURL(base string) *TelnyxClient {
	c.baseURL = strings.TrimSuffix(base, "/") + "/"
	return c
}

type telnyxResponse struct {
	Data struct {
		Valid   bool `json:"valid"`
		Carrier struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"carrier"`
	} `json:"data"`
}

// Validate performs a carrier lookup for a US phone number.
func (c *TelnyxClient) Validate(ctx context.Context, phone string) (*PhoneValidation, error) {
	digits := digitsOnly(phone)
	if len(digits) == 10 {
		digits = "1" + digits
	}
	fallback := &PhoneValidation{Phone: phone, LineType: "unknown", Valid: true}
	if c.apiKey == "" || len(digits) != 11 {
		return fallback, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+url.PathEscape("+"+digits)+"?type=carrier", nil)
	if err != nil {
		return fallback, nil
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("telnyx lookup failed", slog.String("error", err.Error()))
		return fallback, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		c.logger.Warn("telnyx lookup rejected", slog.Int("status", resp.StatusCode))
		return fallback, nil
	}

	var tr telnyxResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return fallback, fmt.Errorf("decode telnyx response: %w", err)
	}

	lineType := strings.ToLower(tr.Data.Carrier.Type)
	if lineType == "" {
		lineType = "unknown"
	}
	return &PhoneValidation{
		Phone:       phone,
		LineType:    lineType,
		CarrierName: tr.Data.Carrier.Name,
		Valid:       tr.Data.Valid,
	}, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
