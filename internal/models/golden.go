package models

import "time"

// GoldenRecord is the persisted, deduplicated form of an enriched lead.
// linkedin_url is the dedup key; repeated enrichment runs merge into the same
// row, never overwriting a present value with an absent one.
type GoldenRecord struct {
	ID               int64          `json:"id"`
	LinkedInURL      string         `json:"linkedin_url"`
	Name             string         `json:"name"`
	FirstName        *string        `json:"first_name,omitempty"`
	LastName         *string        `json:"last_name,omitempty"`
	Phone            *string        `json:"phone,omitempty"`
	Email            *string        `json:"email,omitempty"`
	City             *string        `json:"city,omitempty"`
	State            *string        `json:"state,omitempty"`
	Zipcode          *string        `json:"zipcode,omitempty"`
	Company          *string        `json:"company,omitempty"`
	Title            *string        `json:"title,omitempty"`
	Age              *int           `json:"age,omitempty"`
	Income           *string        `json:"income,omitempty"`
	Carrier          *string        `json:"carrier,omitempty"`
	DNCStatus        string         `json:"dnc_status"`
	CanContact       bool           `json:"can_contact"`
	ConfidenceAge    float64        `json:"confidence_age"`
	ConfidenceIncome float64        `json:"confidence_income"`
	SourceMetadata   map[string]any `json:"source_metadata"`
	EnrichedAt       *time.Time     `json:"enriched_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}
