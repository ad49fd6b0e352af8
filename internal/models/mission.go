package models

import "encoding/json"

// Mission is one unit of work dispatched to the browser worker fleet.
// Serialized onto the chimera:missions list; the reply arrives on
// chimera:results:{mission_id}.
type Mission struct {
	MissionID      string         `json:"mission_id"`
	Lead           Lead           `json:"lead"`
	Instruction    string         `json:"instruction"`
	LinkedInURL    string         `json:"linkedin_url,omitempty"`
	Target         string         `json:"target"`
	TargetProvider string         `json:"target_provider"`
	Carrier        string         `json:"carrier,omitempty"`
	Blueprint      map[string]any `json:"blueprint,omitempty"`
}

// MissionResult is the worker fleet's reply.
type MissionResult struct {
	MissionID        string   `json:"mission_id"`
	Status           string   `json:"status"` // "completed" | "failed"
	Phone            string   `json:"phone,omitempty"`
	Age              *float64 `json:"age,omitempty"`
	Income           any      `json:"income,omitempty"` // string or number
	Email            string   `json:"email,omitempty"`
	CaptchaSolved    bool     `json:"captcha_solved,omitempty"`
	VisionConfidence *float64 `json:"vision_confidence,omitempty"`
	Error            string   `json:"error,omitempty"`

	// Raw preserves the full reply object for downstream consensus checks
	// and the chimera_raw passthrough.
	Raw map[string]any `json:"-"`
}

// ParseMissionResult decodes a worker reply. The payload must be a JSON
// object; bare strings, arrays, and scalars are parse errors.
func ParseMissionResult(raw []byte) (*MissionResult, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}
	var res MissionResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &res.Raw); err != nil {
		return nil, err
	}
	return &res, nil
}

// Failed reports whether the worker explicitly failed the mission.
func (r *MissionResult) Failed() bool {
	return r.Status == "failed"
}

// DatatypesFound lists which of phone/age/income the reply carries,
// for router health accounting.
func (r *MissionResult) DatatypesFound() []string {
	var found []string
	if r.Phone != "" {
		found = append(found, "phone")
	}
	if r.Age != nil {
		found = append(found, "age")
	}
	if r.Income != nil {
		found = append(found, "income")
	}
	return found
}
