package models

import "time"

// RunStatus is the lifecycle state of a background enrichment run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusDone    RunStatus = "done"
	RunStatusError   RunStatus = "error"
)

// RunRecord mirrors the enrich:run:{run_id} hash. Progress holds the latest
// progress event JSON; Result holds the final event JSON once the run ends.
// The hash carries a 1 hour TTL from last update.
type RunRecord struct {
	RunID     string    `json:"run_id"`
	Status    RunStatus `json:"status"`
	Progress  string    `json:"progress,omitempty"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FailureMode classifies why a streamed run failed, inferred from its
// progress history.
type FailureMode string

const (
	FailureMapping     FailureMode = "MAPPING"
	FailureSelector    FailureMode = "SELECTOR"
	FailureCaptcha     FailureMode = "CAPTCHA"
	FailureCoreTimeout FailureMode = "CORE_TIMEOUT"
	FailureCoreResult  FailureMode = "CORE_RESULT"
	FailureDownstream  FailureMode = "DOWNSTREAM"
	FailureUnknown     FailureMode = "UNKNOWN"
	FailureEmpty       FailureMode = "EMPTY"
	FailureStartup     FailureMode = "STARTUP"
)
