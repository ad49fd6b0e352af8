// Package pipeline implements the contract-based enrichment pipeline engine:
// typed stations with prerequisite checking, stop conditions, per-lead budget
// enforcement, cost accounting, and structured failure capture.
package pipeline

import (
	"context"
	"fmt"
)

// StopCondition tells the engine how to proceed after a station runs.
type StopCondition string

const (
	// Continue proceeds to the next station.
	Continue StopCondition = "continue"
	// SkipRemaining ends the run early as a success (e.g. phone rejected by
	// the carrier gate, so downstream spend would be wasted).
	SkipRemaining StopCondition = "skip_rest"
	// Fail records the failure and proceeds to the next station without
	// merging the station's delta.
	Fail StopCondition = "fail"
)

// Station is one stop on the enrichment route. Implementations must be
// re-entrant: configuration is immutable after construction and all per-run
// state lives in the Context.
type Station interface {
	// Name identifies the station in history, logs, and progress events.
	Name() string
	// RequiredInputs lists the lead keys that must be present before the
	// station runs. Missing keys skip the station, not the run.
	RequiredInputs() []string
	// ProducesOutputs lists the lead keys the station may add.
	ProducesOutputs() []string
	// CostEstimate is the monetary cost charged against the lead budget
	// when the station runs. Non-negative.
	CostEstimate() float64
	// Process runs the station. It returns a delta to merge into the lead
	// (ignored when the condition is Fail) and a stop condition. An error
	// return is equivalent to Fail; a *StationError additionally carries a
	// remediation hint into the run history.
	Process(ctx context.Context, pctx *Context) (map[string]any, StopCondition, error)
}

// StationError is a structured station failure with remediation metadata.
// Stations raise it for conditions an operator can act on; everything else
// returns a plain error.
type StationError struct {
	Step         string
	Reason       string
	SuggestedFix string
}

func (e *StationError) Error() string {
	if e.SuggestedFix != "" {
		return fmt.Sprintf("%s: %s (fix: %s)", e.Step, e.Reason, e.SuggestedFix)
	}
	return fmt.Sprintf("%s: %s", e.Step, e.Reason)
}

// Result metadata keys attached to the returned lead after a run.
const (
	KeyPipelineCost     = "_pipeline_cost"
	KeyPipelineStations = "_pipeline_stations_executed"
	KeyPipelineErrors   = "_pipeline_errors"
)

// Internal lead keys shared between stations. Underscore-prefixed keys are
// pipeline plumbing, never persisted.
const (
	KeyBlueprint       = "_blueprint"
	KeyBlueprintDomain = "_blueprint_domain"
	KeyMappingRequired = "_mapping_required"
)
