package pipeline

import (
	"time"

	"github.com/linkpellow/scrapeshifter/internal/models"
)

// HistoryEntry records one executed station. History is append-only and grows
// by exactly one entry per station that started.
type HistoryEntry struct {
	Station   string    `json:"station"`
	Cost      float64   `json:"cost"`
	Status    string    `json:"status"` // continue | skip_rest | fail
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Context carries a lead through the stations with full accounting. One
// Context per run; never shared across runs.
type Context struct {
	Data        models.Lead
	BudgetLimit float64

	History   []HistoryEntry
	TotalCost float64
	Errors    []string
	StartTime time.Time

	// Progress receives live events when non-nil.
	Progress ProgressSink
}

// NewContext builds a run context around a copy of the initial lead.
func NewContext(initial models.Lead, budgetLimit float64) *Context {
	return &Context{
		Data:        initial.Clone(),
		BudgetLimit: budgetLimit,
		StartTime:   time.Now(),
	}
}

// Update merges a station's delta, charges its cost, and appends history.
func (c *Context) Update(delta map[string]any, station string, cost float64, status StopCondition, errMsg string) {
	if len(delta) > 0 {
		c.Data.Merge(delta)
	}
	c.TotalCost += cost
	c.History = append(c.History, HistoryEntry{
		Station:   station,
		Cost:      cost,
		Status:    string(status),
		Timestamp: time.Now(),
		Error:     errMsg,
	})
	if errMsg != "" {
		c.Errors = append(c.Errors, station+": "+errMsg)
	}
}

// RecordError captures a failure for a station that never started (gate
// blocks, cancellation). History stays untouched: it counts only stations
// whose Process was invoked.
func (c *Context) RecordError(station, errMsg string) {
	c.Errors = append(c.Errors, station+": "+errMsg)
}

// RemainingBudget returns what the run may still spend.
func (c *Context) RemainingBudget() float64 {
	if c.TotalCost >= c.BudgetLimit {
		return 0
	}
	return c.BudgetLimit - c.TotalCost
}

// CanAfford reports whether a station with the given estimate fits the budget.
func (c *Context) CanAfford(estimate float64) bool {
	return c.TotalCost+estimate <= c.BudgetLimit
}

// Emit sends a progress event when a sink is attached. Safe on nil sinks.
func (c *Context) Emit(ev ProgressEvent) {
	if c.Progress != nil {
		c.Progress.Emit(ev)
	}
}

// EmitSubstep reports a station-internal step for live diagnosis.
func (c *Context) EmitSubstep(station, substep, detail string) {
	c.Emit(ProgressEvent{
		Type:    EventSubstep,
		Station: station,
		Substep: substep,
		Detail:  detail,
	})
}
