package pipeline

// Progress event types.
const (
	EventRunning = "running" // a station is about to execute
	EventStation = "station" // a station finished (Status: ok|stop|fail)
	EventSubstep = "substep" // station-internal step (telemetry, blueprint load)
	EventFinal   = "final"   // run summary
)

// ProgressEvent is one entry on the live progress stream.
type ProgressEvent struct {
	Type       string  `json:"type"`
	Station    string  `json:"station,omitempty"`
	Step       int     `json:"step,omitempty"`
	Total      int     `json:"total,omitempty"`
	Pct        float64 `json:"pct,omitempty"`
	Status     string  `json:"status,omitempty"`
	Substep    string  `json:"substep,omitempty"`
	Detail     string  `json:"detail,omitempty"`
	DurationMS int64   `json:"duration_ms,omitempty"`
	Error      string  `json:"error,omitempty"`

	// Final-event fields.
	Success     *bool   `json:"success,omitempty"`
	FailureMode string  `json:"failure_mode,omitempty"`
	FailureAt   string  `json:"failure_at,omitempty"`
	Hint        string  `json:"hint,omitempty"`
	Cost        float64 `json:"cost,omitempty"`
}

// ProgressSink receives progress events. Emit must not block: the pipeline is
// on the hot path and a slow consumer must not stall enrichment.
type ProgressSink interface {
	Emit(ProgressEvent)
}

// ChanSink is a ProgressSink over a buffered channel that drops events when
// the consumer falls behind.
type ChanSink struct {
	C chan ProgressEvent
}

// NewChanSink creates a sink with the given buffer size.
func NewChanSink(buffer int) *ChanSink {
	return &ChanSink{C: make(chan ProgressEvent, buffer)}
}

// Emit delivers the event or drops it if the buffer is full.
func (s *ChanSink) Emit(ev ProgressEvent) {
	select {
	case s.C <- ev:
	default:
	}
}

// Close closes the channel. Call only after the producing run has returned.
func (s *ChanSink) Close() {
	close(s.C)
}

// CollectorSink appends every event to an in-memory slice. Test helper and
// backing for failure-mode inference.
type CollectorSink struct {
	Events []ProgressEvent
}

// Emit appends the event.
func (s *CollectorSink) Emit(ev ProgressEvent) {
	s.Events = append(s.Events, ev)
}
