package runs

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/linkpellow/scrapeshifter/internal/models"
	"github.com/linkpellow/scrapeshifter/internal/pipeline"
)

// NDJSONWriter streams progress events as newline-delimited JSON, flushing
// after every event so clients see progress in near real time.
type NDJSONWriter struct {
	mu sync.Mutex
	w  io.Writer
	f  http.Flusher
}

// NewNDJSONWriter wraps a response writer. Flushing is best-effort: a plain
// io.Writer without http.Flusher still works, just buffered.
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	nw := &NDJSONWriter{w: w}
	if f, ok := w.(http.Flusher); ok {
		nw.f = f
	}
	return nw
}

// Write emits one event line.
func (nw *NDJSONWriter) Write(event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	nw.mu.Lock()
	defer nw.mu.Unlock()
	if _, err := nw.w.Write(append(payload, '\n')); err != nil {
		return err
	}
	if nw.f != nil {
		nw.f.Flush()
	}
	return nil
}

// FinalEvent builds the run-summary event. On failure it carries the
// diagnosis so the client can show where and why without a second request.
func FinalEvent(success bool, cost float64, steps []pipeline.StepRecord, final models.Lead) pipeline.ProgressEvent {
	ev := pipeline.ProgressEvent{
		Type:    pipeline.EventFinal,
		Success: &success,
		Cost:    cost,
	}
	if !success {
		diag := Diagnose(steps, final)
		ev.FailureMode = string(diag.Mode)
		ev.FailureAt = diag.FailureAt
		ev.Hint = diag.Hint
	}
	return ev
}
