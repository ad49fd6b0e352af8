// Package handler provides HTTP handlers for the control plane API.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/linkpellow/scrapeshifter/internal/models"
	apierrors "github.com/linkpellow/scrapeshifter/internal/pkg/errors"
	"github.com/linkpellow/scrapeshifter/internal/pkg/response"
	"github.com/linkpellow/scrapeshifter/internal/service"
)

// EnrichmentHandler handles enrichment run and queue HTTP requests.
type EnrichmentHandler struct {
	enrichmentService service.EnrichmentService
}

// NewEnrichmentHandler creates a new enrichment handler.
func NewEnrichmentHandler(enrichmentService service.EnrichmentService) *EnrichmentHandler {
	return &EnrichmentHandler{enrichmentService: enrichmentService}
}

// Routes returns a chi router with enrichment routes.
func (h *EnrichmentHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/runs", h.StartRun)
	r.Get("/runs/{id}", h.GetRun)
	r.Post("/runs/stream", h.StreamRun)

	r.Post("/leads", h.EnqueueLead)
	r.Get("/queue", h.QueueStatus)

	r.Get("/dlq", h.ListDLQ)
	r.Post("/dlq/retry", h.RetryDLQ)
	r.Post("/dlq/retry/{index}", h.RetryDLQItem)

	return r
}

// decodeLead reads a lead payload from the request body.
func decodeLead(r *http.Request) (models.Lead, error) {
	var lead models.Lead
	if err := json.NewDecoder(r.Body).Decode(&lead); err != nil {
		return nil, apierrors.ErrBadRequest.WithMessage("Invalid JSON body")
	}
	if len(lead) == 0 {
		return nil, apierrors.NewValidationError("lead", "lead must not be empty")
	}
	if lead.DisplayName() == "" && lead.LinkedInURL() == "" {
		return nil, apierrors.NewValidationError("lead", "lead needs a name or a linkedinUrl")
	}
	return lead, nil
}

// StartRun kicks off a background enrichment run.
// POST /api/v1/enrichment/runs
func (h *EnrichmentHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	lead, err := decodeLead(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	runID, err := h.enrichmentService.StartRun(r.Context(), lead)
	if err != nil {
		response.Error(w, apierrors.ErrInternal.WithMessage(err.Error()))
		return
	}

	response.Accepted(w, map[string]string{"run_id": runID})
}

// GetRun returns the state of a background run.
// GET /api/v1/enrichment/runs/{id}
func (h *EnrichmentHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if runID == "" {
		response.BadRequest(w, "run ID is required")
		return
	}

	run, err := h.enrichmentService.GetRun(r.Context(), runID)
	if err != nil {
		response.Error(w, err)
		return
	}
	if run == nil {
		response.NotFound(w, "Run")
		return
	}

	response.OK(w, run)
}

// StreamRun runs the pipeline synchronously, streaming NDJSON progress events.
// POST /api/v1/enrichment/runs/stream
func (h *EnrichmentHandler) StreamRun(w http.ResponseWriter, r *http.Request) {
	lead, err := decodeLead(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Headers are out; any failure from here on surfaces in the event
	// stream, not as an HTTP status.
	_ = h.enrichmentService.StreamRun(r.Context(), lead, w)
}

// EnqueueLead pushes a lead onto the worker queue.
// POST /api/v1/enrichment/leads
func (h *EnrichmentHandler) EnqueueLead(w http.ResponseWriter, r *http.Request) {
	lead, err := decodeLead(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	if err := h.enrichmentService.EnqueueLead(r.Context(), lead); err != nil {
		response.Error(w, apierrors.ErrServiceUnavailable.WithMessage("Failed to enqueue lead"))
		return
	}

	response.Accepted(w, map[string]string{"status": "queued"})
}

// QueueStatus reports queue depths and the pause flag.
// GET /api/v1/enrichment/queue
func (h *EnrichmentHandler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.enrichmentService.QueueStatus(r.Context())
	if err != nil {
		response.Error(w, apierrors.ErrServiceUnavailable.WithMessage("Failed to read queue status"))
		return
	}

	response.OK(w, status)
}

// ListDLQ returns dead-lettered lead payloads.
// GET /api/v1/enrichment/dlq?limit=N
func (h *EnrichmentHandler) ListDLQ(w http.ResponseWriter, r *http.Request) {
	limit := int64(100)
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			response.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	items, err := h.enrichmentService.ListDLQ(r.Context(), limit)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, map[string]any{
		"count": len(items),
		"items": items,
	})
}

// RetryDLQ moves dead-lettered leads back onto the queue.
// POST /api/v1/enrichment/dlq/retry?max=N
func (h *EnrichmentHandler) RetryDLQ(w http.ResponseWriter, r *http.Request) {
	max := int64(100)
	if v := r.URL.Query().Get("max"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			response.BadRequest(w, "max must be a positive integer")
			return
		}
		max = n
	}

	moved, err := h.enrichmentService.RetryDLQ(r.Context(), max)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, map[string]int64{"moved": moved})
}

// RetryDLQItem re-queues a single DLQ entry by index.
// POST /api/v1/enrichment/dlq/retry/{index}
func (h *EnrichmentHandler) RetryDLQItem(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseInt(chi.URLParam(r, "index"), 10, 64)
	if err != nil || index < 0 {
		response.BadRequest(w, "index must be a non-negative integer")
		return
	}

	if err := h.enrichmentService.RetryDLQItem(r.Context(), index); err != nil {
		response.Error(w, apierrors.NewNotFoundError("DLQ entry"))
		return
	}

	response.OK(w, map[string]string{"status": "requeued"})
}
