package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/linkpellow/scrapeshifter/internal/pkg/errors"
	"github.com/linkpellow/scrapeshifter/internal/pkg/response"
	"github.com/linkpellow/scrapeshifter/internal/service"
)

// SystemHandler handles the global pause switch.
type SystemHandler struct {
	enrichmentService service.EnrichmentService
}

// NewSystemHandler creates a new system handler.
func NewSystemHandler(enrichmentService service.EnrichmentService) *SystemHandler {
	return &SystemHandler{enrichmentService: enrichmentService}
}

// Routes returns a chi router with system routes.
func (h *SystemHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/state", h.State)
	r.Post("/pause", h.Pause)
	r.Post("/resume", h.Resume)

	return r
}

// State reports whether deep-search dispatch is paused.
// GET /api/v1/system/state
func (h *SystemHandler) State(w http.ResponseWriter, r *http.Request) {
	paused, reason, err := h.enrichmentService.Paused(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]any{"paused": paused, "reason": reason})
}

// PauseRequest is the HTTP request body for pausing the system.
type PauseRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Pause halts new deep-search missions until Resume.
// POST /api/v1/system/pause
func (h *SystemHandler) Pause(w http.ResponseWriter, r *http.Request) {
	var req PauseRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid JSON body"))
			return
		}
	}

	if err := h.enrichmentService.Pause(r.Context(), req.Reason); err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]string{"status": "paused"})
}

// Resume clears the pause flag.
// POST /api/v1/system/resume
func (h *SystemHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.enrichmentService.Resume(r.Context()); err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]string{"status": "running"})
}
