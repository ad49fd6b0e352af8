package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	apierrors "github.com/linkpellow/scrapeshifter/internal/pkg/errors"
	"github.com/linkpellow/scrapeshifter/internal/pkg/response"
	"github.com/linkpellow/scrapeshifter/internal/service"
)

// BlueprintHandler handles site blueprint HTTP requests.
type BlueprintHandler struct {
	blueprintService service.BlueprintService
	validate         *validator.Validate
}

// NewBlueprintHandler creates a new blueprint handler.
func NewBlueprintHandler(blueprintService service.BlueprintService) *BlueprintHandler {
	return &BlueprintHandler{
		blueprintService: blueprintService,
		validate:         validator.New(),
	}
}

// Routes returns a chi router with blueprint routes.
func (h *BlueprintHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/needs-mapping", h.NeedsMapping)
	r.Get("/{domain}", h.Get)
	r.Put("/{domain}", h.Commit)
	r.Get("/{domain}/trauma", h.Trauma)

	return r
}

// List returns domains with a durable blueprint.
// GET /api/v1/blueprints
func (h *BlueprintHandler) List(w http.ResponseWriter, r *http.Request) {
	domains, err := h.blueprintService.ListDomains(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]any{"domains": domains})
}

// NeedsMapping returns domains awaiting a mapping session.
// GET /api/v1/blueprints/needs-mapping
func (h *BlueprintHandler) NeedsMapping(w http.ResponseWriter, r *http.Request) {
	domains, err := h.blueprintService.DomainsNeedingMapping(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]any{"domains": domains})
}

// Get returns the live blueprint for a domain.
// GET /api/v1/blueprints/{domain}
func (h *BlueprintHandler) Get(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	bp, err := h.blueprintService.Get(r.Context(), domain)
	if err != nil {
		response.Error(w, err)
		return
	}
	if bp == nil {
		response.NotFound(w, "Blueprint")
		return
	}
	response.OK(w, map[string]any{"domain": domain, "blueprint": bp})
}

// CommitBlueprintRequest is the HTTP request body for committing a blueprint.
type CommitBlueprintRequest struct {
	Blueprint map[string]any `json:"blueprint" validate:"required,min=1"`
	Source    string         `json:"source,omitempty" validate:"omitempty,oneof=api dojo manual"`
}

// Commit stores a blueprint for a domain and clears its mapping state.
// PUT /api/v1/blueprints/{domain}
func (h *BlueprintHandler) Commit(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")

	var req CommitBlueprintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid JSON body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, apierrors.NewValidationError("blueprint", err.Error()))
		return
	}

	if err := h.blueprintService.Commit(r.Context(), domain, req.Blueprint, req.Source); err != nil {
		response.Error(w, apierrors.ErrInternal.WithMessage(err.Error()))
		return
	}

	response.OK(w, map[string]string{"domain": domain, "status": "committed"})
}

// Trauma returns the recorded trauma reason for a domain, if any.
// GET /api/v1/blueprints/{domain}/trauma
func (h *BlueprintHandler) Trauma(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	reason := h.blueprintService.Trauma(r.Context(), domain)
	response.OK(w, map[string]any{
		"domain": domain,
		"trauma": reason != "",
		"reason": reason,
	})
}
