package handler

import (
	"net/http"

	"github.com/linkpellow/scrapeshifter/internal/database"
	"github.com/linkpellow/scrapeshifter/internal/pkg/response"
)

// HealthHandler handles liveness and readiness probes.
type HealthHandler struct {
	postgres *database.Postgres
	redis    *database.Redis
}

// NewHealthHandler creates a new health handler. Either dependency may be
// nil; readiness only checks the ones that exist.
func NewHealthHandler(postgres *database.Postgres, redis *database.Redis) *HealthHandler {
	return &HealthHandler{postgres: postgres, redis: redis}
}

// Live reports process liveness.
// GET /healthz
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{"status": "ok"})
}

// Ready reports whether backing stores answer.
// GET /readyz
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	if h.postgres != nil {
		if err := h.postgres.Ping(r.Context()); err != nil {
			checks["postgres"] = err.Error()
			healthy = false
		} else {
			checks["postgres"] = "ok"
		}
	}
	if h.redis != nil {
		if err := h.redis.Ping(r.Context()); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	if !healthy {
		response.JSON(w, http.StatusServiceUnavailable, checks)
		return
	}
	response.OK(w, checks)
}
