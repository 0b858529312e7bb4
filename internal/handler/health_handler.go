package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"groupbuy-be/internal/container"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	container *container.Container
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(c *container.Container) *HealthHandler {
	return &HealthHandler{container: c}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Service   string            `json:"service"`
	Checks    map[string]string `json:"checks"`
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	log := h.container.GetLogger()
	ctx := r.Context()

	checks := map[string]string{}
	status := "healthy"
	code := http.StatusOK

	if err := h.container.DB.Health(ctx); err != nil {
		log.WithError(err).Error("database health check failed")
		checks["database"] = "unhealthy"
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	} else {
		checks["database"] = "healthy"
	}

	if h.container.HasRedis() {
		if err := h.container.RedisClient.Health(ctx); err != nil {
			log.WithError(err).Warn("redis health check failed")
			checks["redis"] = "unhealthy"
		} else {
			checks["redis"] = "healthy"
		}
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Service:   "groupbuy-be",
		Checks:    checks,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.WithError(err).Error("Failed to encode health check response")
	}
}
