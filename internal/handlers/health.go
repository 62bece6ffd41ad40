package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/marcogenualdo/session-coordinator/internal/storage"
)

type HealthChecker interface {
	Healthy(ctx context.Context) error
}

type HealthHandler struct {
	storageType string
	store       storage.Store
	provider    HealthChecker
	sessions    SessionService
	logger      *slog.Logger
	startTime   time.Time
}

func NewHealthHandler(storageType string, store storage.Store, provider HealthChecker, sessions SessionService, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		storageType: storageType,
		store:       store,
		provider:    provider,
		sessions:    sessions,
		logger:      logger.With("component", "health"),
		startTime:   time.Now(),
	}
}

type HealthResponse struct {
	Status   string         `json:"status"`
	Uptime   string         `json:"uptime"`
	Storage  StorageHealth  `json:"storage"`
	Provider ProviderHealth `json:"provider"`
	Ready    bool           `json:"session_ready"`
}

type StorageHealth struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

type ProviderHealth struct {
	Status string `json:"status"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status: "healthy",
		Uptime: time.Since(h.startTime).String(),
		Ready:  h.sessions.Session().Ready,
	}

	response.Storage.Type = h.storageType
	if err := h.store.Set(ctx, "health:check", []byte("ok"), time.Minute); err != nil {
		h.logger.Warn("storage health check failed", "error", err)
		response.Storage.Status = "unreachable"
		response.Status = "degraded"
	} else {
		response.Storage.Status = "connected"
		h.store.Remove(ctx, "health:check")
	}

	if err := h.provider.Healthy(ctx); err != nil {
		h.logger.Warn("provider health check failed", "error", err)
		response.Provider.Status = "unreachable"
		response.Status = "degraded"
	} else {
		response.Provider.Status = "reachable"
	}

	status := http.StatusOK
	if response.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, response)
}
