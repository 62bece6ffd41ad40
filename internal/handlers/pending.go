package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/marcogenualdo/session-coordinator/internal/pending"
)

type PendingStore interface {
	Peek(ctx context.Context) (*pending.Action, error)
	Set(ctx context.Context, action pending.Action) error
	Clear(ctx context.Context) error
}

// PendingHandler lets the view layer own the pending-action marker across
// an authentication round trip.
type PendingHandler struct {
	gate     PendingStore
	validate *Validator
	logger   *slog.Logger
}

func NewPendingHandler(gate PendingStore, validate *Validator, logger *slog.Logger) *PendingHandler {
	return &PendingHandler{
		gate:     gate,
		validate: validate,
		logger:   logger.With("component", "pending_handler"),
	}
}

type pendingRequest struct {
	Kind       string `json:"kind" validate:"required,max=64"`
	ResumePath string `json:"resume_path" validate:"omitempty,localpath,max=2048"`
}

type pendingResponse struct {
	Action *pending.Action `json:"action"`
}

func (h *PendingHandler) Get(w http.ResponseWriter, r *http.Request) {
	action, err := h.gate.Peek(r.Context())
	if err != nil {
		h.logger.Error("failed to read pending action", "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}

	writeJSON(w, http.StatusOK, pendingResponse{Action: action})
}

func (h *PendingHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req pendingRequest
	if !decodeBody(w, r, h.validate, &req) {
		return
	}

	action := pending.NewAction(req.Kind, req.ResumePath)
	if err := h.gate.Set(r.Context(), action); err != nil {
		h.logger.Error("failed to set pending action", "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}

	h.logger.Info("pending action set", "kind", action.Kind, "id", action.ID)
	writeJSON(w, http.StatusOK, pendingResponse{Action: &action})
}

func (h *PendingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.gate.Clear(r.Context()); err != nil {
		h.logger.Error("failed to clear pending action", "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
