package handlers

import (
	"log/slog"
	"net/http"

	"github.com/marcogenualdo/session-coordinator/internal/navigation"
	"github.com/marcogenualdo/session-coordinator/internal/notify"
)

type LocationTracker interface {
	navigation.Location
	Report(path string)
	History() []navigation.Visit
}

// LocationHandler is how the view layer reports where it is and learns
// where the session store sent it.
type LocationHandler struct {
	tracker  LocationTracker
	validate *Validator
	logger   *slog.Logger
}

func NewLocationHandler(tracker LocationTracker, validate *Validator, logger *slog.Logger) *LocationHandler {
	return &LocationHandler{
		tracker:  tracker,
		validate: validate,
		logger:   logger.With("component", "location_handler"),
	}
}

type locationRequest struct {
	Path string `json:"path" validate:"required,localpath,max=2048"`
}

type locationResponse struct {
	Path    string             `json:"path"`
	History []navigation.Visit `json:"history,omitempty"`
}

func (h *LocationHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := locationResponse{Path: h.tracker.CurrentPath()}
	if r.URL.Query().Get("history") == "true" {
		resp.History = h.tracker.History()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *LocationHandler) Report(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if !decodeBody(w, r, h.validate, &req) {
		return
	}

	h.tracker.Report(req.Path)
	h.logger.Debug("view reported location", "path", req.Path)

	writeJSON(w, http.StatusOK, locationResponse{Path: req.Path})
}

type NotificationSource interface {
	Recent() []notify.Notification
}

func Notifications(source NotificationSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]notify.Notification{
			"notifications": source.Recent(),
		})
	}
}
