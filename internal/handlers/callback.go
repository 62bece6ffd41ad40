package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/marcogenualdo/session-coordinator/internal/auth"
	"github.com/marcogenualdo/session-coordinator/internal/auth/oidc"
	"github.com/marcogenualdo/session-coordinator/internal/navigation"
	"github.com/marcogenualdo/session-coordinator/internal/pending"
)

// RedirectFlow is the provider's authorization-code login.
type RedirectFlow interface {
	AuthCodeURL(ctx context.Context, redirectURL string, recovery bool) (string, error)
	ExchangeCode(ctx context.Context, state, code string) (*oidc.Login, error)
}

type PendingReader interface {
	Peek(ctx context.Context) (*pending.Action, error)
}

type CallbackHandler struct {
	flow        RedirectFlow
	callbackURL string
	pending     PendingReader
	location    navigation.Location
	policy      navigation.Policy
	resetRoute  string
	logger      *slog.Logger
}

func NewCallbackHandler(flow RedirectFlow, callbackURL string, pending PendingReader, location navigation.Location, policy navigation.Policy, resetRoute string, logger *slog.Logger) *CallbackHandler {
	return &CallbackHandler{
		flow:        flow,
		callbackURL: callbackURL,
		pending:     pending,
		location:    location,
		policy:      policy,
		resetRoute:  resetRoute,
		logger:      logger.With("component", "oidc_callback"),
	}
}

// Login redirects to the provider. ?recovery=true starts a password
// recovery login.
func (h *CallbackHandler) Login(w http.ResponseWriter, r *http.Request) {
	recovery := r.URL.Query().Get("recovery") == "true"

	authURL, err := h.flow.AuthCodeURL(r.Context(), h.callbackURL, recovery)
	if err != nil {
		h.logger.Error("failed to start login", "error", err)
		writeAuthError(w, err)
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback completes the login. The session store learns of it through
// the provider's event, so this only picks where the browser lands: the
// pending action's resume path, the reset route after a recovery link, or
// the destination the store's policy picks for the current path. The
// store's own navigation runs later and reaches the same target.
func (h *CallbackHandler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if providerErr := query.Get("error"); providerErr != "" {
		h.logger.Warn("provider rejected login", "error", providerErr, "description", query.Get("error_description"))
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: auth.ErrInvalidCredential.Error(), Kind: auth.KindInvalidCredential})
		return
	}

	login, err := h.flow.ExchangeCode(r.Context(), query.Get("state"), query.Get("code"))
	if err != nil {
		h.logger.Warn("callback failed", "error", err)
		if errors.Is(err, oidc.ErrInvalidState) || query.Get("code") == "" || query.Get("state") == "" {
			writeError(w, http.StatusBadRequest, "invalid or expired login attempt")
			return
		}
		writeAuthError(w, err)
		return
	}

	h.logger.Info("authentication successful", "user_id", login.Session.User.ID, "recovery", login.Recovery)

	http.Redirect(w, r, h.landing(r.Context(), login.Recovery), http.StatusFound)
}

func (h *CallbackHandler) landing(ctx context.Context, recovery bool) string {
	action, err := h.pending.Peek(ctx)
	if err != nil {
		h.logger.Warn("failed to read pending action", "error", err)
	}
	if action != nil && action.ResumePath != "" {
		if navigation.IsLocalPath(action.ResumePath) {
			return action.ResumePath
		}
		h.logger.Warn("ignoring off-site resume path", "resume_path", action.ResumePath)
	}

	if recovery {
		return h.resetRoute
	}

	current := h.location.CurrentPath()
	target, ok := h.policy.Decide(navigation.Input{
		Event:         auth.EventSignedIn,
		CurrentPath:   current,
		PendingAction: action != nil || err != nil,
	})
	switch {
	case ok:
		return target
	case navigation.IsLocalPath(current):
		return current
	default:
		return "/"
	}
}
