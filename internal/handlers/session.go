package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/marcogenualdo/session-coordinator/internal/auth"
	"github.com/marcogenualdo/session-coordinator/internal/gateway"
	"github.com/marcogenualdo/session-coordinator/internal/middleware"
	"github.com/marcogenualdo/session-coordinator/internal/navigation"
	"github.com/marcogenualdo/session-coordinator/internal/session"
)

// SessionService is the session store as the HTTP layer sees it.
type SessionService interface {
	Session() session.State
	SignUp(ctx context.Context, req gateway.SignUpRequest) error
	SignIn(ctx context.Context, identifier, password string) error
	SignOut(ctx context.Context) error
	ResetPassword(ctx context.Context, email string) error
}

type SessionHandler struct {
	sessions SessionService
	location navigation.Location
	validate *Validator
	logger   *slog.Logger
}

func NewSessionHandler(sessions SessionService, location navigation.Location, validate *Validator, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		location: location,
		validate: validate,
		logger:   logger.With("component", "session_handler"),
	}
}

type SessionResponse struct {
	Ready            bool       `json:"ready"`
	SignedIn         bool       `json:"signed_in"`
	User             *auth.User `json:"user"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	PasswordRecovery bool       `json:"password_recovery"`
	Path             string     `json:"path"`
}

type signUpRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6,max=72"`
	FullName    string `json:"full_name" validate:"required,max=200"`
	PhoneNumber string `json:"phone_number" validate:"required,phone"`
}

type signInRequest struct {
	Identifier string `json:"identifier" validate:"required,max=320"`
	Password   string `json:"password" validate:"required,max=72"`
}

type resetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type signOutResponse struct {
	Status string `json:"status"`
	// RemoteError is set when the provider could not revoke the session.
	// The local session is cleared regardless.
	RemoteError string `json:"remote_error,omitempty"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	st := h.sessions.Session()

	resp := SessionResponse{
		Ready:            st.Ready,
		SignedIn:         st.User != nil,
		User:             st.User,
		PasswordRecovery: st.PasswordRecovery,
		Path:             h.location.CurrentPath(),
	}
	if st.Session != nil {
		expiresAt := st.Session.ExpiresAt
		resp.ExpiresAt = &expiresAt
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *SessionHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !decodeBody(w, r, h.validate, &req) {
		return
	}

	err := h.sessions.SignUp(r.Context(), gateway.SignUpRequest{
		Email:       req.Email,
		Password:    req.Password,
		FullName:    req.FullName,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, statusResponse{Status: "registered"})
}

func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decodeBody(w, r, h.validate, &req) {
		return
	}

	if err := h.sessions.SignIn(r.Context(), req.Identifier, req.Password); err != nil {
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Status: "signed_in"})
}

func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	resp := signOutResponse{Status: "signed_out"}

	if err := h.sessions.SignOut(r.Context()); err != nil {
		h.logger.Warn("sign out completed locally only", "error", err)
		resp.RemoteError = string(auth.Classify(err))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *SessionHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decodeBody(w, r, h.validate, &req) {
		return
	}

	if err := h.sessions.ResetPassword(r.Context(), req.Email); err != nil {
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, statusResponse{Status: "reset_requested"})
}

// Token hands the access token to the view layer for calls to the data
// backend. It must sit behind RequireSession.
func (h *SessionHandler) Token(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.GetSession(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not signed in")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: s.AccessToken,
		TokenType:   s.TokenType,
		ExpiresAt:   s.ExpiresAt,
	})
}

type CSRFIssuer interface {
	GenerateCSRFToken(ctx context.Context) (string, error)
}

func CSRFToken(issuer CSRFIssuer, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := issuer.GenerateCSRFToken(r.Context())
		if err != nil {
			logger.Error("failed to issue CSRF token", "error", err)
			writeError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"csrf_token": token, "header": middleware.CSRFHeader})
	}
}
