package server

import (
	"net/http"
	"strings"

	"github.com/marcogenualdo/session-coordinator/internal/handlers"
	"github.com/marcogenualdo/session-coordinator/internal/middleware"
	"github.com/marcogenualdo/session-coordinator/internal/navigation"
)

const callbackPath = "/auth/oidc/callback"

// Handler returns the full middleware-wrapped router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	validate := handlers.NewValidator()
	csrfMiddleware := middleware.NewCSRFMiddleware(s.deps.Storage, s.logger)
	authMiddleware := middleware.NewAuthMiddleware(s.deps.Sessions, s.logger)

	sessionHandler := handlers.NewSessionHandler(s.deps.Sessions, s.deps.Tracker, validate, s.logger)
	pendingHandler := handlers.NewPendingHandler(s.deps.Pending, validate, s.logger)
	locationHandler := handlers.NewLocationHandler(s.deps.Tracker, validate, s.logger)
	callbackHandler := handlers.NewCallbackHandler(
		s.deps.Provider,
		strings.TrimRight(s.cfg.Server.BaseURL, "/")+callbackPath,
		s.deps.Pending,
		s.deps.Tracker,
		navigation.Policy{
			EntryPaths:         s.cfg.Navigation.EntryPaths,
			AuthenticatedRoute: s.cfg.Navigation.AuthenticatedRoute,
		},
		s.cfg.Navigation.ResetPasswordRoute,
		s.logger,
	)
	healthHandler := handlers.NewHealthHandler(s.cfg.Storage.Type, s.deps.Storage, s.deps.Provider, s.deps.Sessions, s.logger)

	limited := func(h http.HandlerFunc) http.Handler { return s.limiter.Limit(h) }
	protected := func(h http.HandlerFunc) http.Handler { return csrfMiddleware.ValidateCSRF(h) }

	mux.HandleFunc("GET /auth/session", sessionHandler.Get)
	mux.Handle("POST /auth/signup", limited(sessionHandler.SignUp))
	mux.Handle("POST /auth/signin", limited(sessionHandler.SignIn))
	mux.Handle("POST /auth/signout", protected(sessionHandler.SignOut))
	mux.Handle("POST /auth/reset", limited(sessionHandler.ResetPassword))
	mux.HandleFunc("GET /auth/csrf", handlers.CSRFToken(csrfMiddleware, s.logger))
	mux.Handle("GET /auth/token", authMiddleware.RequireSession(http.HandlerFunc(sessionHandler.Token)))

	mux.HandleFunc("GET /auth/pending", pendingHandler.Get)
	mux.Handle("PUT /auth/pending", protected(pendingHandler.Put))
	mux.Handle("DELETE /auth/pending", protected(pendingHandler.Delete))

	mux.HandleFunc("GET /auth/oidc/login", callbackHandler.Login)
	mux.HandleFunc("GET "+callbackPath, callbackHandler.Callback)

	mux.HandleFunc("GET /location", locationHandler.Get)
	mux.HandleFunc("POST /location", locationHandler.Report)
	mux.HandleFunc("GET /notifications", handlers.Notifications(s.deps.Feed))

	mux.Handle("GET /health", healthHandler)

	return middleware.Recovery(s.logger)(
		middleware.Logging(s.logger)(
			middleware.SecurityHeaders(mux),
		),
	)
}
