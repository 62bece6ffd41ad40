package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/marcogenualdo/session-coordinator/internal/storage"
	"github.com/marcogenualdo/session-coordinator/pkg/security"
)

const (
	CSRFHeader = "X-CSRF-Token"

	csrfKeyPrefix = "csrf:"
	csrfTokenTTL  = 10 * time.Minute
)

// CSRFMiddleware guards state-changing requests with single-use tokens kept
// in storage.
type CSRFMiddleware struct {
	store  storage.Store
	logger *slog.Logger
}

func NewCSRFMiddleware(store storage.Store, logger *slog.Logger) *CSRFMiddleware {
	return &CSRFMiddleware{
		store:  store,
		logger: logger.With("component", "csrf"),
	}
}

func (cm *CSRFMiddleware) ValidateCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get(CSRFHeader)
		if token == "" {
			cm.logger.Warn("missing CSRF token", "path", r.URL.Path)
			writeError(w, http.StatusForbidden, "missing CSRF token")
			return
		}

		taken, err := cm.store.Take(r.Context(), csrfKeyPrefix+token)
		if err != nil {
			cm.logger.Error("failed to consume CSRF token", "error", err)
			writeError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}

		if !taken {
			cm.logger.Warn("invalid CSRF token", "path", r.URL.Path)
			writeError(w, http.StatusForbidden, "invalid or expired CSRF token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// GenerateCSRFToken issues a token accepted once within csrfTokenTTL.
func (cm *CSRFMiddleware) GenerateCSRFToken(ctx context.Context) (string, error) {
	token, err := security.NewToken(security.CSRFTokenBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate CSRF token: %w", err)
	}

	if err := cm.store.Set(ctx, csrfKeyPrefix+token, []byte("1"), csrfTokenTTL); err != nil {
		return "", err
	}

	return token, nil
}
