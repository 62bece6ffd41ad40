package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/marcogenualdo/session-coordinator/internal/auth"
	"github.com/marcogenualdo/session-coordinator/internal/session"
)

type contextKey string

const SessionContextKey contextKey = "session"

// SessionSource is the read side of the session store.
type SessionSource interface {
	Session() session.State
}

type AuthMiddleware struct {
	sessions SessionSource
	logger   *slog.Logger
}

func NewAuthMiddleware(sessions SessionSource, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		sessions: sessions,
		logger:   logger.With("component", "auth_middleware"),
	}
}

// RequireSession rejects requests while no user is signed in. Before the
// store is ready the answer is not yet known, so the client is told to
// retry.
func (am *AuthMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := am.sessions.Session()

		if !st.Ready {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, "session not ready")
			return
		}

		if st.Session == nil {
			am.logger.Debug("no active session", "path", r.URL.Path)
			writeError(w, http.StatusUnauthorized, "not signed in")
			return
		}

		ctx := context.WithValue(r.Context(), SessionContextKey, st.Session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetSession(ctx context.Context) (*auth.Session, bool) {
	session, ok := ctx.Value(SessionContextKey).(*auth.Session)
	return session, ok
}
