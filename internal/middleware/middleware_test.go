package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcogenualdo/session-coordinator/internal/auth"
	"github.com/marcogenualdo/session-coordinator/internal/session"
	"github.com/marcogenualdo/session-coordinator/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCSRFMiddleware(t *testing.T) {
	store := storage.NewMemoryStore("test")
	defer store.Close()

	cm := NewCSRFMiddleware(store, testLogger())
	handler := cm.ValidateCSRF(okHandler)

	post := func(token string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/signout", nil)
		if token != "" {
			req.Header.Set(CSRFHeader, token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("missing token is rejected", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, post(""))
	})

	t.Run("unknown token is rejected", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, post("forged"))
	})

	t.Run("issued token is accepted once", func(t *testing.T) {
		token, err := cm.GenerateCSRFToken(context.Background())
		require.NoError(t, err)
		require.NotEmpty(t, token)

		assert.Equal(t, http.StatusOK, post(token))
		assert.Equal(t, http.StatusForbidden, post(token))
	})

	t.Run("concurrent requests spend a token once", func(t *testing.T) {
		token, err := cm.GenerateCSRFToken(context.Background())
		require.NoError(t, err)

		var accepted atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if post(token) == http.StatusOK {
					accepted.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), accepted.Load())
	})

	t.Run("safe methods pass without a token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/pending", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(time.Hour, 2, testLogger())
	defer rl.Close()
	handler := rl.Limit(okHandler)

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/signin", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1001").Code)

	rec := send("10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3600", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, send("10.0.0.2:1000").Code)
}

type fixedSessions struct {
	state session.State
}

func (f fixedSessions) Session() session.State { return f.state }

func TestAuthMiddleware_RequireSession(t *testing.T) {
	s := &auth.Session{AccessToken: "at", User: auth.User{ID: "u1"}}

	var seen *auth.Session
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetSession(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name     string
		state    session.State
		wantCode int
	}{
		{name: "not ready", state: session.State{}, wantCode: http.StatusServiceUnavailable},
		{name: "signed out", state: session.State{Ready: true}, wantCode: http.StatusUnauthorized},
		{name: "signed in", state: session.State{Ready: true, Session: s, User: &s.User}, wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			am := NewAuthMiddleware(fixedSessions{state: tt.state}, testLogger())

			rec := httptest.NewRecorder()
			am.RequireSession(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/token", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusOK {
				assert.Same(t, s, seen)
			} else {
				assert.Nil(t, seen)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	Recovery(testLogger())(panicking).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestLogging_RequestID(t *testing.T) {
	handler := Logging(testLogger())(okHandler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))
}
