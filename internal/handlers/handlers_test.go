package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcogenualdo/session-coordinator/internal/auth"
	"github.com/marcogenualdo/session-coordinator/internal/auth/oidc"
	"github.com/marcogenualdo/session-coordinator/internal/gateway"
	"github.com/marcogenualdo/session-coordinator/internal/middleware"
	"github.com/marcogenualdo/session-coordinator/internal/navigation"
	"github.com/marcogenualdo/session-coordinator/internal/notify"
	"github.com/marcogenualdo/session-coordinator/internal/pending"
	"github.com/marcogenualdo/session-coordinator/internal/session"
	"github.com/marcogenualdo/session-coordinator/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSessions struct {
	mu         sync.Mutex
	state      session.State
	signUpErr  error
	signInErr  error
	signOutErr error
	resetErr   error

	signUps []gateway.SignUpRequest
	signIns []string
	resets  []string
}

func (f *fakeSessions) Session() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSessions) SignUp(ctx context.Context, req gateway.SignUpRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signUps = append(f.signUps, req)
	return f.signUpErr
}

func (f *fakeSessions) SignIn(ctx context.Context, identifier, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signIns = append(f.signIns, identifier)
	return f.signInErr
}

func (f *fakeSessions) SignOut(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.User = nil
	f.state.Session = nil
	return f.signOutErr
}

func (f *fakeSessions) ResetPassword(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, email)
	return f.resetErr
}

func doJSON(t *testing.T, h http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func newSessionHandler(sessions SessionService) (*SessionHandler, *navigation.Tracker) {
	tracker := navigation.NewTracker("/", 10, testLogger())
	return NewSessionHandler(sessions, tracker, NewValidator(), testLogger()), tracker
}

func TestSessionHandler_SignIn(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		signInErr error
		wantCode  int
		wantKind  auth.ErrorKind
		wantError string
	}{
		{
			name:     "success",
			body:     `{"identifier":"9876543210","password":"pw"}`,
			wantCode: http.StatusOK,
		},
		{
			name:      "rejected credentials read the same for every cause",
			body:      `{"identifier":"alice@example.com","password":"wrong"}`,
			signInErr: fmt.Errorf("authenticate: %w", auth.ErrInvalidCredential),
			wantCode:  http.StatusUnauthorized,
			wantKind:  auth.KindInvalidCredential,
			wantError: "invalid identifier or credentials",
		},
		{
			name:      "provider outage",
			body:      `{"identifier":"alice@example.com","password":"pw"}`,
			signInErr: fmt.Errorf("authenticate: %w", auth.Unavailable(errors.New("dial tcp: refused"))),
			wantCode:  http.StatusServiceUnavailable,
			wantKind:  auth.KindServiceUnavailable,
			wantError: "identity service unavailable",
		},
		{
			name:     "missing password",
			body:     `{"identifier":"alice@example.com"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "malformed body",
			body:     `{"identifier":`,
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := &fakeSessions{signInErr: tt.signInErr}
			h, _ := newSessionHandler(sessions)

			rec := doJSON(t, h.SignIn, http.MethodPost, "/auth/signin", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)

			if tt.wantError != "" {
				resp := decode[errorResponse](t, rec)
				assert.Equal(t, tt.wantError, resp.Error)
				assert.Equal(t, tt.wantKind, resp.Kind)
			}
		})
	}

	t.Run("validation errors name the field", func(t *testing.T) {
		h, _ := newSessionHandler(&fakeSessions{})

		rec := doJSON(t, h.SignIn, http.MethodPost, "/auth/signin", `{"identifier":"alice@example.com"}`)
		resp := decode[errorResponse](t, rec)
		assert.Equal(t, "password is required", resp.Fields["password"])
	})
}

func TestSessionHandler_SignUp(t *testing.T) {
	valid := `{"email":"carol@example.com","password":"secret1","full_name":"Carol","phone_number":"5551234567"}`

	t.Run("success forwards the registration", func(t *testing.T) {
		sessions := &fakeSessions{}
		h, _ := newSessionHandler(sessions)

		rec := doJSON(t, h.SignUp, http.MethodPost, "/auth/signup", valid)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, []gateway.SignUpRequest{{
			Email:       "carol@example.com",
			Password:    "secret1",
			FullName:    "Carol",
			PhoneNumber: "5551234567",
		}}, sessions.signUps)
	})

	t.Run("duplicate account", func(t *testing.T) {
		h, _ := newSessionHandler(&fakeSessions{signUpErr: fmt.Errorf("register: %w", auth.ErrDuplicateAccount)})

		rec := doJSON(t, h.SignUp, http.MethodPost, "/auth/signup", valid)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, auth.KindDuplicateAccount, decode[errorResponse](t, rec).Kind)
	})

	t.Run("invalid fields", func(t *testing.T) {
		sessions := &fakeSessions{}
		h, _ := newSessionHandler(sessions)

		rec := doJSON(t, h.SignUp, http.MethodPost, "/auth/signup",
			`{"email":"not-an-email","password":"123","full_name":"Carol","phone_number":"555-1234"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		resp := decode[errorResponse](t, rec)
		assert.Contains(t, resp.Fields, "email")
		assert.Contains(t, resp.Fields, "password")
		assert.Equal(t, "phone_number must be 10 digits", resp.Fields["phone_number"])
		assert.Empty(t, sessions.signUps)
	})
}

func TestSessionHandler_SignOut(t *testing.T) {
	t.Run("clean sign out", func(t *testing.T) {
		h, _ := newSessionHandler(&fakeSessions{})

		rec := doJSON(t, h.SignOut, http.MethodPost, "/auth/signout", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"signed_out"}`, rec.Body.String())
	})

	t.Run("remote failure still reports signed out", func(t *testing.T) {
		h, _ := newSessionHandler(&fakeSessions{signOutErr: fmt.Errorf("terminate: %w", auth.ErrServiceUnavailable)})

		rec := doJSON(t, h.SignOut, http.MethodPost, "/auth/signout", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"signed_out","remote_error":"service_unavailable"}`, rec.Body.String())
	})
}

func TestSessionHandler_ResetPassword(t *testing.T) {
	sessions := &fakeSessions{}
	h, _ := newSessionHandler(sessions)

	rec := doJSON(t, h.ResetPassword, http.MethodPost, "/auth/reset", `{"email":"alice@example.com"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"alice@example.com"}, sessions.resets)

	rec = doJSON(t, h.ResetPassword, http.MethodPost, "/auth/reset", `{"email":"9876543210"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionHandler_Get(t *testing.T) {
	s := &auth.Session{AccessToken: "at", User: auth.User{ID: "u1", Email: "alice@example.com"}}
	sessions := &fakeSessions{state: session.State{Ready: true, Session: s, User: &s.User}}
	h, tracker := newSessionHandler(sessions)
	tracker.Report("/events/42")

	rec := doJSON(t, h.Get, http.MethodGet, "/auth/session", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[SessionResponse](t, rec)
	assert.True(t, resp.Ready)
	assert.True(t, resp.SignedIn)
	assert.Equal(t, "alice@example.com", resp.User.Email)
	assert.Equal(t, "/events/42", resp.Path)
	assert.NotContains(t, rec.Body.String(), `"at"`)
}

func TestSessionHandler_Token(t *testing.T) {
	h, _ := newSessionHandler(&fakeSessions{})

	rec := doJSON(t, h.Token, http.MethodGet, "/auth/token", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	s := &auth.Session{AccessToken: "at", TokenType: "bearer"}
	req := httptest.NewRequest(http.MethodGet, "/auth/token", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.SessionContextKey, s))
	rec = httptest.NewRecorder()
	h.Token(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[tokenResponse](t, rec)
	assert.Equal(t, "at", resp.AccessToken)
	assert.Equal(t, "bearer", resp.TokenType)
}

func newGate(t *testing.T) *pending.Gate {
	t.Helper()
	store := storage.NewMemoryStore("test")
	t.Cleanup(func() { store.Close() })
	return pending.NewGate(store)
}

func TestPendingHandler(t *testing.T) {
	gate := newGate(t)
	h := NewPendingHandler(gate, NewValidator(), testLogger())

	rec := doJSON(t, h.Get, http.MethodGet, "/auth/pending", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"action":null}`, rec.Body.String())

	rec = doJSON(t, h.Put, http.MethodPut, "/auth/pending", `{"kind":"join_event","resume_path":"/events/42"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	action, err := gate.Peek(context.Background())
	require.NoError(t, err)
	require.NotNil(t, action)
	assert.Equal(t, "join_event", action.Kind)
	assert.Equal(t, "/events/42", action.ResumePath)

	for _, offsite := range []string{"https://evil.example", "//evil.example/phish", `/\\evil.example`} {
		body := fmt.Sprintf(`{"kind":"join_event","resume_path":%q}`, offsite)
		rec = doJSON(t, h.Put, http.MethodPut, "/auth/pending", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, offsite)
	}

	action, err = gate.Peek(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/events/42", action.ResumePath)

	rec = doJSON(t, h.Delete, http.MethodDelete, "/auth/pending", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	action, err = gate.Peek(context.Background())
	require.NoError(t, err)
	assert.Nil(t, action)
}

type fakeFlow struct {
	login       *oidc.Login
	exchangeErr error
	redirectURL string
	recovery    bool
}

func (f *fakeFlow) AuthCodeURL(ctx context.Context, redirectURL string, recovery bool) (string, error) {
	f.redirectURL = redirectURL
	f.recovery = recovery
	return "https://auth.example.com/authorize?state=s1", nil
}

func (f *fakeFlow) ExchangeCode(ctx context.Context, state, code string) (*oidc.Login, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return f.login, nil
}

func TestCallbackHandler(t *testing.T) {
	const callbackURL = "http://app.local/auth/oidc/callback"
	login := &oidc.Login{Session: &auth.Session{AccessToken: "at", User: auth.User{ID: "u1"}}}

	policy := navigation.Policy{EntryPaths: []string{"/", "/connect"}, AuthenticatedRoute: "/dashboard/student"}

	newHandler := func(t *testing.T, flow *fakeFlow) (*CallbackHandler, *pending.Gate, *navigation.Tracker) {
		gate := newGate(t)
		tracker := navigation.NewTracker("/connect", 10, testLogger())
		return NewCallbackHandler(flow, callbackURL, gate, tracker, policy, "/reset-password", testLogger()), gate, tracker
	}

	t.Run("login redirects to the provider", func(t *testing.T) {
		flow := &fakeFlow{}
		h, _, _ := newHandler(t, flow)

		rec := doJSON(t, h.Login, http.MethodGet, "/auth/oidc/login?recovery=true", "")
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://auth.example.com/authorize?state=s1", rec.Header().Get("Location"))
		assert.Equal(t, callbackURL, flow.redirectURL)
		assert.True(t, flow.recovery)
	})

	t.Run("completed login on an entry path lands on the authenticated route", func(t *testing.T) {
		h, _, _ := newHandler(t, &fakeFlow{login: login})

		rec := doJSON(t, h.Callback, http.MethodGet, "/auth/oidc/callback?state=s1&code=c1", "")
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/dashboard/student", rec.Header().Get("Location"))
	})

	t.Run("completed login mid-flow lands on the current path", func(t *testing.T) {
		h, _, tracker := newHandler(t, &fakeFlow{login: login})
		tracker.Report("/events/7")

		rec := doJSON(t, h.Callback, http.MethodGet, "/auth/oidc/callback?state=s1&code=c1", "")
		assert.Equal(t, "/events/7", rec.Header().Get("Location"))
	})

	t.Run("stored off-site resume path is never followed", func(t *testing.T) {
		h, gate, tracker := newHandler(t, &fakeFlow{login: login})
		tracker.Report("/events/7")
		require.NoError(t, gate.Set(context.Background(), pending.NewAction("join_event", "//evil.example/phish")))

		rec := doJSON(t, h.Callback, http.MethodGet, "/auth/oidc/callback?state=s1&code=c1", "")
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/events/7", rec.Header().Get("Location"))
	})

	t.Run("off-site current path falls back to the root", func(t *testing.T) {
		h, _, tracker := newHandler(t, &fakeFlow{login: login})
		tracker.Report("//evil.example")

		rec := doJSON(t, h.Callback, http.MethodGet, "/auth/oidc/callback?state=s1&code=c1", "")
		assert.Equal(t, "/", rec.Header().Get("Location"))
	})

	t.Run("pending action resumes its own path", func(t *testing.T) {
		h, gate, _ := newHandler(t, &fakeFlow{login: login})
		require.NoError(t, gate.Set(context.Background(), pending.NewAction("join_event", "/events/42")))

		rec := doJSON(t, h.Callback, http.MethodGet, "/auth/oidc/callback?state=s1&code=c1", "")
		assert.Equal(t, "/events/42", rec.Header().Get("Location"))
	})

	t.Run("recovery login lands on the reset route", func(t *testing.T) {
		h, _, _ := newHandler(t, &fakeFlow{login: &oidc.Login{Session: login.Session, Recovery: true}})

		rec := doJSON(t, h.Callback, http.MethodGet, "/auth/oidc/callback?state=s1&code=c1", "")
		assert.Equal(t, "/reset-password", rec.Header().Get("Location"))
	})

	t.Run("unknown state is a bad request", func(t *testing.T) {
		h, _, _ := newHandler(t, &fakeFlow{exchangeErr: oidc.ErrInvalidState})

		rec := doJSON(t, h.Callback, http.MethodGet, "/auth/oidc/callback?state=s1&code=c1", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("provider error is reported as a rejected login", func(t *testing.T) {
		h, _, _ := newHandler(t, &fakeFlow{})

		rec := doJSON(t, h.Callback, http.MethodGet, "/auth/oidc/callback?error=access_denied", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

type fakeChecker struct{ err error }

func (f fakeChecker) Healthy(ctx context.Context) error { return f.err }

func TestHealthHandler(t *testing.T) {
	store := storage.NewMemoryStore("test")
	defer store.Close()
	sessions := &fakeSessions{state: session.State{Ready: true}}

	t.Run("healthy", func(t *testing.T) {
		h := NewHealthHandler("memory", store, fakeChecker{}, sessions, testLogger())

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[HealthResponse](t, rec)
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, "connected", resp.Storage.Status)
		assert.Equal(t, "reachable", resp.Provider.Status)
		assert.True(t, resp.Ready)
	})

	t.Run("provider down", func(t *testing.T) {
		h := NewHealthHandler("memory", store, fakeChecker{err: auth.ErrServiceUnavailable}, sessions, testLogger())

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "degraded", decode[HealthResponse](t, rec).Status)
	})
}

func TestLocationHandler(t *testing.T) {
	tracker := navigation.NewTracker("/", 10, testLogger())
	h := NewLocationHandler(tracker, NewValidator(), testLogger())

	rec := doJSON(t, h.Report, http.MethodPost, "/location", `{"path":"/events/42"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/events/42", tracker.CurrentPath())

	for _, bad := range []string{"events", "//evil.example/phish", "https://evil.example/"} {
		rec = doJSON(t, h.Report, http.MethodPost, "/location", fmt.Sprintf(`{"path":%q}`, bad))
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
	assert.Equal(t, "/events/42", tracker.CurrentPath())

	tracker.NavigateTo("/dashboard/student")

	rec = doJSON(t, h.Get, http.MethodGet, "/location?history=true", "")
	resp := decode[locationResponse](t, rec)
	assert.Equal(t, "/dashboard/student", resp.Path)
	require.Len(t, resp.History, 2)
	assert.Equal(t, "view", resp.History[0].Source)
	assert.Equal(t, "coordinator", resp.History[1].Source)
}

func TestNotifications(t *testing.T) {
	feed := notify.NewFeed(5, testLogger())

	rec := doJSON(t, Notifications(feed), http.MethodGet, "/notifications", "")
	assert.JSONEq(t, `{"notifications":[]}`, rec.Body.String())

	feed.Notify(notify.KindSuccess, "Signed out", "You have been signed out successfully.")

	rec = doJSON(t, Notifications(feed), http.MethodGet, "/notifications", "")
	resp := decode[map[string][]notify.Notification](t, rec)
	require.Len(t, resp["notifications"], 1)
	assert.Equal(t, "Signed out", resp["notifications"][0].Title)
}

func TestValidator_CustomRules(t *testing.T) {
	var v *Validator
	require.NotPanics(t, func() { v = NewValidator() })

	type target struct {
		Phone string `json:"phone" validate:"phone"`
		Path  string `json:"path" validate:"localpath"`
	}

	assert.Nil(t, v.Struct(target{Phone: "9876543210", Path: "/events/42"}))

	fields := v.Struct(target{Phone: "555-1234", Path: "//evil.example"})
	assert.Equal(t, "phone must be 10 digits", fields["phone"])
	assert.Equal(t, "path must be a path on this site", fields["path"])
}
