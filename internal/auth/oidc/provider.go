// Package oidc is the identity provider client. It authenticates against an
// OpenID Connect issuer with a GoTrue-style account API, keeps the current
// session in persistent storage and reports every transition on an event
// stream.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/marcogenualdo/session-coordinator/internal/auth"
	"github.com/marcogenualdo/session-coordinator/internal/config"
	"github.com/marcogenualdo/session-coordinator/internal/storage"
)

type Provider struct {
	cfg          config.ProviderConfig
	oauth2Config oauth2.Config
	verifier     *oidc.IDTokenVerifier
	httpClient   *http.Client
	apiURL       string

	store  storage.Store
	events *auth.Broadcaster
	logger *slog.Logger
	now    func() time.Time

	// refreshMu serializes token refreshes so a refresh token is spent once.
	refreshMu sync.Mutex
}

var _ auth.Provider = (*Provider)(nil)

func NewProvider(ctx context.Context, cfg config.ProviderConfig, store storage.Store, logger *slog.Logger) (*Provider, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, httpClient), cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID: cfg.ClientID,
	})

	return newProvider(cfg, provider.Endpoint(), verifier, httpClient, store, logger), nil
}

func newProvider(cfg config.ProviderConfig, endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier, httpClient *http.Client, store storage.Store, logger *slog.Logger) *Provider {
	return &Provider{
		cfg: cfg,
		oauth2Config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       cfg.Scopes,
		},
		verifier:   verifier,
		httpClient: httpClient,
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		store:      store,
		events:     auth.NewBroadcaster(),
		logger:     logger.With("component", "oidc_provider"),
		now:        time.Now,
	}
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// OnAuthStateChange registers a subscriber. Its first event is always an
// InitialSession carrying whatever session is persisted at registration.
func (p *Provider) OnAuthStateChange() (<-chan auth.Event, func()) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
	defer cancel()

	session, err := p.loadSession(ctx)
	if err != nil {
		p.logger.Warn("failed to read persisted session for initial event", "error", err)
	}

	return p.events.Subscribe(auth.Event{Kind: auth.EventInitialSession, Session: session})
}

func (p *Provider) EventSeq() uint64 {
	return p.events.Seq()
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	token, err := p.oauth2Config.PasswordCredentialsToken(p.clientContext(ctx), email, password)
	if err != nil {
		return nil, classifyTokenError(err)
	}

	session, err := p.sessionFromToken(ctx, token, nil)
	if err != nil {
		return nil, err
	}

	if err := p.saveSession(ctx, session); err != nil {
		return nil, err
	}

	p.logger.Info("signed in", "user_id", session.User.ID)
	p.events.Publish(auth.Event{Kind: auth.EventSignedIn, Session: session})

	return session, nil
}

// GetCurrentSession returns the persisted session, refreshing it first when
// its access token has expired. A rejected refresh clears the session.
func (p *Provider) GetCurrentSession(ctx context.Context) (*auth.Session, error) {
	session, err := p.loadSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil || !session.Expired(p.now(), 0) {
		return session, nil
	}

	refreshed, err := p.refresh(ctx, session)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredential) {
			p.expire(ctx)
			return nil, nil
		}
		return nil, err
	}

	return refreshed, nil
}

// Run refreshes the persisted session shortly before it expires until ctx
// is cancelled.
func (p *Provider) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refreshIfDue(ctx)
		}
	}
}

func (p *Provider) refreshIfDue(ctx context.Context) {
	session, err := p.loadSession(ctx)
	if err != nil {
		p.logger.Warn("auto refresh: failed to read session", "error", err)
		return
	}
	if session == nil || !session.Expired(p.now(), p.cfg.RefreshMargin) {
		return
	}

	if _, err := p.refresh(ctx, session); err != nil {
		if errors.Is(err, auth.ErrInvalidCredential) {
			p.logger.Info("auto refresh rejected, clearing session", "user_id", session.User.ID)
			p.expire(ctx)
			return
		}
		p.logger.Warn("auto refresh failed", "error", err)
	}
}

func (p *Provider) refresh(ctx context.Context, session *auth.Session) (*auth.Session, error) {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	// Another caller may have refreshed while we waited.
	current, err := p.loadSession(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("%w: session was cleared", auth.ErrInvalidCredential)
	}
	if current.AccessToken != session.AccessToken && !current.Expired(p.now(), 0) {
		return current, nil
	}

	if current.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token available", auth.ErrInvalidCredential)
	}

	tokenSource := p.oauth2Config.TokenSource(p.clientContext(ctx), &oauth2.Token{
		RefreshToken: current.RefreshToken,
	})

	newToken, err := tokenSource.Token()
	if err != nil {
		return nil, classifyTokenError(err)
	}

	refreshed, err := p.sessionFromToken(ctx, newToken, current)
	if err != nil {
		return nil, err
	}

	if err := p.saveSession(ctx, refreshed); err != nil {
		return nil, err
	}

	p.logger.Debug("token refreshed", "user_id", refreshed.User.ID, "expires_at", refreshed.ExpiresAt)
	p.events.Publish(auth.Event{Kind: auth.EventTokenRefreshed, Session: refreshed})

	return refreshed, nil
}

// expire drops the local session after the provider rejected it.
func (p *Provider) expire(ctx context.Context) {
	if err := p.store.Remove(ctx, sessionKey); err != nil {
		p.logger.Warn("failed to remove expired session", "error", err)
	}
	p.events.Publish(auth.Event{Kind: auth.EventSignedOut})
}

func classifyTokenError(err error) error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		status := 0
		if rErr.Response != nil {
			status = rErr.Response.StatusCode
		}

		if rErr.ErrorCode == "invalid_grant" || status == http.StatusBadRequest || status == http.StatusUnauthorized {
			return fmt.Errorf("%w: token endpoint rejected the grant", auth.ErrInvalidCredential)
		}
		return fmt.Errorf("%w: token endpoint returned status %d", auth.ErrServiceUnavailable, status)
	}

	return fmt.Errorf("%w: %w", auth.ErrServiceUnavailable, err)
}
