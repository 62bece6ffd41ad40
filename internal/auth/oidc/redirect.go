package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/marcogenualdo/session-coordinator/internal/auth"
	"github.com/marcogenualdo/session-coordinator/internal/storage"
	"github.com/marcogenualdo/session-coordinator/pkg/security"
)

const (
	stateKeyPrefix = "oidc:state:"
	stateTTL       = 5 * time.Minute
)

var ErrInvalidState = errors.New("invalid or expired state")

// Login is the outcome of a completed authorization-code login.
type Login struct {
	Session *auth.Session
	// Recovery is set when the login came from a password recovery link.
	Recovery bool
}

// AuthCodeURL starts a PKCE authorization-code login that returns to
// redirectURL. A recovery login completes with a PasswordRecovery event
// instead of SignedIn.
func (p *Provider) AuthCodeURL(ctx context.Context, redirectURL string, recovery bool) (string, error) {
	codeVerifier := oauth2.GenerateVerifier()
	state, err := security.NewToken(security.OAuthStateBytes)
	if err != nil {
		return "", err
	}

	oidcState := &auth.OIDCState{
		State:        state,
		CodeVerifier: codeVerifier,
		RedirectURL:  redirectURL,
		Recovery:     recovery,
		CreatedAt:    p.now(),
	}

	stateData, err := json.Marshal(oidcState)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := p.store.Set(ctx, stateKeyPrefix+state, stateData, stateTTL); err != nil {
		return "", fmt.Errorf("%w: failed to persist state: %w", auth.ErrServiceUnavailable, err)
	}

	cfg := p.oauth2Config
	cfg.RedirectURL = redirectURL

	return cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(codeVerifier)), nil
}

// ExchangeCode completes a login started by AuthCodeURL.
func (p *Provider) ExchangeCode(ctx context.Context, state, code string) (*Login, error) {
	if code == "" {
		return nil, fmt.Errorf("missing code parameter")
	}
	if state == "" {
		return nil, fmt.Errorf("missing state parameter")
	}

	stateData, err := p.store.Get(ctx, stateKeyPrefix+state)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidState
		}
		return nil, fmt.Errorf("%w: failed to read state: %w", auth.ErrServiceUnavailable, err)
	}

	var oidcState auth.OIDCState
	if err := json.Unmarshal(stateData, &oidcState); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	if err := p.store.Remove(ctx, stateKeyPrefix+state); err != nil {
		p.logger.Warn("failed to remove used state", "error", err)
	}

	cfg := p.oauth2Config
	cfg.RedirectURL = oidcState.RedirectURL

	token, err := cfg.Exchange(p.clientContext(ctx), code, oauth2.VerifierOption(oidcState.CodeVerifier))
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

	kind := auth.EventSignedIn
	if oidcState.Recovery {
		kind = auth.EventPasswordRecovery
	}

	p.logger.Info("authorization code exchanged", "user_id", session.User.ID, "event", kind.String())
	p.events.Publish(auth.Event{Kind: kind, Session: session})

	return &Login{Session: session, Recovery: oidcState.Recovery}, nil
}
