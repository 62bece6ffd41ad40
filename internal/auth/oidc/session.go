package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/marcogenualdo/session-coordinator/internal/auth"
	"github.com/marcogenualdo/session-coordinator/internal/storage"
)

const sessionKey = "session"

func (p *Provider) loadSession(ctx context.Context) (*auth.Session, error) {
	data, err := p.store.Get(ctx, sessionKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to read session: %w", auth.ErrServiceUnavailable, err)
	}

	var session auth.Session
	if err := json.Unmarshal(data, &session); err != nil {
		p.logger.Warn("discarding unreadable persisted session", "error", err)
		if err := p.store.Remove(ctx, sessionKey); err != nil {
			p.logger.Warn("failed to remove unreadable session", "error", err)
		}
		return nil, nil
	}

	return &session, nil
}

// saveSession persists session without expiry; the refresh token outlives
// the access token.
func (p *Provider) saveSession(ctx context.Context, session *auth.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := p.store.Set(ctx, sessionKey, data, 0); err != nil {
		return fmt.Errorf("%w: failed to persist session: %w", auth.ErrServiceUnavailable, err)
	}

	return nil
}

// sessionFromToken builds a session from a token response. The user comes
// from the response's user object, then from the verified ID token, then
// from the session being refreshed.
func (p *Provider) sessionFromToken(ctx context.Context, token *oauth2.Token, previous *auth.Session) (*auth.Session, error) {
	session := &auth.Session{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.Type(),
		ExpiresAt:    token.Expiry,
	}

	if rawIDToken, ok := token.Extra("id_token").(string); ok {
		session.IDToken = rawIDToken
	}

	if previous != nil {
		if session.RefreshToken == "" {
			session.RefreshToken = previous.RefreshToken
		}
		if session.IDToken == "" {
			session.IDToken = previous.IDToken
		}
	}

	if user, ok := userFromExtra(token.Extra("user")); ok {
		session.User = *user
		return session, nil
	}

	if session.IDToken != "" && p.verifier != nil {
		user, err := p.userFromIDToken(ctx, session.IDToken)
		if err != nil {
			return nil, err
		}
		session.User = *user
		return session, nil
	}

	if previous != nil {
		session.User = previous.User
		return session, nil
	}

	return nil, fmt.Errorf("%w: token response carries no user", auth.ErrServiceUnavailable)
}

func userFromExtra(raw any) (*auth.User, bool) {
	if raw == nil {
		return nil, false
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, false
	}

	var user auth.User
	if err := json.Unmarshal(data, &user); err != nil || user.ID == "" {
		return nil, false
	}

	return &user, true
}

type idTokenClaims struct {
	Subject     string `json:"sub"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
}

func (p *Provider) userFromIDToken(ctx context.Context, rawIDToken string) (*auth.User, error) {
	idToken, err := p.verifier.Verify(p.clientContext(ctx), rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to verify ID token", auth.ErrInvalidCredential)
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	var metadata map[string]any
	if err := idToken.Claims(&metadata); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	return &auth.User{
		ID:       claims.Subject,
		Email:    claims.Email,
		Phone:    claims.PhoneNumber,
		Metadata: metadata,
	}, nil
}
