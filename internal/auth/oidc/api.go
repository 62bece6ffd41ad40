package oidc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/marcogenualdo/session-coordinator/internal/auth"
)

const maxResponseBytes = 1 << 20

type signUpRequest struct {
	Email    string              `json:"email"`
	Password string              `json:"password"`
	Data     auth.SignUpMetadata `json:"data"`
}

// tokenResponse is returned by sign-up when the account is confirmed
// immediately.
type tokenResponse struct {
	AccessToken  string         `json:"access_token"`
	TokenType    string         `json:"token_type"`
	ExpiresIn    int64          `json:"expires_in"`
	RefreshToken string         `json:"refresh_token"`
	User         map[string]any `json:"user"`
}

type apiError struct {
	Code        int    `json:"code"`
	ErrorCode   string `json:"error_code"`
	Msg         string `json:"msg"`
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

func (e apiError) message() string {
	for _, s := range []string{e.Msg, e.Description, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (p *Provider) SignUp(ctx context.Context, email, password string, metadata auth.SignUpMetadata, redirectTo string) error {
	query := url.Values{}
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}

	status, body, err := p.call(ctx, "/signup", query, signUpRequest{
		Email:    email,
		Password: password,
		Data:     metadata,
	}, "")
	if err != nil {
		return err
	}

	if status != http.StatusOK && status != http.StatusCreated {
		return classifyAPIError(status, body)
	}

	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.AccessToken == "" {
		// Confirmation pending: no session until the provider confirms.
		p.logger.Info("account registered, awaiting confirmation")
		return nil
	}

	token := (&oauth2.Token{
		AccessToken:  resp.AccessToken,
		TokenType:    resp.TokenType,
		RefreshToken: resp.RefreshToken,
		Expiry:       p.now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}).WithExtra(map[string]any{"user": resp.User})

	session, err := p.sessionFromToken(ctx, token, nil)
	if err != nil {
		return err
	}

	if err := p.saveSession(ctx, session); err != nil {
		return err
	}

	p.logger.Info("account registered and signed in", "user_id", session.User.ID)
	p.events.Publish(auth.Event{Kind: auth.EventSignedIn, Session: session})

	return nil
}

// SignOut revokes the session at the provider and always drops it locally.
// The returned error only reports the remote revocation.
func (p *Provider) SignOut(ctx context.Context) error {
	session, err := p.loadSession(ctx)
	if err != nil {
		p.logger.Warn("sign out: failed to read session", "error", err)
	}

	var remoteErr error
	if session != nil {
		status, body, err := p.call(ctx, "/logout", nil, nil, session.AccessToken)
		switch {
		case err != nil:
			remoteErr = err
		case status == http.StatusUnauthorized || status == http.StatusNotFound:
			// Token already gone at the provider.
		case status >= 300:
			remoteErr = classifyAPIError(status, body)
		}
	}

	if err := p.store.Remove(ctx, sessionKey); err != nil {
		p.logger.Warn("sign out: failed to remove session", "error", err)
	}

	p.logger.Info("signed out")
	p.events.Publish(auth.Event{Kind: auth.EventSignedOut})

	return remoteErr
}

func (p *Provider) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	query := url.Values{}
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}

	status, body, err := p.call(ctx, "/recover", query, map[string]string{"email": email}, "")
	if err != nil {
		return err
	}

	if status >= 300 {
		return classifyAPIError(status, body)
	}

	return nil
}

// Healthy reports whether the account API answers.
func (p *Provider) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", auth.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health returned status %d", auth.ErrServiceUnavailable, resp.StatusCode)
	}

	return nil
}

// call POSTs payload as JSON to the account API. Transport failures are
// reported as ErrServiceUnavailable; HTTP statuses are left to the caller.
func (p *Provider) call(ctx context.Context, path string, query url.Values, payload any, bearer string) (int, []byte, error) {
	endpoint := p.apiURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", auth.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: failed to read response: %w", auth.ErrServiceUnavailable, err)
	}

	return resp.StatusCode, body, nil
}

func classifyAPIError(status int, body []byte) error {
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)
	msg := strings.ToLower(apiErr.message())

	switch {
	case status == http.StatusConflict,
		apiErr.ErrorCode == "user_already_exists",
		apiErr.ErrorCode == "email_exists",
		strings.Contains(msg, "already registered"):
		return fmt.Errorf("%w: %s", auth.ErrDuplicateAccount, msg)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: account API returned status %d", auth.ErrServiceUnavailable, status)
	case status >= 400:
		return fmt.Errorf("%w: %s", auth.ErrInvalidCredential, msg)
	default:
		return fmt.Errorf("%w: unexpected status %d", auth.ErrServiceUnavailable, status)
	}
}
