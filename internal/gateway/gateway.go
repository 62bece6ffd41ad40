// Package gateway normalizes the identity provider's credential operations
// into the auth error taxonomy.
package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marcogenualdo/session-coordinator/internal/auth"
	"github.com/marcogenualdo/session-coordinator/internal/identifier"
)

// Redirects are the absolute URLs the provider sends users back to from
// its emails.
type Redirects struct {
	SignUp        string
	ResetPassword string
}

type SignUpRequest struct {
	Email       string
	Password    string
	FullName    string
	PhoneNumber string
}

type Gateway struct {
	provider  auth.Provider
	resolver  *identifier.Resolver
	redirects Redirects
	logger    *slog.Logger
}

func New(provider auth.Provider, resolver *identifier.Resolver, redirects Redirects, logger *slog.Logger) *Gateway {
	return &Gateway{
		provider:  provider,
		resolver:  resolver,
		redirects: redirects,
		logger:    logger.With("component", "credential_gateway"),
	}
}

func (g *Gateway) Register(ctx context.Context, req SignUpRequest) error {
	err := g.provider.SignUp(ctx, req.Email, req.Password, auth.SignUpMetadata{
		FullName:     req.FullName,
		MobileNumber: req.PhoneNumber,
	}, g.redirects.SignUp)

	return g.normalize("register", err)
}

// Authenticate resolves identifier and signs in with the resulting email.
// An unresolvable identifier fails without contacting the provider.
func (g *Gateway) Authenticate(ctx context.Context, identifier, password string) error {
	email, err := g.resolver.Resolve(ctx, identifier)
	if err != nil {
		return g.normalize("authenticate", err)
	}

	_, err = g.provider.SignInWithPassword(ctx, email, password)
	return g.normalize("authenticate", err)
}

func (g *Gateway) Terminate(ctx context.Context) error {
	return g.normalize("terminate", g.provider.SignOut(ctx))
}

func (g *Gateway) RequestReset(ctx context.Context, email string) error {
	err := g.provider.ResetPasswordForEmail(ctx, email, g.redirects.ResetPassword)
	return g.normalize("request_reset", err)
}

// normalize folds err into one of the taxonomy's sentinels.
func (g *Gateway) normalize(op string, err error) error {
	if err == nil {
		return nil
	}

	var normalized error
	switch auth.Classify(err) {
	case auth.KindInvalidCredential:
		// Provider detail is logged, never returned.
		normalized = auth.ErrInvalidCredential
	case auth.KindDuplicateAccount:
		normalized = err
	default:
		normalized = auth.Unavailable(err)
	}

	g.logger.Info("credential operation failed", "op", op, "kind", auth.Classify(normalized), "error", err)

	return fmt.Errorf("%s: %w", op, normalized)
}
