// Package identifier maps a login identifier onto the email the identity
// provider authenticates with.
package identifier

import (
	"context"
	"log/slog"

	"github.com/marcogenualdo/session-coordinator/internal/auth"
)

// PhoneLength is the number of digits in a phone-shaped identifier.
const PhoneLength = 10

// EmailLookup finds the email registered for a phone number.
type EmailLookup interface {
	EmailByPhone(ctx context.Context, phone string) (string, error)
}

type Resolver struct {
	lookup EmailLookup
	logger *slog.Logger
}

func NewResolver(lookup EmailLookup, logger *slog.Logger) *Resolver {
	return &Resolver{
		lookup: lookup,
		logger: logger.With("component", "identifier_resolver"),
	}
}

// IsPhone reports whether identifier is exactly PhoneLength ASCII digits.
func IsPhone(identifier string) bool {
	if len(identifier) != PhoneLength {
		return false
	}
	for i := 0; i < len(identifier); i++ {
		if identifier[i] < '0' || identifier[i] > '9' {
			return false
		}
	}
	return true
}

// Resolve returns the email to authenticate with. Identifiers that are not
// phone-shaped come back unchanged. A phone number without exactly one
// matching profile yields auth.ErrResolution.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (string, error) {
	if !IsPhone(identifier) {
		return identifier, nil
	}

	email, err := r.lookup.EmailByPhone(ctx, identifier)
	if err != nil || email == "" {
		r.logger.Debug("phone identifier did not resolve", "error", err)
		return "", auth.ErrResolution
	}

	return email, nil
}
