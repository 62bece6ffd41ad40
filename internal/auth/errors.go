package auth

import (
	"errors"
	"fmt"
)

const invalidCredentialMessage = "invalid identifier or credentials"

var (
	// ErrInvalidCredential covers both a rejected password and an
	// identifier that could not be resolved. Callers cannot tell them apart.
	ErrInvalidCredential  = errors.New(invalidCredentialMessage)
	ErrDuplicateAccount   = errors.New("account already exists")
	ErrServiceUnavailable = errors.New("identity service unavailable")

	// ErrResolution reads exactly like ErrInvalidCredential so an unknown
	// phone number is indistinguishable from a wrong password.
	ErrResolution = errors.New(invalidCredentialMessage)
)

// ErrorKind is the uniform outcome of every credential operation.
type ErrorKind string

const (
	KindNone               ErrorKind = "none"
	KindInvalidCredential  ErrorKind = "invalid_credential"
	KindDuplicateAccount   ErrorKind = "duplicate_account"
	KindServiceUnavailable ErrorKind = "service_unavailable"
)

// Classify maps err onto the error taxonomy. Errors outside the taxonomy
// are reported as service failures.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidCredential), errors.Is(err, ErrResolution):
		return KindInvalidCredential
	case errors.Is(err, ErrDuplicateAccount):
		return KindDuplicateAccount
	default:
		return KindServiceUnavailable
	}
}

// Unavailable wraps err as a service failure unless it is already part of
// the taxonomy.
func Unavailable(err error) error {
	if err == nil || Classify(err) != KindServiceUnavailable || errors.Is(err, ErrServiceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
}
