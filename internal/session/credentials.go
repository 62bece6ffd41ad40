package session

import (
	"context"

	"github.com/marcogenualdo/session-coordinator/internal/gateway"
	"github.com/marcogenualdo/session-coordinator/internal/notify"
)

// SignUp registers a new account. Success means the provider accepted the
// registration; the account may still await email confirmation.
func (s *Store) SignUp(ctx context.Context, req gateway.SignUpRequest) error {
	if err := s.gateway.Register(ctx, req); err != nil {
		return err
	}

	s.notifier.Notify(notify.KindSuccess, "Welcome aboard!", "Your account has been created successfully.")
	return nil
}

// SignIn authenticates with an email or a 10-digit phone number. State is
// updated by the resulting SignedIn event, not by this call.
func (s *Store) SignIn(ctx context.Context, identifier, password string) error {
	return s.gateway.Authenticate(ctx, identifier, password)
}

// SignOut clears local state and returns to the landing route even when
// the provider fails to revoke the session. The provider error is returned.
func (s *Store) SignOut(ctx context.Context) error {
	err := s.gateway.Terminate(ctx)
	if err != nil {
		s.logger.Warn("remote sign out failed, clearing local session anyway", "error", err)
	}

	s.update(func(st *State) {
		st.Session = nil
		st.User = nil
		st.PasswordRecovery = false
	})

	s.navigator.NavigateTo(s.landingRoute)
	s.notifier.Notify(notify.KindSuccess, "Signed out", "You have been signed out successfully.")

	return err
}

// ResetPassword asks the provider to email a reset link.
func (s *Store) ResetPassword(ctx context.Context, email string) error {
	if err := s.gateway.RequestReset(ctx, email); err != nil {
		return err
	}

	s.notifier.Notify(notify.KindSuccess, "Password reset email sent", "Check your email for the password reset link.")
	return nil
}
