package auth

import "time"

// User is the public identity carried by a Session.
type User struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Phone    string         `json:"phone,omitempty"`
	Metadata map[string]any `json:"user_metadata,omitempty"`
}

// Session is the token bundle issued by the identity provider.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// Expired reports whether the access token is no longer usable at now,
// allowing for margin.
func (s *Session) Expired(now time.Time, margin time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(margin).Before(s.ExpiresAt)
}

// UserOf returns the user of s, or nil when s is nil. It keeps the
// (user, session) pair consistent: one is nil exactly when the other is.
func UserOf(s *Session) *User {
	if s == nil {
		return nil
	}
	u := s.User
	return &u
}

// SignUpMetadata is stored by the provider alongside a new account.
type SignUpMetadata struct {
	FullName     string `json:"full_name"`
	MobileNumber string `json:"mobile_number"`
}

// OIDCState is persisted between the authorization redirect and its callback.
type OIDCState struct {
	State        string    `json:"state"`
	CodeVerifier string    `json:"code_verifier"`
	RedirectURL  string    `json:"redirect_url"`
	Recovery     bool      `json:"recovery,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
