// Package authtest provides an in-memory identity provider for tests.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marcogenualdo/session-coordinator/internal/auth"
)

type Credentials struct {
	Email    string
	Password string
}

type SignUpCall struct {
	Email      string
	Password   string
	Metadata   auth.SignUpMetadata
	RedirectTo string
}

type ResetCall struct {
	Email      string
	RedirectTo string
}

// Provider is an auth.Provider backed by a map of accounts. It publishes
// the same events as the real client.
type Provider struct {
	mu       sync.Mutex
	events   *auth.Broadcaster
	accounts map[string]string
	current  *auth.Session
	hydrate  chan struct{}

	SignInErr  error
	SignUpErr  error
	SignOutErr error
	ResetErr   error

	SignInCalls  []Credentials
	SignUpCalls  []SignUpCall
	ResetCalls   []ResetCall
	SignOutCalls int
}

var _ auth.Provider = (*Provider)(nil)

func NewProvider() *Provider {
	return &Provider{
		events:   auth.NewBroadcaster(),
		accounts: make(map[string]string),
	}
}

func (p *Provider) AddAccount(email, password string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts[email] = password
}

// SetCurrent replaces the session GetCurrentSession returns.
func (p *Provider) SetCurrent(s *auth.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = s
}

// HoldHydration makes GetCurrentSession block until the returned function
// is called.
func (p *Provider) HoldHydration() func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	gate := make(chan struct{})
	p.hydrate = gate

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Emit publishes evt to every subscriber.
func (p *Provider) Emit(evt auth.Event) {
	p.events.Publish(evt)
}

func (p *Provider) Subscribers() int {
	return p.events.Len()
}

func (p *Provider) SignUp(ctx context.Context, email, password string, metadata auth.SignUpMetadata, redirectTo string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.SignUpCalls = append(p.SignUpCalls, SignUpCall{email, password, metadata, redirectTo})
	if p.SignUpErr != nil {
		return p.SignUpErr
	}
	if _, exists := p.accounts[email]; exists {
		return auth.ErrDuplicateAccount
	}
	p.accounts[email] = password
	return nil
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	p.mu.Lock()
	p.SignInCalls = append(p.SignInCalls, Credentials{email, password})
	if p.SignInErr != nil {
		err := p.SignInErr
		p.mu.Unlock()
		return nil, err
	}
	if want, ok := p.accounts[email]; !ok || want != password {
		p.mu.Unlock()
		return nil, auth.ErrInvalidCredential
	}
	session := NewSession(email)
	p.current = session
	p.mu.Unlock()

	p.events.Publish(auth.Event{Kind: auth.EventSignedIn, Session: session})
	return session, nil
}

func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.SignOutCalls++
	p.current = nil
	err := p.SignOutErr
	p.mu.Unlock()

	p.events.Publish(auth.Event{Kind: auth.EventSignedOut})
	return err
}

func (p *Provider) GetCurrentSession(ctx context.Context) (*auth.Session, error) {
	p.mu.Lock()
	gate := p.hydrate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, nil
}

func (p *Provider) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ResetCalls = append(p.ResetCalls, ResetCall{email, redirectTo})
	return p.ResetErr
}

func (p *Provider) OnAuthStateChange() (<-chan auth.Event, func()) {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()

	return p.events.Subscribe(auth.Event{Kind: auth.EventInitialSession, Session: current})
}

func (p *Provider) EventSeq() uint64 {
	return p.events.Seq()
}

// NewSession returns a fresh session for email.
func NewSession(email string) *auth.Session {
	return &auth.Session{
		AccessToken:  uuid.New().String(),
		RefreshToken: uuid.New().String(),
		TokenType:    "bearer",
		ExpiresAt:    time.Now().Add(time.Hour),
		User: auth.User{
			ID:    uuid.New().String(),
			Email: email,
		},
	}
}
