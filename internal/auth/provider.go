package auth

import "context"

// Provider is the identity provider contract the coordinator consumes.
// Every method except OnAuthStateChange may block on the network.
type Provider interface {
	SignUp(ctx context.Context, email, password string, metadata SignUpMetadata, redirectTo string) error
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context) error
	GetCurrentSession(ctx context.Context) (*Session, error)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error

	// OnAuthStateChange registers a subscriber and returns its event channel
	// together with a function that releases it. The channel is closed once
	// the subscription is released.
	OnAuthStateChange() (<-chan Event, func())

	// EventSeq returns the Seq of the last event published to subscribers.
	EventSeq() uint64
}
