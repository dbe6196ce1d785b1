package identity

import (
	"context"
	"errors"
)

var (
	// ErrNoSession means the provider explicitly reported that there is no
	// valid session. Callers treat it as an authoritative sign-out.
	ErrNoSession = errors.New("identity: no session")

	// ErrProviderUnavailable wraps transport failures and unexpected
	// responses. Callers treat it as transient.
	ErrProviderUnavailable = errors.New("identity: provider unavailable")
)

// SignOutScope selects which sessions a sign-out revokes.
type SignOutScope string

const (
	SignOutLocal  SignOutScope = "local"
	SignOutGlobal SignOutScope = "global"
)

// Provider is the contract of the external identity provider as seen by one
// browser scope.
type Provider interface {
	// GetSession returns the locally held session without network I/O, or
	// ErrNoSession when none is stored.
	GetSession(ctx context.Context) (Session, error)
	// GetUser asks the provider who the current access token belongs to.
	GetUser(ctx context.Context) (Identity, error)
	// RefreshSession exchanges the refresh token for a new session.
	RefreshSession(ctx context.Context) (Session, error)
	// SignInWithOAuth returns the URL the browser must visit to sign in.
	SignInWithOAuth(ctx context.Context, provider, redirectTo string) (string, error)
	// ExchangeCode completes an OAuth sign-in started by SignInWithOAuth.
	ExchangeCode(ctx context.Context, code string) (Session, error)
	SignOut(ctx context.Context, scope SignOutScope) error
	// Subscribe registers fn for auth events and returns an unsubscribe func.
	Subscribe(fn func(Event)) func()
}
