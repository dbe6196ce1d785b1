package session

import (
	"context"
	"time"

	"github.com/hsportal/portal/internal/identity"
	"github.com/hsportal/portal/internal/profile"
)

const (
	entryKey     = "cached_user_data"
	lastCheckKey = "auth_session_last_check"
)

// State is the position of a Cache in its verification state machine.
type State string

const (
	StateUnknown   State = "unknown"
	StateCacheHit  State = "cache_hit"
	StateVerifying State = "verifying"
	StateConfirmed State = "confirmed"
	StateDegraded  State = "degraded"
	StateSignedOut State = "signed_out"
)

// Entry is the persisted snapshot of identity and profile.
type Entry struct {
	Identity   identity.Identity `json:"identity"`
	HasProfile bool              `json:"hasProfile"`
	Profile    *profile.Profile  `json:"profile"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Snapshot is what dependent UI renders.
type Snapshot struct {
	State      State              `json:"state"`
	Identity   *identity.Identity `json:"user"`
	HasProfile bool               `json:"hasProfile"`
	Profile    *profile.Profile   `json:"profile"`
	// Stale is set while the identity comes from the cache and has not been
	// confirmed by the provider.
	Stale bool `json:"stale"`
	// Pending is set when a verification is still running.
	Pending bool `json:"pending"`
	// PromptRegistration is delivered once per Cache lifetime, when the
	// signed-in user is found to have no profile.
	PromptRegistration bool      `json:"promptRegistration"`
	CheckedAt          time.Time `json:"checkedAt,omitempty"`
}

// SignedIn reports whether the snapshot carries an identity.
func (s Snapshot) SignedIn() bool { return s.Identity != nil }

// ProfileLookup finds the profile of an identity. It returns
// profile.ErrNotFound when the user has not registered.
type ProfileLookup interface {
	Get(ctx context.Context, id string) (profile.Profile, error)
}

// Observer receives verification outcomes, e.g. for metrics.
type Observer interface {
	VerificationFinished(outcome string)
	StateChanged(from, to State)
}

type nopObserver struct{}

func (nopObserver) VerificationFinished(string) {}
func (nopObserver) StateChanged(State, State)   {}

// Options tunes a Cache. Zero fields take the defaults below.
type Options struct {
	// Expiry is the maximum age of a cache entry (7 days).
	Expiry time.Duration
	// VerifyTimeout bounds how long a caller waits for verification (3s).
	VerifyTimeout time.Duration
	// RefreshInterval is the periodic re-verification period (10m). Ticks are
	// ignored while the page is hidden.
	RefreshInterval time.Duration
	// VisibilityRecheck forces verification when the page becomes visible
	// and the last check is older than this (5m).
	VisibilityRecheck time.Duration
	// RequestTimeout bounds one provider round trip including refresh and
	// profile lookup (15s).
	RequestTimeout time.Duration
	Retry          RetryPolicy
}

func (o Options) withDefaults() Options {
	if o.Expiry <= 0 {
		o.Expiry = 7 * 24 * time.Hour
	}
	if o.VerifyTimeout <= 0 {
		o.VerifyTimeout = 3 * time.Second
	}
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = 10 * time.Minute
	}
	if o.VisibilityRecheck <= 0 {
		o.VisibilityRecheck = 5 * time.Minute
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 15 * time.Second
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry = DefaultRetryPolicy()
	}
	return o
}
