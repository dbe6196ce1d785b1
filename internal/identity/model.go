package identity

import "time"

// Identity is the remote-issued principal. It is issued and invalidated by
// the identity provider only; this service observes it.
type Identity struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url,omitempty"`
	FullName  string `json:"full_name,omitempty"`
}

// Session is the token pair held for one browser scope.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         Identity  `json:"user"`
}

// Expired reports whether the access token is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// EventType enumerates auth state changes delivered to subscribers.
type EventType string

const (
	EventInitialSession EventType = "INITIAL_SESSION"
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventUserUpdated    EventType = "USER_UPDATED"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
)

// Event is an auth state change. Session is nil for SIGNED_OUT.
type Event struct {
	Type    EventType
	Session *Session
}
