package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for bearer tokens that fail verification.
var ErrInvalidToken = errors.New("identity: invalid access token")

type accessClaims struct {
	Email        string `json:"email"`
	UserMetadata struct {
		AvatarURL string `json:"avatar_url"`
		FullName  string `json:"full_name"`
	} `json:"user_metadata"`
	jwt.RegisteredClaims
}

// Verifier checks provider-issued access tokens locally with the shared
// HS256 secret, so API clients can call write endpoints with a bearer token.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier returns a Verifier. An empty secret rejects every token.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Verify parses token and returns the identity it was issued to.
func (v *Verifier) Verify(token string) (Identity, error) {
	if len(v.secret) == 0 {
		return Identity{}, fmt.Errorf("%w: verification disabled", ErrInvalidToken)
	}
	claims := &accessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return Identity{
		ID:        claims.Subject,
		Email:     claims.Email,
		AvatarURL: claims.UserMetadata.AvatarURL,
		FullName:  claims.UserMetadata.FullName,
	}, nil
}
