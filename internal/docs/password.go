package docs

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Authenticator checks the shared editor password against a bcrypt hash, or
// against a plain password when no hash is configured.
type Authenticator struct {
	hash  []byte
	plain []byte
}

// NewAuthenticator builds an Authenticator. With neither value set every
// password is rejected.
func NewAuthenticator(hash, plain string) *Authenticator {
	return &Authenticator{hash: []byte(hash), plain: []byte(plain)}
}

// Check reports whether password is the editor password.
func (a *Authenticator) Check(password string) bool {
	if password == "" {
		return false
	}
	if len(a.hash) > 0 {
		err := bcrypt.CompareHashAndPassword(a.hash, []byte(password))
		return err == nil
	}
	if len(a.plain) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(a.plain, []byte(password)) == 1
}

// HashPassword returns the bcrypt hash to configure as ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
