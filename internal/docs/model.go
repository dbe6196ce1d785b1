package docs

import (
	"errors"
	"time"
)

var (
	// ErrNotFound means no document of the type has been saved yet.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidType is returned for types other than privacy and terms.
	ErrInvalidType = errors.New("invalid document type")
	// ErrMissingFields is returned when type, content or password is empty.
	ErrMissingFields = errors.New("missing required fields")
	// ErrWrongPassword is returned when the editor password does not match.
	ErrWrongPassword = errors.New("invalid password")
)

// Type names a legal document.
type Type string

const (
	Privacy Type = "privacy"
	Terms   Type = "terms"
)

// ParseType validates a document type.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case Privacy, Terms:
		return t, nil
	default:
		return "", ErrInvalidType
	}
}

// Title is the Korean display name of the document.
func (t Type) Title() string {
	if t == Privacy {
		return "개인정보처리방침"
	}
	return "이용약관"
}

// Document is one stored legal document.
type Document struct {
	Type      Type      `json:"type"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}
