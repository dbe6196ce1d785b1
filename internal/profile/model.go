package profile

import (
	"errors"
	"time"
)

var (
	// ErrNotFound means the user has no profile row yet.
	ErrNotFound = errors.New("profile not found")
	// ErrDuplicateStudent means another account already claims the same
	// grade/class/number placement.
	ErrDuplicateStudent = errors.New("student number already registered")
	// ErrInvalid wraps validation failures.
	ErrInvalid = errors.New("invalid profile")
)

// Profile is the local business record keyed 1:1 by the identity id.
type Profile struct {
	ID        string            `json:"id"`
	Email     string            `json:"email"`
	Name      string            `json:"name"`
	Grade     int               `json:"grade"`
	Class     int               `json:"class"`
	Number    int               `json:"number"`
	Subjects  map[string]string `json:"subjects,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Elective returns the subject chosen for track, if any.
func (p Profile) Elective(track string) (string, bool) {
	s, ok := p.Subjects[track]
	return s, ok && s != ""
}
