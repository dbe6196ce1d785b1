package docs

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// Service reads and edits the legal documents.
type Service struct {
	repo   Repository
	auth   *Authenticator
	policy *bluemonday.Policy
	now    func() time.Time
}

// NewService builds a docs service instance.
func NewService(repo Repository, auth *Authenticator) *Service {
	return &Service{repo: repo, auth: auth, policy: bluemonday.UGCPolicy(), now: time.Now}
}

// Get returns the stored document. A document that was never saved comes
// back empty.
func (s *Service) Get(ctx context.Context, typ string) (Document, error) {
	t, err := ParseType(typ)
	if err != nil {
		return Document{}, err
	}
	d, err := s.repo.Get(ctx, t)
	if errors.Is(err, ErrNotFound) {
		return Document{Type: t}, nil
	}
	return d, err
}

// SaveInput is the editor form.
type SaveInput struct {
	Type     string
	Content  string
	Password string
}

// Save stores the document if the password matches and reports whether it
// was created.
func (s *Service) Save(ctx context.Context, in SaveInput) (Document, bool, error) {
	if in.Type == "" || strings.TrimSpace(in.Content) == "" || in.Password == "" {
		return Document{}, false, ErrMissingFields
	}
	t, err := ParseType(in.Type)
	if err != nil {
		return Document{}, false, err
	}
	if !s.auth.Check(in.Password) {
		return Document{}, false, ErrWrongPassword
	}
	d := Document{Type: t, Content: s.policy.Sanitize(in.Content), UpdatedAt: s.now().UTC()}
	created, err := s.repo.Upsert(ctx, d)
	if err != nil {
		return Document{}, false, err
	}
	return d, created, nil
}
