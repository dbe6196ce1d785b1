package profile

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const maxGrade = 3

// Service validates and stores profiles.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds a profile service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// SaveInput is the registration or edit form.
type SaveInput struct {
	Name     string
	Grade    int
	Class    int
	Number   int
	Subjects map[string]string
}

// Get returns the profile for id or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (Profile, error) {
	return s.repo.Get(ctx, id)
}

// Save creates or replaces the profile owned by id.
func (s *Service) Save(ctx context.Context, id, email string, in SaveInput) (Profile, error) {
	if strings.TrimSpace(id) == "" {
		return Profile{}, fmt.Errorf("%w: missing owner", ErrInvalid)
	}
	subjects, err := validate(in)
	if err != nil {
		return Profile{}, err
	}

	taken, err := s.repo.ExistsPlacement(ctx, in.Grade, in.Class, in.Number, id)
	if err != nil {
		return Profile{}, err
	}
	if taken {
		return Profile{}, ErrDuplicateStudent
	}

	p := Profile{
		ID:        id,
		Email:     email,
		Name:      strings.TrimSpace(in.Name),
		Grade:     in.Grade,
		Class:     in.Class,
		Number:    in.Number,
		Subjects:  subjects,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.repo.Upsert(ctx, p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func validate(in SaveInput) (map[string]string, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if in.Grade < 1 || in.Grade > maxGrade {
		return nil, fmt.Errorf("%w: grade must be between 1 and %d", ErrInvalid, maxGrade)
	}
	if in.Class < 1 {
		return nil, fmt.Errorf("%w: class must be positive", ErrInvalid)
	}
	if in.Number < 1 {
		return nil, fmt.Errorf("%w: number must be positive", ErrInvalid)
	}

	subjects := make(map[string]string)
	for track, subject := range in.Subjects {
		track = strings.ToUpper(strings.TrimSpace(track))
		subject = strings.TrimSpace(subject)
		if subject == "" {
			continue
		}
		if !validElective(in.Grade, track, subject) {
			return nil, fmt.Errorf("%w: %q is not offered on track %s for grade %d", ErrInvalid, subject, track, in.Grade)
		}
		subjects[track] = subject
	}
	if len(subjects) == 0 {
		return nil, nil
	}
	return subjects, nil
}
