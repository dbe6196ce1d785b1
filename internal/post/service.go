package post

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hsportal/portal/internal/identity"
	"github.com/hsportal/portal/internal/profile"
)

const (
	defaultLimit = 10
	maxLimit     = 50
)

// AuthorLookup loads the registered profile of an author.
type AuthorLookup interface {
	Get(ctx context.Context, id string) (profile.Profile, error)
}

// Service implements post publishing and browsing.
type Service struct {
	repo    Repository
	authors AuthorLookup
	policy  *bluemonday.Policy
	now     func() time.Time
}

// NewService builds a post service instance. authors may be nil.
func NewService(repo Repository, authors AuthorLookup) *Service {
	return &Service{repo: repo, authors: authors, policy: bluemonday.UGCPolicy(), now: time.Now}
}

// Input is the create form.
type Input struct {
	Title     string
	Content   string
	BannerURL string
	Tags      []string
}

// List returns a page of posts, newest first.
func (s *Service) List(ctx context.Context, q ListQuery) (Page, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	q.Search = strings.TrimSpace(q.Search)
	q.Tag = strings.TrimSpace(q.Tag)

	posts, total, err := s.repo.List(ctx, q)
	if err != nil {
		return Page{}, err
	}
	return Page{
		Data: posts,
		Pagination: Pagination{
			CurrentPage: q.Page,
			TotalPages:  (total + q.Limit - 1) / q.Limit,
			TotalItems:  total,
		},
	}, nil
}

// Get returns a post with its table of contents.
func (s *Service) Get(ctx context.Context, id string) (Detail, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Post: p, TOC: TableOfContents(p.Content)}, nil
}

// Create publishes a post by author.
func (s *Service) Create(ctx context.Context, author identity.Identity, in Input) (Post, error) {
	title := strings.TrimSpace(in.Title)
	content := s.policy.Sanitize(in.Content)
	if title == "" || strings.TrimSpace(content) == "" {
		return Post{}, fmt.Errorf("%w: title and content are required", ErrInvalid)
	}
	p := Post{
		ID:        uuid.NewString(),
		Title:     title,
		Content:   content,
		BannerURL: strings.TrimSpace(in.BannerURL),
		Tags:      normalizeTags(in.Tags),
		AuthorID:  author.ID,
		Author:    Author{Name: s.authorName(ctx, author), AvatarURL: author.AvatarURL},
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return Post{}, err
	}
	return p, nil
}

// authorName prefers the registered profile name, then the provider's
// display name, then the email.
func (s *Service) authorName(ctx context.Context, author identity.Identity) string {
	if s.authors != nil {
		if p, err := s.authors.Get(ctx, author.ID); err == nil && strings.TrimSpace(p.Name) != "" {
			return strings.TrimSpace(p.Name)
		}
	}
	if author.FullName != "" {
		return author.FullName
	}
	return author.Email
}

// Update edits a post owned by authorID.
func (s *Service) Update(ctx context.Context, id, authorID string, ch Changes) error {
	if ch.Title != nil {
		title := strings.TrimSpace(*ch.Title)
		if title == "" {
			return fmt.Errorf("%w: title must not be empty", ErrInvalid)
		}
		ch.Title = &title
	}
	if ch.Content != nil {
		content := s.policy.Sanitize(*ch.Content)
		if strings.TrimSpace(content) == "" {
			return fmt.Errorf("%w: content must not be empty", ErrInvalid)
		}
		ch.Content = &content
	}
	if ch.SetTags {
		ch.Tags = normalizeTags(ch.Tags)
	}
	return s.repo.Update(ctx, id, authorID, ch)
}

// Delete removes a post.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Tags lists every tag in use.
func (s *Service) Tags(ctx context.Context) ([]string, error) {
	return s.repo.Tags(ctx)
}

func normalizeTags(in []string) []string {
	tags := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
	}
	return tags
}
