package post

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
)

type memoryRepository struct {
	mu    sync.RWMutex
	posts map[string]Post
}

// NewMemoryRepository constructs an in-memory repository for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{posts: make(map[string]Post)}
}

func (r *memoryRepository) List(_ context.Context, q ListQuery) ([]Post, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	search := strings.ToLower(q.Search)
	var matched []Post
	for _, p := range r.posts {
		if search != "" && !strings.Contains(strings.ToLower(p.Title), search) && !strings.Contains(strings.ToLower(p.Content), search) {
			continue
		}
		if q.Tag != "" && !slices.Contains(p.Tags, q.Tag) {
			continue
		}
		matched = append(matched, clone(p))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	from := (q.Page - 1) * q.Limit
	if from >= len(matched) {
		return []Post{}, len(matched), nil
	}
	to := min(from+q.Limit, len(matched))
	return matched[from:to], len(matched), nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.posts[id]
	if !ok {
		return Post{}, ErrNotFound
	}
	return clone(p), nil
}

func (r *memoryRepository) Create(_ context.Context, p Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts[p.ID] = clone(p)
	return nil
}

func (r *memoryRepository) Update(_ context.Context, id, authorID string, ch Changes) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok || p.AuthorID != authorID {
		return ErrNotFound
	}
	if ch.Title != nil {
		p.Title = *ch.Title
	}
	if ch.Content != nil {
		p.Content = *ch.Content
	}
	if ch.BannerURL != nil {
		p.BannerURL = *ch.BannerURL
	}
	if ch.SetTags {
		p.Tags = slices.Clone(ch.Tags)
	}
	r.posts[id] = p
	return nil
}

func (r *memoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[id]; !ok {
		return ErrNotFound
	}
	delete(r.posts, id)
	return nil
}

func (r *memoryRepository) Tags(context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	tags := []string{}
	for _, p := range r.posts {
		for _, t := range p.Tags {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				tags = append(tags, t)
			}
		}
	}
	sort.Strings(tags)
	return tags, nil
}

func clone(p Post) Post {
	p.Tags = slices.Clone(p.Tags)
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return p
}
