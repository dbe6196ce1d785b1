package profile

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Profile
}

// NewMemoryRepository constructs an in-memory repository for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Profile)}
}

func (r *memoryRepository) Get(_ context.Context, id string) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.storage[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return clone(p), nil
}

func (r *memoryRepository) Upsert(_ context.Context, p Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storage[p.ID] = clone(p)
	return nil
}

func (r *memoryRepository) ExistsPlacement(_ context.Context, grade, class, number int, excludeID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, p := range r.storage {
		if id != excludeID && p.Grade == grade && p.Class == class && p.Number == number {
			return true, nil
		}
	}
	return false, nil
}

func clone(p Profile) Profile {
	if p.Subjects != nil {
		subjects := make(map[string]string, len(p.Subjects))
		for k, v := range p.Subjects {
			subjects[k] = v
		}
		p.Subjects = subjects
	}
	return p
}
