package kv

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryStore builds an in-process store for development and tests.
func NewMemoryStore() Store {
	return &memoryStore{values: make(map[string][]byte)}
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	s.values[key] = v
	return nil
}

func (s *memoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.values, k)
	}
	return nil
}

// MemoryFactory hands out memory stores that share nothing across scopes but
// return the same store for the same scope.
type MemoryFactory struct {
	mu     sync.Mutex
	scopes map[string]Store
}

// NewMemoryFactory constructs an empty MemoryFactory.
func NewMemoryFactory() *MemoryFactory {
	return &MemoryFactory{scopes: make(map[string]Store)}
}

// Scope returns the store for scope, creating it on first use.
func (f *MemoryFactory) Scope(scope string) Store {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.scopes[scope]
	if !ok {
		s = NewMemoryStore()
		f.scopes[scope] = s
	}
	return s
}
