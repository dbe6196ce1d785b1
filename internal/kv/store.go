// Package kv provides the small persistent key-value store that stands in for
// browser-local storage. Every store is scoped: keys written through one scope
// are invisible to any other.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("kv: key not found")

// Store persists opaque values by key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}

// Factory returns the store for a scope.
type Factory interface {
	Scope(scope string) Store
}
