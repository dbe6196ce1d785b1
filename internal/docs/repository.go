package docs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/hsportal/portal/internal/infra"
)

// Repository persists documents, one row per type.
type Repository interface {
	Get(ctx context.Context, t Type) (Document, error)
	// Upsert stores d and reports whether a new row was created.
	Upsert(ctx context.Context, d Document) (created bool, err error)
}

// PostgresRepository stores documents in the docs table.
type PostgresRepository struct {
	db infra.DB
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db infra.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get fetches the document of type t.
func (r *PostgresRepository) Get(ctx context.Context, t Type) (Document, error) {
	var d Document
	var typ string
	err := r.db.QueryRow(ctx, `SELECT type, content, updated_at FROM docs WHERE type = $1`, string(t)).
		Scan(&typ, &d.Content, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("select doc: %w", err)
	}
	d.Type = Type(typ)
	d.UpdatedAt = d.UpdatedAt.UTC()
	return d, nil
}

// Upsert inserts or replaces the document. xmax is zero only for rows the
// statement inserted.
func (r *PostgresRepository) Upsert(ctx context.Context, d Document) (bool, error) {
	var created bool
	err := r.db.QueryRow(ctx, `INSERT INTO docs (type, content, updated_at) VALUES ($1, $2, $3)
        ON CONFLICT (type) DO UPDATE SET content = EXCLUDED.content, updated_at = EXCLUDED.updated_at
        RETURNING (xmax = 0)`, string(d.Type), d.Content, d.UpdatedAt).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("upsert doc: %w", err)
	}
	return created, nil
}

type memoryRepository struct {
	mu   sync.RWMutex
	docs map[Type]Document
}

// NewMemoryRepository constructs an in-memory repository for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{docs: make(map[Type]Document)}
}

func (r *memoryRepository) Get(_ context.Context, t Type) (Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.docs[t]
	if !ok {
		return Document{}, ErrNotFound
	}
	return d, nil
}

func (r *memoryRepository) Upsert(_ context.Context, d Document) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.docs[d.Type]
	r.docs[d.Type] = d
	return !exists, nil
}
