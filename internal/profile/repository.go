package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hsportal/portal/internal/infra"
)

// Repository persists profiles. Rows are read and upserted, never deleted.
type Repository interface {
	Get(ctx context.Context, id string) (Profile, error)
	Upsert(ctx context.Context, p Profile) error
	// ExistsPlacement reports whether an account other than excludeID holds
	// the grade/class/number placement.
	ExistsPlacement(ctx context.Context, grade, class, number int, excludeID string) (bool, error)
}

// PostgresRepository stores profiles in the profiles table.
type PostgresRepository struct {
	db infra.DB
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db infra.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get fetches the profile for id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Profile, error) {
	row := r.db.QueryRow(ctx, `SELECT id, email, name, grade, class, number, subjects, updated_at
        FROM profiles WHERE id = $1`, id)

	var p Profile
	var subjects []byte
	var updatedAt time.Time
	if err := row.Scan(&p.ID, &p.Email, &p.Name, &p.Grade, &p.Class, &p.Number, &subjects, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("select profile: %w", err)
	}
	if len(subjects) > 0 {
		if err := json.Unmarshal(subjects, &p.Subjects); err != nil {
			return Profile{}, fmt.Errorf("decode subjects: %w", err)
		}
	}
	p.UpdatedAt = updatedAt.UTC()
	return p, nil
}

// Upsert inserts or fully replaces the profile row.
func (r *PostgresRepository) Upsert(ctx context.Context, p Profile) error {
	subjects, err := json.Marshal(p.Subjects)
	if err != nil {
		return fmt.Errorf("encode subjects: %w", err)
	}
	_, err = r.db.Exec(ctx, `INSERT INTO profiles (id, email, name, grade, class, number, subjects, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name, grade = EXCLUDED.grade,
            class = EXCLUDED.class, number = EXCLUDED.number, subjects = EXCLUDED.subjects, updated_at = EXCLUDED.updated_at`,
		p.ID, p.Email, p.Name, p.Grade, p.Class, p.Number, subjects, p.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// ExistsPlacement checks the duplicate-student constraint.
func (r *PostgresRepository) ExistsPlacement(ctx context.Context, grade, class, number int, excludeID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM profiles
        WHERE grade = $1 AND class = $2 AND number = $3 AND id <> $4)`, grade, class, number, excludeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check placement: %w", err)
	}
	return exists, nil
}
