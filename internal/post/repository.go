package post

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/hsportal/portal/internal/infra"
)

// Repository persists posts.
type Repository interface {
	List(ctx context.Context, q ListQuery) ([]Post, int, error)
	Get(ctx context.Context, id string) (Post, error)
	Create(ctx context.Context, p Post) error
	// Update applies ch to the post id owned by authorID.
	Update(ctx context.Context, id, authorID string, ch Changes) error
	Delete(ctx context.Context, id string) error
	Tags(ctx context.Context) ([]string, error)
}

// PostgresRepository stores posts in the posts table.
type PostgresRepository struct {
	db infra.DB
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db infra.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const postColumns = `id, title, content, banner_url, tags, author, author_name, author_avatar_url, created_at`

const listFilter = `WHERE ($1 = '' OR title ILIKE '%' || $1 || '%' OR content ILIKE '%' || $1 || '%')
        AND ($2 = '' OR $2 = ANY(tags))`

// List returns one page of posts and the total matching count.
func (r *PostgresRepository) List(ctx context.Context, q ListQuery) ([]Post, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM posts `+listFilter, q.Search, q.Tag).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	rows, err := r.db.Query(ctx, `SELECT `+postColumns+` FROM posts `+listFilter+`
        ORDER BY created_at DESC LIMIT $3 OFFSET $4`, q.Search, q.Tag, q.Limit, (q.Page-1)*q.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	posts := make([]Post, 0, q.Limit)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, 0, err
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	return posts, total, nil
}

// Get fetches one post.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Post, error) {
	p, err := scanPost(r.db.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Post{}, ErrNotFound
	}
	return p, err
}

// Create inserts a new post.
func (r *PostgresRepository) Create(ctx context.Context, p Post) error {
	_, err := r.db.Exec(ctx, `INSERT INTO posts (`+postColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.Title, p.Content, p.BannerURL, p.Tags, p.AuthorID, p.Author.Name, p.Author.AvatarURL, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// Update writes only the fields set in ch.
func (r *PostgresRepository) Update(ctx context.Context, id, authorID string, ch Changes) error {
	var sets []string
	args := []any{id, authorID}
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}
	if ch.Title != nil {
		add("title", *ch.Title)
	}
	if ch.Content != nil {
		add("content", *ch.Content)
	}
	if ch.BannerURL != nil {
		add("banner_url", *ch.BannerURL)
	}
	if ch.SetTags {
		add("tags", ch.Tags)
	}
	if len(sets) == 0 {
		var exists bool
		err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM posts WHERE id = $1 AND author = $2)`, id, authorID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check post: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return nil
	}

	tag, err := r.db.Exec(ctx, `UPDATE posts SET `+strings.Join(sets, ", ")+` WHERE id = $1 AND author = $2`, args...)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a post.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Tags returns every distinct tag in alphabetical order.
func (r *PostgresRepository) Tags(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT unnest(tags) AS tag FROM posts ORDER BY tag`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	tags, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

func scanPost(row pgx.Row) (Post, error) {
	var p Post
	if err := row.Scan(&p.ID, &p.Title, &p.Content, &p.BannerURL, &p.Tags, &p.AuthorID,
		&p.Author.Name, &p.Author.AvatarURL, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Post{}, err
		}
		return Post{}, fmt.Errorf("scan post: %w", err)
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}
