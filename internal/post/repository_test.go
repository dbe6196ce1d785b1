package post

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var postRowColumns = []string{"id", "title", "content", "banner_url", "tags", "author", "author_name", "author_avatar_url", "created_at"}

func TestPostgresRepository_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM posts").
		WithArgs("급식", "").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(11))
	mock.ExpectQuery("SELECT id, title, content, banner_url, tags, author, author_name, author_avatar_url, created_at FROM posts").
		WithArgs("급식", "", 10, 10).
		WillReturnRows(pgxmock.NewRows(postRowColumns).
			AddRow("p-1", "급식 변경", "<p>x</p>", "", []string{"notice"}, "author-1", "김선생", "", created))

	posts, total, err := NewPostgresRepository(mock).List(context.Background(), ListQuery{Page: 2, Limit: 10, Search: "급식"})
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	require.Len(t, posts, 1)
	assert.Equal(t, "김선생", posts[0].Author.Name)
	assert.Equal(t, []string{"notice"}, posts[0].Tags)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM posts WHERE id =").
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows(postRowColumns))

	_, err = NewPostgresRepository(mock).Get(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_UpdateOnlySetFields(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE posts SET title = \\$3, tags = \\$4 WHERE id = \\$1 AND author = \\$2").
		WithArgs("p-1", "author-1", "new", []string{"a"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE posts SET").
		WithArgs("p-1", "intruder", "new").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewPostgresRepository(mock)
	title := "new"
	require.NoError(t, repo.Update(context.Background(), "p-1", "author-1", Changes{Title: &title, SetTags: true, Tags: []string{"a"}}))
	err = repo.Update(context.Background(), "p-1", "intruder", Changes{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_DeleteMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM posts").
		WithArgs("ghost").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err = NewPostgresRepository(mock).Delete(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Tags(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT DISTINCT unnest\\(tags\\)").
		WillReturnRows(pgxmock.NewRows([]string{"tag"}).AddRow("news").AddRow("학교"))

	tags, err := NewPostgresRepository(mock).Tags(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"news", "학교"}, tags)
	require.NoError(t, mock.ExpectationsWereMet())
}
