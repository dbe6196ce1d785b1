package post

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hsportal/portal/internal/identity"
	"github.com/hsportal/portal/internal/profile"
)

var author = identity.Identity{ID: "author-1", Email: "editor@school.kr", FullName: "김선생", AvatarURL: "https://img/a.png"}

func newTestService() *Service {
	return newTestServiceWith(nil)
}

func newTestServiceWith(authors AuthorLookup) *Service {
	svc := NewService(NewMemoryRepository(), authors)
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	var n int
	svc.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Minute)
	}
	return svc
}

func TestCreateSanitizesContent(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	p, err := svc.Create(ctx, author, Input{
		Title:   "  공지  ",
		Content: `<h2>안내</h2><script>alert(1)</script><p onclick="x()">본문</p>`,
		Tags:    []string{"notice", " notice ", ""},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Title != "공지" {
		t.Fatalf("expected trimmed title, got %q", p.Title)
	}
	if strings.Contains(p.Content, "script") || strings.Contains(p.Content, "onclick") {
		t.Fatalf("content not sanitized: %s", p.Content)
	}
	if len(p.Tags) != 1 || p.Tags[0] != "notice" {
		t.Fatalf("unexpected tags %v", p.Tags)
	}
	if p.Author.Name != "김선생" || p.AuthorID != "author-1" {
		t.Fatalf("unexpected author %+v", p.Author)
	}
}

func TestCreateTakesAuthorNameFromProfile(t *testing.T) {
	profiles := profile.NewMemoryRepository()
	ctx := context.Background()
	if err := profiles.Upsert(ctx, profile.Profile{ID: "author-1", Email: author.Email, Name: "박지훈"}); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	svc := newTestServiceWith(profile.NewService(profiles))

	p, err := svc.Create(ctx, author, Input{Title: "t", Content: "<p>c</p>"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Author.Name != "박지훈" || p.Author.AvatarURL != author.AvatarURL {
		t.Fatalf("expected profile name, got %+v", p.Author)
	}

	noProfile := identity.Identity{ID: "author-2", Email: "staff@school.kr"}
	p, err = svc.Create(ctx, noProfile, Input{Title: "t", Content: "<p>c</p>"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Author.Name != "staff@school.kr" {
		t.Fatalf("expected email fallback, got %q", p.Author.Name)
	}
}

func TestCreateRequiresTitleAndContent(t *testing.T) {
	svc := newTestService()
	_, err := svc.Create(context.Background(), author, Input{Title: "x", Content: "<script>only</script>"})
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	_, err = svc.Create(context.Background(), author, Input{Content: "<p>body</p>"})
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestListPagesNewestFirst(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	for _, title := range []string{"one", "two", "three"} {
		tags := []string{"all"}
		if title == "two" {
			tags = append(tags, "even")
		}
		if _, err := svc.Create(ctx, author, Input{Title: title, Content: "<p>" + title + "</p>", Tags: tags}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	page, err := svc.List(ctx, ListQuery{Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Data) != 2 || page.Data[0].Title != "three" || page.Data[1].Title != "two" {
		t.Fatalf("unexpected first page %+v", page.Data)
	}
	if page.Pagination != (Pagination{CurrentPage: 1, TotalPages: 2, TotalItems: 3}) {
		t.Fatalf("unexpected pagination %+v", page.Pagination)
	}

	page, _ = svc.List(ctx, ListQuery{Page: 2, Limit: 2})
	if len(page.Data) != 1 || page.Data[0].Title != "one" {
		t.Fatalf("unexpected second page %+v", page.Data)
	}

	page, _ = svc.List(ctx, ListQuery{Tag: "even"})
	if len(page.Data) != 1 || page.Data[0].Title != "two" {
		t.Fatalf("tag filter returned %+v", page.Data)
	}

	page, _ = svc.List(ctx, ListQuery{Search: "THR"})
	if len(page.Data) != 1 || page.Data[0].Title != "three" {
		t.Fatalf("search returned %+v", page.Data)
	}
	if page.Pagination.CurrentPage != 1 {
		t.Fatalf("expected default page 1, got %d", page.Pagination.CurrentPage)
	}
}

func TestUpdateOnlyOwnPosts(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	p, err := svc.Create(ctx, author, Input{Title: "t", Content: "<p>c</p>", Tags: []string{"a"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	title := "new"
	if err := svc.Update(ctx, p.ID, "someone-else", Changes{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign post, got %v", err)
	}
	if err := svc.Update(ctx, p.ID, author.ID, Changes{Title: &title, SetTags: true, Tags: []string{"b", "b"}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := svc.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "new" || got.Content != "<p>c</p>" || len(got.Tags) != 1 || got.Tags[0] != "b" {
		t.Fatalf("unexpected post after update %+v", got.Post)
	}

	empty := " "
	if err := svc.Update(ctx, p.ID, author.ID, Changes{Title: &empty}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestDeleteAndTags(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	a, _ := svc.Create(ctx, author, Input{Title: "a", Content: "<p>a</p>", Tags: []string{"학교", "news"}})
	_, _ = svc.Create(ctx, author, Input{Title: "b", Content: "<p>b</p>", Tags: []string{"news"}})

	tags, err := svc.Tags(ctx)
	if err != nil {
		t.Fatalf("tags: %v", err)
	}
	if len(tags) != 2 || tags[0] != "news" || tags[1] != "학교" {
		t.Fatalf("unexpected tags %v", tags)
	}

	if err := svc.Delete(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := svc.Delete(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
