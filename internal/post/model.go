package post

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no post matches.
	ErrNotFound = errors.New("post not found")
	// ErrInvalid wraps validation failures.
	ErrInvalid = errors.New("invalid post")
)

// Author is the display identity stored with a post.
type Author struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// Post is a blog entry. Content holds sanitized HTML.
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	BannerURL string    `json:"banner_url"`
	Tags      []string  `json:"tags"`
	AuthorID  string    `json:"author_id"`
	Author    Author    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// Heading is one table-of-contents entry.
type Heading struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Level int    `json:"level"`
}

// Detail is a post with its table of contents.
type Detail struct {
	Post
	TOC []Heading `json:"toc"`
}

// ListQuery filters and pages the post list.
type ListQuery struct {
	Page   int
	Limit  int
	Search string
	Tag    string
}

// Pagination describes the page returned by List.
type Pagination struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	TotalItems  int `json:"totalItems"`
}

// Page is one page of posts, newest first.
type Page struct {
	Data       []Post     `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Changes is a partial update. Nil fields are left untouched.
type Changes struct {
	Title     *string
	Content   *string
	BannerURL *string
	Tags      []string
	SetTags   bool
}
