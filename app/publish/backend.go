package publish

import (
	"context"
)

// Post is one language variant as sent to the backend.
type Post struct {
	Lang        string
	Title       string
	Content     string
	Excerpt     string
	Status      string
	Author      string
	AuthorID    int64
	CategoryIDs []int64
	SourceLink  string
	SourceImage string
	SourceName  string
}

type Created struct {
	ID   int64
	Link string
}

type Category struct {
	ID   int64
	Name string
}

type Backend interface {
	CreatePost(ctx context.Context, post Post) (Created, error)
	ListCategories(ctx context.Context, lang string) ([]Category, error)
	// LinkTranslations marks the posts (lang -> post id) as translations of
	// one another.
	LinkTranslations(ctx context.Context, ids map[string]int64) error
}
