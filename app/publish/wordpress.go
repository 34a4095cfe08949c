package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// WordPressBackend publishes through the WordPress REST API. Languages are
// passed as the "lang" parameter understood by Polylang.
type WordPressBackend struct {
	client *resty.Client
}

func NewWordPressBackend(baseURL, user, password, userAgent string, timeout time.Duration) *WordPressBackend {
	client := resty.New().
		SetBaseURL(baseURL+"/wp-json/wp/v2").
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)

	if user != "" {
		client.SetBasicAuth(user, password)
	}

	return &WordPressBackend{client: client}
}

type wpPost struct {
	ID   int64  `json:"id"`
	Link string `json:"link"`
}

type wpCategory struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (b *WordPressBackend) CreatePost(ctx context.Context, post Post) (Created, error) {
	body := map[string]any{
		"title":      post.Title,
		"content":    post.Content,
		"excerpt":    post.Excerpt,
		"status":     post.Status,
		"categories": post.CategoryIDs,
		"lang":       post.Lang,
		// Ignored by WordPress unless the site registers these keys.
		"meta": map[string]string{
			"source_link":  post.SourceLink,
			"origin_image": post.SourceImage,
			"donor":        post.SourceName,
			"author":       post.Author,
		},
	}
	if post.AuthorID > 0 {
		body["author"] = post.AuthorID
	}

	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(body).
		Post("/posts")
	if err != nil {
		return Created{}, err
	}
	if resp.IsError() {
		return Created{}, &StatusError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	// The post may exist even when the reply is unreadable, so nothing past
	// this point is worth retrying.
	var created wpPost
	if err := json.Unmarshal(resp.Body(), &created); err != nil {
		return Created{}, fmt.Errorf("%w: undecodable reply (status %d): %w", ErrRejected, resp.StatusCode(), err)
	}
	if created.ID == 0 {
		return Created{}, fmt.Errorf("%w: reply carries no post id (status %d)", ErrRejected, resp.StatusCode())
	}

	return Created{ID: created.ID, Link: created.Link}, nil
}

func (b *WordPressBackend) ListCategories(ctx context.Context, lang string) ([]Category, error) {
	var categories []wpCategory
	resp, err := b.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"per_page":   "100",
			"hide_empty": "false",
			"lang":       lang,
		}).
		SetResult(&categories).
		Get("/categories")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, &StatusError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	out := make([]Category, 0, len(categories))
	for _, c := range categories {
		out = append(out, Category{ID: c.ID, Name: c.Name})
	}
	return out, nil
}

// LinkTranslations updates one of the posts with the full translation map;
// Polylang applies it to every member.
func (b *WordPressBackend) LinkTranslations(ctx context.Context, ids map[string]int64) error {
	var anchor int64
	for _, id := range ids {
		if anchor == 0 || id < anchor {
			anchor = id
		}
	}
	if anchor == 0 {
		return fmt.Errorf("no posts to link")
	}

	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"translations": ids}).
		Post("/posts/" + strconv.FormatInt(anchor, 10))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &StatusError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}
