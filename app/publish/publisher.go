package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/lysyi3m/feed-relay/app/transform"
)

// Article is a rewritten feed entry ready to be published.
type Article struct {
	Identifier string
	Link       string
	Image      string
	Author     string
	Categories []string
	Variants   transform.Result
}

// Outcome reports what happened to one article. Posts holds every language
// that was created, including on partial failure.
type Outcome struct {
	Identifier string
	Posts      map[string]Created
	Attempts   int
	Linked     bool
	Err        error
	LinkErr    error
}

func (o Outcome) Published() bool {
	return o.Err == nil
}

// Links returns the public links of the created posts in language order.
func (o Outcome) Links(languages []string) []string {
	var links []string
	for _, lang := range languages {
		if created, ok := o.Posts[lang]; ok && created.Link != "" {
			links = append(links, created.Link)
		}
	}
	return links
}

type Options struct {
	Languages         []string
	Status            string
	AuthorID          int64
	DefaultCategoryID int64
	Retries           int
	RetryDelay        time.Duration
	CallTimeout       time.Duration
}

type Publisher struct {
	backend Backend
	opts    Options
}

func NewPublisher(backend Backend, opts Options) *Publisher {
	return &Publisher{
		backend: backend,
		opts:    opts,
	}
}

func (p *Publisher) Languages() []string {
	return p.opts.Languages
}

// Publish sends articles one after another and never fails as a whole.
func (p *Publisher) Publish(ctx context.Context, source string, articles []Article) []Outcome {
	resolver := newCategoryResolver(p.backend, p.opts.DefaultCategoryID)

	outcomes := make([]Outcome, 0, len(articles))
	for _, article := range articles {
		outcome := p.publishArticle(ctx, source, resolver, article)
		if outcome.Err != nil {
			slog.Warn("Article publish failed", "source", source, "identifier", article.Identifier, "attempts", outcome.Attempts, "error", outcome.Err)
		} else {
			slog.Info("Article published", "source", source, "identifier", article.Identifier, "posts", len(outcome.Posts), "linked", outcome.Linked)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (p *Publisher) publishArticle(ctx context.Context, source string, resolver *categoryResolver, article Article) Outcome {
	outcome := Outcome{
		Identifier: article.Identifier,
		Posts:      make(map[string]Created, len(p.opts.Languages)),
	}

	var errs []error
	for _, lang := range p.opts.Languages {
		variant, ok := article.Variants[lang]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: no %s variant", ErrRejected, lang))
			continue
		}

		post := Post{
			Lang:        lang,
			Title:       variant.Title,
			Content:     variant.Content,
			Excerpt:     variant.Excerpt,
			Status:      p.opts.Status,
			Author:      article.Author,
			AuthorID:    p.opts.AuthorID,
			CategoryIDs: resolver.Resolve(ctx, lang, article.Categories),
			SourceLink:  article.Link,
			SourceImage: article.Image,
			SourceName:  source,
		}

		created, attempts, err := p.create(ctx, post)
		outcome.Attempts += attempts
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", lang, err))
			continue
		}
		outcome.Posts[lang] = created
	}

	if len(errs) > 0 {
		outcome.Err = errors.Join(errs...)
		return outcome
	}

	if len(outcome.Posts) > 1 {
		ids := make(map[string]int64, len(outcome.Posts))
		for lang, created := range outcome.Posts {
			ids[lang] = created.ID
		}

		linkCtx, cancel := p.callContext(ctx)
		err := p.backend.LinkTranslations(linkCtx, ids)
		cancel()
		if err != nil {
			outcome.LinkErr = fmt.Errorf("%w: %w", ErrLinking, err)
			slog.Warn("Failed to link translations", "source", source, "identifier", article.Identifier, "error", err)
		} else {
			outcome.Linked = true
		}
	}

	return outcome
}

// create retries transient failures with a linearly growing delay.
func (p *Publisher) create(ctx context.Context, post Post) (Created, int, error) {
	var created Created
	attempts := 0

	step := 0
	backoff := retry.WithMaxRetries(uint64(p.opts.Retries), retry.BackoffFunc(func() (time.Duration, bool) {
		step++
		return time.Duration(step) * p.opts.RetryDelay, false
	}))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++

		callCtx, cancel := p.callContext(ctx)
		defer cancel()

		result, err := p.backend.CreatePost(callCtx, post)
		if err == nil {
			created = result
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrRejected) {
			return err
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return fmt.Errorf("%w: %w", ErrRejected, err)
		}

		slog.Debug("Retrying publish", "lang", post.Lang, "attempt", attempts, "error", err)
		return retry.RetryableError(fmt.Errorf("%w: %w", ErrTransient, err))
	})

	return created, attempts, err
}

func (p *Publisher) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.opts.CallTimeout)
}
