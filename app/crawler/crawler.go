// Package crawler wires one source through the pipeline: fetch, drop what
// was seen before, rewrite, publish and report.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/feed-relay/app/dedupe"
	"github.com/lysyi3m/feed-relay/app/feed"
	"github.com/lysyi3m/feed-relay/app/publish"
	"github.com/lysyi3m/feed-relay/app/tasks"
	"github.com/lysyi3m/feed-relay/app/telemetry"
	"github.com/lysyi3m/feed-relay/app/transform"
)

type Ingestor interface {
	Fetch(ctx context.Context, url string) (*gofeed.Feed, error)
	ExtractItems(ctx context.Context, parsed *gofeed.Feed, source *feed.Config) []feed.Item
	ExtractContent(ctx context.Context, items []feed.Item, source *feed.Config) []feed.Item
}

type Transformer interface {
	Transform(ctx context.Context, title, content string) (transform.Result, error)
}

type Publisher interface {
	Publish(ctx context.Context, source string, articles []publish.Article) []publish.Outcome
	Languages() []string
}

type Crawler struct {
	source      *feed.Config
	ingestor    Ingestor
	store       dedupe.Store
	transformer Transformer
	publisher   Publisher
	sink        telemetry.Sink
	concurrency int
	now         func() time.Time
	task        *tasks.Task
}

func New(source *feed.Config, ingestor Ingestor, store dedupe.Store, transformer Transformer,
	publisher Publisher, sink telemetry.Sink, concurrency int) *Crawler {
	if sink == nil {
		sink = telemetry.Nop{}
	}

	c := &Crawler{
		source:      source,
		ingestor:    ingestor,
		store:       store,
		transformer: transformer,
		publisher:   publisher,
		sink:        sink,
		concurrency: max(concurrency, 1),
		now:         func() time.Time { return time.Now().UTC() },
	}
	c.task = tasks.NewTask(source.Name, tasks.TaskTypeCrawl, c)
	return c
}

func (c *Crawler) Name() string {
	return c.source.Name
}

// Task returns the same *tasks.Task on every call, so it can be added to
// and removed from a scheduler by identity.
func (c *Crawler) Task() *tasks.Task {
	return c.task
}

type rewrite struct {
	item   feed.Item
	result transform.Result
	err    error
}

// Execute runs one crawl. Per-item failures are reported through telemetry
// and never returned; an error means the run itself could not proceed.
func (c *Crawler) Execute(ctx context.Context) error {
	name := c.source.Name

	c.emit(ctx, telemetry.Event{Name: telemetry.EventBatchStarted, Success: true})

	if err := c.store.Load(ctx); err != nil {
		c.emit(ctx, telemetry.Event{Name: telemetry.EventBatchCompleted, Message: err.Error()})
		return fmt.Errorf("failed to load seen identifiers: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.source.Settings.GetTimeout())
	parsed, err := c.ingestor.Fetch(fetchCtx, c.source.URL)
	cancel()
	if err != nil {
		c.emit(ctx, telemetry.Event{Name: telemetry.EventBatchCompleted, Message: err.Error()})
		return err
	}

	items := c.ingestor.ExtractItems(ctx, parsed, c.source)
	if ctx.Err() != nil {
		return c.interrupted(ctx, nil, 0)
	}
	fresh := c.store.FilterNew(items)
	candidates := c.selectCandidates(fresh)

	slog.Info("Feed items selected", "source", name, "total", len(items), "new", len(fresh), "selected", len(candidates))

	if len(candidates) == 0 {
		c.emit(ctx, telemetry.Event{Name: telemetry.EventBatchCompleted, Success: true})
		return nil
	}

	candidates = c.ingestor.ExtractContent(ctx, candidates, c.source)

	var (
		articles []publish.Article
		record   []string
	)
	for _, rw := range c.transformAll(ctx, candidates) {
		if rw.err != nil {
			c.itemFailed(ctx, rw.item, fmt.Errorf("transform: %w", rw.err))
			if errors.Is(rw.err, transform.ErrRejected) || errors.Is(rw.err, transform.ErrParse) {
				record = append(record, rw.item.ID)
			}
			continue
		}

		articles = append(articles, publish.Article{
			Identifier: rw.item.ID,
			Link:       rw.item.Link,
			Image:      rw.item.OriginImage,
			Author:     rw.item.Author,
			Categories: rw.item.Categories,
			Variants:   rw.result,
		})
	}

	var (
		links     []string
		published int
	)
	byID := make(map[string]feed.Item, len(candidates))
	for _, item := range candidates {
		byID[item.ID] = item
	}

	for _, outcome := range c.publisher.Publish(ctx, name, articles) {
		links = append(links, outcome.Links(c.publisher.Languages())...)

		if outcome.Published() {
			published++
			record = append(record, outcome.Identifier)
			continue
		}

		c.itemFailed(ctx, byID[outcome.Identifier], fmt.Errorf("publish: %w", outcome.Err))
		if len(outcome.Posts) > 0 || permanentPublishFailure(outcome.Err) {
			record = append(record, outcome.Identifier)
		}
	}

	if len(record) > 0 {
		// Whatever was published must be remembered even if the run was cancelled.
		if err := c.store.Record(context.WithoutCancel(ctx), record); err != nil {
			c.emit(ctx, telemetry.Event{Name: telemetry.EventBatchCompleted, Links: links, Count: published, Message: err.Error()})
			return fmt.Errorf("failed to record seen identifiers: %w", err)
		}
	}

	if ctx.Err() != nil {
		return c.interrupted(ctx, links, published)
	}

	slog.Info("Crawl finished", "source", name, "selected", len(candidates), "published", published, "recorded", len(record))

	c.emit(ctx, telemetry.Event{Name: telemetry.EventBatchCompleted, Links: links, Count: published, Success: true})
	return nil
}

// interrupted closes a run that was cancelled or timed out part way.
func (c *Crawler) interrupted(ctx context.Context, links []string, published int) error {
	err := fmt.Errorf("crawl interrupted: %w", ctx.Err())
	slog.Warn("Crawl interrupted", "source", c.source.Name, "published", published, "error", ctx.Err())
	c.emit(ctx, telemetry.Event{Name: telemetry.EventBatchCompleted, Links: links, Count: published, Message: err.Error()})
	return err
}

// selectCandidates drops filtered items and repeated identifiers, keeping
// the first occurrence, then applies the per-run cap.
func (c *Crawler) selectCandidates(items []feed.Item) []feed.Item {
	candidates := make([]feed.Item, 0, len(items))
	selected := make(map[string]bool, len(items))
	for _, item := range items {
		if item.IsFiltered {
			slog.Debug("Item filtered", "source", c.source.Name, "identifier", item.ID, "reason", item.FilterReason)
			continue
		}
		if selected[item.ID] {
			slog.Debug("Duplicate item skipped", "source", c.source.Name, "identifier", item.ID)
			continue
		}
		selected[item.ID] = true
		candidates = append(candidates, item)
	}

	if limit := c.source.Settings.MaxItems; limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// transformAll rewrites items concurrently and returns results in input order.
func (c *Crawler) transformAll(ctx context.Context, items []feed.Item) []rewrite {
	results := make([]rewrite, len(items))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, item := range items {
		g.Go(func() error {
			result, err := c.transformer.Transform(ctx, item.Title, item.Content)
			results[i] = rewrite{item: item, result: result, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (c *Crawler) itemFailed(ctx context.Context, item feed.Item, err error) {
	slog.Warn("Item failed", "source", c.source.Name, "identifier", item.ID, "error", err)

	var links []string
	if item.Link != "" {
		links = []string{item.Link}
	}
	c.emit(ctx, telemetry.Event{
		Name:    telemetry.EventItemFailed,
		Links:   links,
		Count:   1,
		Message: fmt.Sprintf("%s: %v", item.Title, err),
	})
}

// emit reports on a context detached from the run, so a cancelled run can
// still say how it ended.
func (c *Crawler) emit(ctx context.Context, event telemetry.Event) {
	event.Source = c.source.Name
	event.Timestamp = c.now()
	c.sink.Emit(context.WithoutCancel(ctx), event)
}

// permanentPublishFailure is true when every language failed for a reason
// that a retry on the next firing would not fix.
func permanentPublishFailure(err error) bool {
	return errors.Is(err, publish.ErrRejected) && !errors.Is(err, publish.ErrTransient)
}
