package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/feed-relay/app/dedupe"
	"github.com/lysyi3m/feed-relay/app/feed"
	"github.com/lysyi3m/feed-relay/app/publish"
	"github.com/lysyi3m/feed-relay/app/telemetry"
	"github.com/lysyi3m/feed-relay/app/transform"
)

type fakeIngestor struct {
	items     []feed.Item
	fetchErr  error
	extracted int
}

func (f *fakeIngestor) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	if f.fetchErr != nil {
		return nil, &feed.FetchError{URL: url, Err: f.fetchErr}
	}
	return &gofeed.Feed{}, nil
}

func (f *fakeIngestor) ExtractItems(ctx context.Context, parsed *gofeed.Feed, source *feed.Config) []feed.Item {
	return append([]feed.Item(nil), f.items...)
}

func (f *fakeIngestor) ExtractContent(ctx context.Context, items []feed.Item, source *feed.Config) []feed.Item {
	f.extracted += len(items)
	return items
}

type fakeTransformer struct {
	mu     sync.Mutex
	errs   map[string]error
	titles []string
	// called before every rewrite
	before func()
}

func (f *fakeTransformer) Transform(ctx context.Context, title, content string) (transform.Result, error) {
	f.mu.Lock()
	f.titles = append(f.titles, title)
	before := f.before
	f.mu.Unlock()

	if before != nil {
		before()
	}

	if err := f.errs[title]; err != nil {
		return nil, err
	}
	return transform.Result{
		"en": {Title: title + " (en)", Content: content, Excerpt: "x"},
		"uk": {Title: title + " (uk)", Content: content, Excerpt: "x"},
	}, nil
}

type fakePublisher struct {
	errs      map[string]error
	partial   map[string]bool
	published [][]publish.Article
}

func (f *fakePublisher) Languages() []string {
	return []string{"en", "uk"}
}

func (f *fakePublisher) Publish(ctx context.Context, source string, articles []publish.Article) []publish.Outcome {
	f.published = append(f.published, articles)

	outcomes := make([]publish.Outcome, 0, len(articles))
	for _, article := range articles {
		outcome := publish.Outcome{Identifier: article.Identifier, Posts: map[string]publish.Created{}}
		if err := f.errs[article.Identifier]; err != nil {
			outcome.Err = err
			if f.partial[article.Identifier] {
				outcome.Posts["en"] = publish.Created{ID: 1, Link: "https://site/en/" + article.Identifier}
			}
		} else {
			outcome.Posts["en"] = publish.Created{ID: 1, Link: "https://site/en/" + article.Identifier}
			outcome.Posts["uk"] = publish.Created{ID: 2, Link: "https://site/uk/" + article.Identifier}
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

type recordingSink struct {
	mu      sync.Mutex
	events  []telemetry.Event
	ctxErrs []error
}

func (s *recordingSink) Emit(ctx context.Context, event telemetry.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
}

func (s *recordingSink) named(name string) []telemetry.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []telemetry.Event
	for _, event := range s.events {
		if event.Name == name {
			out = append(out, event)
		}
	}
	return out
}

func items(ids ...string) []feed.Item {
	out := make([]feed.Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, feed.Item{ID: id, Title: id, Link: "https://source/" + id, Content: "<p>" + id + "</p>"})
	}
	return out
}

type harness struct {
	crawler     *Crawler
	ingestor    *fakeIngestor
	store       *dedupe.FileStore
	transformer *fakeTransformer
	publisher   *fakePublisher
	sink        *recordingSink
}

func newHarness(t *testing.T, source *feed.Config, feedItems []feed.Item) *harness {
	t.Helper()

	h := &harness{
		ingestor:    &fakeIngestor{items: feedItems},
		store:       dedupe.NewFileStore(t.TempDir(), source.Name, dedupe.Limits{MaxEntries: 100, KeepTrailing: 50}),
		transformer: &fakeTransformer{errs: map[string]error{}},
		publisher:   &fakePublisher{errs: map[string]error{}, partial: map[string]bool{}},
		sink:        &recordingSink{},
	}
	h.crawler = New(source, h.ingestor, h.store, h.transformer, h.publisher, h.sink, 2)
	h.crawler.now = func() time.Time { return time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC) }
	return h
}

func loadedIDs(t *testing.T, store dedupe.Store, candidates []feed.Item) []string {
	t.Helper()
	require.NoError(t, store.Load(context.Background()))

	var seen []string
	fresh := map[string]bool{}
	for _, item := range store.FilterNew(candidates) {
		fresh[item.ID] = true
	}
	for _, item := range candidates {
		if !fresh[item.ID] {
			seen = append(seen, item.ID)
		}
	}
	return seen
}

func TestCrawlIsolatesTransformFailure(t *testing.T) {
	source := &feed.Config{Name: "FinTechNews", URL: "https://source/feed"}
	h := newHarness(t, source, items("a", "b", "c"))
	h.transformer.errs["b"] = fmt.Errorf("%w: status failed", transform.ErrRejected)

	require.NoError(t, h.crawler.Execute(context.Background()))

	require.Len(t, h.publisher.published, 1)
	published := h.publisher.published[0]
	require.Len(t, published, 2)
	assert.Equal(t, "a", published[0].Identifier)
	assert.Equal(t, "c", published[1].Identifier)
	assert.Equal(t, "a (en)", published[0].Variants["en"].Title)

	failed := h.sink.named(telemetry.EventItemFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "FinTechNews", failed[0].Source)
	assert.Equal(t, []string{"https://source/b"}, failed[0].Links)
	assert.False(t, failed[0].Success)

	started := h.sink.named(telemetry.EventBatchStarted)
	require.Len(t, started, 1)

	completed := h.sink.named(telemetry.EventBatchCompleted)
	require.Len(t, completed, 1)
	assert.True(t, completed[0].Success)
	assert.Equal(t, 2, completed[0].Count)
	assert.Equal(t, []string{
		"https://site/en/a", "https://site/uk/a",
		"https://site/en/c", "https://site/uk/c",
	}, completed[0].Links)

	assert.ElementsMatch(t, []string{"a", "b", "c"}, loadedIDs(t, h.store, items("a", "b", "c")))
}

func TestCrawlSkipsSeenAndFilteredItems(t *testing.T) {
	source := &feed.Config{Name: "src", URL: "https://source/feed", Settings: feed.ConfigSettings{MaxItems: 2}}
	feedItems := items("a", "b", "c", "d", "e")
	feedItems[1].IsFiltered = true
	feedItems[1].FilterReason = "Excluded by title filter"

	h := newHarness(t, source, feedItems)
	require.NoError(t, h.store.Record(context.Background(), []string{"a"}))

	require.NoError(t, h.crawler.Execute(context.Background()))

	require.Len(t, h.publisher.published, 1)
	var ids []string
	for _, article := range h.publisher.published[0] {
		ids = append(ids, article.Identifier)
	}
	assert.Equal(t, []string{"c", "d"}, ids)
	assert.Equal(t, 2, h.ingestor.extracted)
}

func TestCrawlSkipsRepeatedIdentifiers(t *testing.T) {
	source := &feed.Config{Name: "src", URL: "https://source/feed"}
	feedItems := items("a", "b", "a")
	feedItems[2].Title = "a again"

	h := newHarness(t, source, feedItems)

	require.NoError(t, h.crawler.Execute(context.Background()))

	require.Len(t, h.publisher.published, 1)
	var ids []string
	for _, article := range h.publisher.published[0] {
		ids = append(ids, article.Identifier)
	}
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.ElementsMatch(t, []string{"a", "b"}, h.transformer.titles)
}

func TestCrawlInterruptedRunReportsFailure(t *testing.T) {
	source := &feed.Config{Name: "src", URL: "https://source/feed"}
	h := newHarness(t, source, items("a", "b"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.transformer.before = cancel
	h.transformer.errs["b"] = fmt.Errorf("%w: bad output", transform.ErrParse)

	err := h.crawler.Execute(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	completed := h.sink.named(telemetry.EventBatchCompleted)
	require.Len(t, completed, 1)
	assert.False(t, completed[0].Success)
	assert.Equal(t, 1, completed[0].Count)
	assert.Contains(t, completed[0].Message, "interrupted")
	assert.Len(t, h.sink.named(telemetry.EventItemFailed), 1)

	for i, ctxErr := range h.sink.ctxErrs {
		assert.NoError(t, ctxErr, "event %d emitted on a cancelled context", i)
	}

	// work finished before the interruption is still remembered
	assert.ElementsMatch(t, []string{"a", "b"}, loadedIDs(t, h.store, items("a", "b")))
}

func TestCrawlNothingNew(t *testing.T) {
	source := &feed.Config{Name: "src", URL: "https://source/feed"}
	h := newHarness(t, source, items("a"))
	require.NoError(t, h.store.Record(context.Background(), []string{"a"}))

	require.NoError(t, h.crawler.Execute(context.Background()))

	assert.Empty(t, h.publisher.published)
	assert.Empty(t, h.transformer.titles)
	completed := h.sink.named(telemetry.EventBatchCompleted)
	require.Len(t, completed, 1)
	assert.True(t, completed[0].Success)
	assert.Zero(t, completed[0].Count)
}

func TestCrawlFetchErrorAbortsRun(t *testing.T) {
	source := &feed.Config{Name: "src", URL: "https://source/feed"}
	h := newHarness(t, source, items("a"))
	h.ingestor.fetchErr = errors.New("connection refused")

	err := h.crawler.Execute(context.Background())
	require.Error(t, err)

	var fetchErr *feed.FetchError
	assert.ErrorAs(t, err, &fetchErr)

	completed := h.sink.named(telemetry.EventBatchCompleted)
	require.Len(t, completed, 1)
	assert.False(t, completed[0].Success)
	assert.Contains(t, completed[0].Message, "connection refused")
	assert.Empty(t, h.transformer.titles)
}

func TestCrawlRecordPolicy(t *testing.T) {
	source := &feed.Config{Name: "src", URL: "https://source/feed"}
	h := newHarness(t, source, items("ok", "timeout", "parse", "transient", "rejected", "partial"))

	h.transformer.errs["timeout"] = transform.ErrTimeout
	h.transformer.errs["parse"] = fmt.Errorf("%w: missing uk", transform.ErrParse)
	h.publisher.errs["transient"] = fmt.Errorf("en: %w", publish.ErrTransient)
	h.publisher.errs["rejected"] = errors.Join(
		fmt.Errorf("en: %w", publish.ErrRejected),
		fmt.Errorf("uk: %w", publish.ErrRejected),
	)
	h.publisher.errs["partial"] = fmt.Errorf("uk: %w", publish.ErrTransient)
	h.publisher.partial["partial"] = true

	require.NoError(t, h.crawler.Execute(context.Background()))

	assert.Len(t, h.sink.named(telemetry.EventItemFailed), 5)

	seen := loadedIDs(t, h.store, items("ok", "timeout", "parse", "transient", "rejected", "partial"))
	assert.ElementsMatch(t, []string{"ok", "parse", "rejected", "partial"}, seen)

	completed := h.sink.named(telemetry.EventBatchCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, 1, completed[0].Count)
	assert.Contains(t, completed[0].Links, "https://site/en/partial")
}

func TestCrawlerTaskIdentity(t *testing.T) {
	source := &feed.Config{Name: "src", URL: "https://source/feed"}
	h := newHarness(t, source, nil)

	assert.Same(t, h.crawler.Task(), h.crawler.Task())
	assert.Equal(t, "src", h.crawler.Task().Name)
	assert.Equal(t, "src", h.crawler.Name())
	require.NoError(t, h.crawler.Task().Execute(context.Background()))
}
