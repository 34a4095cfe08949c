package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/mmcdole/gofeed"
)

const (
	defaultTimeout = 15
	maxBodySize    = 10 << 20

	feedAccept = "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5"
)

// FetchError is returned when a source feed cannot be retrieved or parsed.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type Ingestor struct {
	httpClient *http.Client
	parser     *Parser
	extractor  *ContentExtractor
	filterer   *Filterer
	userAgent  string
}

func NewIngestor(httpClient *http.Client, userAgent string) *Ingestor {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Ingestor{
		httpClient: httpClient,
		parser:     NewParser(),
		extractor:  NewContentExtractor(),
		filterer:   NewFilterer(),
		userAgent:  userAgent,
	}
}

// Fetch downloads and parses a feed. The caller bounds it through ctx.
func (in *Ingestor) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	data, err := in.get(ctx, url, feedAccept)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	parsed, err := in.parser.Run(data)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	metadata := in.parser.Metadata(parsed)
	slog.Debug("Feed fetched", "url", url, "title", metadata.Title, "items", len(parsed.Items))

	return parsed, nil
}

// ExtractItems normalizes entries in feed order. Entries without any
// identifier are dropped; entries excluded by the source filters are
// returned with IsFiltered set. A cancelled ctx yields no items.
func (in *Ingestor) ExtractItems(ctx context.Context, parsed *gofeed.Feed, source *Config) []Item {
	if parsed == nil || ctx.Err() != nil {
		return nil
	}

	cleaner := in.cleaner(source)

	items := make([]Item, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		if entry == nil {
			continue
		}
		if ctx.Err() != nil {
			slog.Debug("Item extraction cancelled", "source", source.Name, "extracted", len(items))
			return nil
		}

		item := in.parser.normalizeItem(entry)
		if item.ID == "" {
			slog.Warn("Skipping entry without guid or link", "source", source.Name, "title", item.Title)
			continue
		}

		content, image := cleaner.Run(item.Content)
		item.Content = content
		if image != "" {
			item.OriginImage = image
		}

		items = append(items, item)
	}

	return in.filterer.Run(items, source)
}

// ExtractContent fills empty bodies from the linked article page when the
// source opts in. It is meant for items that are about to be processed, not
// for the whole feed.
func (in *Ingestor) ExtractContent(ctx context.Context, items []Item, source *Config) []Item {
	if !source.Settings.ExtractContent {
		return items
	}

	var cleaner *Cleaner
	for i := range items {
		if items[i].Content != "" || items[i].Link == "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		if cleaner == nil {
			cleaner = in.cleaner(source)
		}

		content, image := cleaner.Run(in.extractPage(ctx, items[i].Link))
		items[i].Content = content
		if image != "" && items[i].OriginImage == "" {
			items[i].OriginImage = image
		}
	}

	return items
}

func (in *Ingestor) cleaner(source *Config) *Cleaner {
	patterns := source.Settings.Boilerplate
	if len(patterns) == 0 {
		patterns = DefaultBoilerplate
	}
	cleaner, err := NewCleaner(patterns)
	if err != nil {
		slog.Warn("Falling back to default boilerplate patterns", "source", source.Name, "error", err)
		cleaner, _ = NewCleaner(DefaultBoilerplate)
	}
	return cleaner
}

func (in *Ingestor) extractPage(ctx context.Context, link string) string {
	data, err := in.get(ctx, link, "text/html, */*;q=0.8")
	if err != nil {
		slog.Warn("Failed to fetch article page", "url", link, "error", err)
		return ""
	}

	content, err := in.extractor.Run(data, link)
	if err != nil {
		slog.Warn("Failed to extract article content", "url", link, "error", err)
		return ""
	}
	return content
}

func (in *Ingestor) get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", accept)
	if in.userAgent != "" {
		req.Header.Set("User-Agent", in.userAgent)
	}

	resp, err := in.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return data, nil
}
