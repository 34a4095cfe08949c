package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

const untitled = "No title"

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

func (p *Parser) Run(data []byte) (*gofeed.Feed, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return feed, nil
}

func (p *Parser) Metadata(feed *gofeed.Feed) *Metadata {
	return &Metadata{
		Title:       feed.Title,
		Link:        feed.Link,
		Description: feed.Description,
		Language:    feed.Language,
		UpdatedAt:   feed.UpdatedParsed,
	}
}

// normalizeItem maps a gofeed entry onto Item. Content is left raw; the
// ingestor cleans it.
func (p *Parser) normalizeItem(item *gofeed.Item) Item {
	normalized := Item{
		GUID:        strings.TrimSpace(item.GUID),
		Title:       cmp.Or(strings.TrimSpace(item.Title), untitled),
		Link:        strings.TrimSpace(item.Link),
		Description: item.Description,
		Content:     cmp.Or(item.Content, item.Description),
	}
	normalized.ID = cmp.Or(normalized.GUID, normalized.Link)

	if item.PublishedParsed != nil {
		normalized.PublishedAt = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		normalized.PublishedAt = *item.UpdatedParsed
	}

	normalized.Author = p.extractAuthor(item)

	for _, category := range item.Categories {
		if category = strings.TrimSpace(category); category != "" {
			normalized.Categories = append(normalized.Categories, category)
		}
	}

	if item.Image != nil {
		normalized.OriginImage = item.Image.URL
	}
	if normalized.OriginImage == "" {
		for _, enclosure := range item.Enclosures {
			if enclosure != nil && strings.HasPrefix(enclosure.Type, "image/") {
				normalized.OriginImage = enclosure.URL
				break
			}
		}
	}

	return normalized
}

// extractAuthor prefers dc:creator, which gofeed exposes through the
// Dublin Core extension, over the generic author fields.
func (p *Parser) extractAuthor(item *gofeed.Item) string {
	if item.DublinCoreExt != nil {
		for _, creator := range item.DublinCoreExt.Creator {
			if creator = strings.TrimSpace(creator); creator != "" {
				return creator
			}
		}
	}

	if len(item.Authors) > 0 {
		names := make([]string, 0, len(item.Authors))
		for _, author := range item.Authors {
			if author == nil {
				continue
			}
			if name := cmp.Or(strings.TrimSpace(author.Name), strings.TrimSpace(author.Email)); name != "" {
				names = append(names, name)
			}
		}
		return strings.Join(names, ", ")
	}

	if item.Author != nil {
		return cmp.Or(strings.TrimSpace(item.Author.Name), strings.TrimSpace(item.Author.Email))
	}

	return ""
}
