package feed

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultBoilerplate matches the footer and caption paragraphs that
// syndicated WordPress feeds append to every entry.
var DefaultBoilerplate = []string{
	`^The post .* appeared first on `,
	`^Featured image:`,
}

var featuredImagePrefix = regexp.MustCompile(`(?i)^featured image`)

// Cleaner strips boilerplate paragraphs from an entry body and picks up the
// featured image link on the way.
type Cleaner struct {
	patterns []*regexp.Regexp
}

func NewCleaner(patterns []string) (*Cleaner, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid boilerplate pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return &Cleaner{patterns: compiled}, nil
}

// Run returns the cleaned body and the featured image URL, if any.
func (c *Cleaner) Run(body string) (string, string) {
	if strings.TrimSpace(body) == "" {
		return "", ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		slog.Warn("Failed to parse entry body, keeping it as is", "error", err)
		return strings.TrimSpace(body), ""
	}

	var image string
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := strings.TrimSpace(p.Text())

		if image == "" && (featuredImagePrefix.MatchString(strings.TrimSpace(p.Find("em").First().Text())) || featuredImagePrefix.MatchString(text)) {
			if href, ok := p.Find("a").First().Attr("href"); ok {
				image = strings.TrimSpace(href)
			}
		}

		for _, re := range c.patterns {
			if re.MatchString(text) {
				p.Remove()
				return
			}
		}
	})

	cleaned, err := doc.Find("body").Html()
	if err != nil {
		slog.Warn("Failed to render cleaned body", "error", err)
		return strings.TrimSpace(body), image
	}

	return strings.TrimSpace(cleaned), image
}
