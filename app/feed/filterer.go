package feed

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Filterer marks items excluded by a source's include/exclude rules. Terms
// are matched case-insensitively as substrings. Categories are matched one
// by one, and HTML fields are matched on their text only.
type Filterer struct{}

func NewFilterer() *Filterer {
	return &Filterer{}
}

type rule struct {
	field    string
	includes []string
	excludes []string
}

func compileRules(filters []ConfigFilter) []rule {
	rules := make([]rule, 0, len(filters))
	for _, filter := range filters {
		rules = append(rules, rule{
			field:    filter.Field,
			includes: lowerAll(filter.Includes),
			excludes: lowerAll(filter.Excludes),
		})
	}
	return rules
}

func (f *Filterer) Run(items []Item, source *Config) []Item {
	if len(source.Filters) == 0 {
		return items
	}

	rules := compileRules(source.Filters)
	for i := range items {
		items[i].IsFiltered, items[i].FilterReason = f.evaluate(items[i], rules)
	}
	return items
}

func (f *Filterer) evaluate(item Item, rules []rule) (bool, string) {
	for _, r := range rules {
		values := fieldValues(item, r.field)

		if term, ok := firstMatch(values, r.excludes); ok {
			return true, fmt.Sprintf("Excluded by %s filter: contains '%s'", r.field, term)
		}

		if len(r.includes) > 0 {
			if _, ok := firstMatch(values, r.includes); !ok {
				return true, fmt.Sprintf("Excluded by %s filter: none of %v", r.field, r.includes)
			}
		}
	}
	return false, ""
}

func firstMatch(values, terms []string) (string, bool) {
	for _, term := range terms {
		for _, value := range values {
			if strings.Contains(value, term) {
				return term, true
			}
		}
	}
	return "", false
}

// fieldValues returns the lowercased values a rule on field is checked
// against. Unknown fields yield nothing, so only include rules can match them.
func fieldValues(item Item, field string) []string {
	switch field {
	case "title":
		return []string{strings.ToLower(item.Title)}
	case "description":
		return []string{strings.ToLower(htmlText(item.Description))}
	case "content":
		return []string{strings.ToLower(htmlText(item.Content))}
	case "author", "authors":
		return []string{strings.ToLower(item.Author)}
	case "link":
		return []string{strings.ToLower(item.Link)}
	case "categories":
		return lowerAll(item.Categories)
	default:
		return nil
	}
}

func htmlText(fragment string) string {
	if !strings.ContainsRune(fragment, '<') {
		return fragment
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return doc.Text()
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
