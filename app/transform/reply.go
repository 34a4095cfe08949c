package transform

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Article is one language variant of a rewritten entry.
type Article struct {
	Title   string
	Content string
	Excerpt string
}

// Result maps an output language code to its variant.
type Result map[string]Article

var codeFence = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\\n?(.*?)\\s*```$")

type replyArticle struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
	Excerpt *string `json:"excerpt"`
}

// ParseReply decodes {"<lang>": {"title", "content", "excerpt"}} and requires
// every language in languages to be present with a non-empty title and
// content. Unknown languages in the reply are ignored.
func ParseReply(text string, languages []string) (Result, error) {
	text = strings.TrimSpace(text)
	if m := codeFence.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	if text == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrParse)
	}

	var raw map[string]*replyArticle
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	result := make(Result, len(languages))
	for _, lang := range languages {
		article, ok := raw[lang]
		if !ok || article == nil {
			return nil, fmt.Errorf("%w: missing language %q", ErrParse, lang)
		}
		if article.Title == nil || strings.TrimSpace(*article.Title) == "" {
			return nil, fmt.Errorf("%w: %s.title is missing", ErrParse, lang)
		}
		if article.Content == nil || strings.TrimSpace(*article.Content) == "" {
			return nil, fmt.Errorf("%w: %s.content is missing", ErrParse, lang)
		}
		if article.Excerpt == nil {
			return nil, fmt.Errorf("%w: %s.excerpt is missing", ErrParse, lang)
		}

		result[lang] = Article{
			Title:   strings.TrimSpace(*article.Title),
			Content: *article.Content,
			Excerpt: strings.TrimSpace(*article.Excerpt),
		}
	}

	return result, nil
}
