package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReplyStripsCodeFence(t *testing.T) {
	text := "```json\n{\"en\": {\"title\": \"T\", \"content\": \"C\", \"excerpt\": \"\"}}\n```"

	result, err := ParseReply(text, []string{"en"})
	require.NoError(t, err)
	assert.Equal(t, Article{Title: "T", Content: "C"}, result["en"])
}

func TestParseReplyIgnoresExtraLanguages(t *testing.T) {
	result, err := ParseReply(validReply, []string{"uk"})
	require.NoError(t, err)
	assert.Len(t, result, 1)
	assert.Equal(t, "Миттєві виплати", result["uk"].Title)
}

func TestParseReplyInvalid(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", "   "},
		{"not json", "Sorry, I cannot help"},
		{"array", `[{"title": "x"}]`},
		{"missing language", `{"en": {"title": "T", "content": "C", "excerpt": "E"}}`},
		{"null language", `{"en": {"title": "T", "content": "C", "excerpt": "E"}, "uk": null}`},
		{"empty title", `{"en": {"title": " ", "content": "C", "excerpt": "E"}, "uk": {"title": "T", "content": "C", "excerpt": "E"}}`},
		{"missing content", `{"en": {"title": "T", "excerpt": "E"}, "uk": {"title": "T", "content": "C", "excerpt": "E"}}`},
		{"missing excerpt", `{"en": {"title": "T", "content": "C"}, "uk": {"title": "T", "content": "C", "excerpt": "E"}}`},
		{"wrong type", `{"en": {"title": 5, "content": "C", "excerpt": "E"}, "uk": {"title": "T", "content": "C", "excerpt": "E"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReply(tt.text, []string{"en", "uk"})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}
