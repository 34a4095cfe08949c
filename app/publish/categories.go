package publish

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// categoryResolver maps category labels to destination ids. Lists are
// fetched once per language and kept for the resolver's lifetime, which is
// a single Publish call.
type categoryResolver struct {
	backend   Backend
	defaultID int64
	fold      cases.Caser
	lists     map[string]map[string]int64
}

func newCategoryResolver(backend Backend, defaultID int64) *categoryResolver {
	return &categoryResolver{
		backend:   backend,
		defaultID: defaultID,
		fold:      cases.Fold(),
		lists:     make(map[string]map[string]int64),
	}
}

func (r *categoryResolver) key(name string) string {
	return r.fold.String(norm.NFKC.String(strings.Join(strings.Fields(name), " ")))
}

func (r *categoryResolver) load(ctx context.Context, lang string) map[string]int64 {
	if index, ok := r.lists[lang]; ok {
		return index
	}

	// A failed fetch is cached as an empty index so every article of this
	// call falls back to the default without refetching.
	index := make(map[string]int64)
	categories, err := r.backend.ListCategories(ctx, lang)
	if err != nil {
		slog.Warn("Failed to fetch categories, using default", "lang", lang, "default_id", r.defaultID, "error", err)
	} else {
		for _, category := range categories {
			if k := r.key(category.Name); k != "" {
				if _, exists := index[k]; !exists {
					index[k] = category.ID
				}
			}
		}
	}

	r.lists[lang] = index
	return index
}

// Resolve never fails: unmatched labels fall back to the default id.
func (r *categoryResolver) Resolve(ctx context.Context, lang string, labels []string) []int64 {
	index := r.load(ctx, lang)

	var ids []int64
	seen := make(map[int64]bool)
	for _, label := range labels {
		id, ok := index[r.key(label)]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	if len(ids) == 0 && r.defaultID > 0 {
		ids = []int64{r.defaultID}
	}
	return ids
}
