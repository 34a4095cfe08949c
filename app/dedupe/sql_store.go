package dedupe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lysyi3m/feed-relay/app/database"
	"github.com/lysyi3m/feed-relay/app/feed"
)

// SQLStore keeps identifiers in the seen_items table.
type SQLStore struct {
	repo   database.SeenRepository
	source string
	limits Limits

	mu   sync.Mutex
	seen *seenSet
}

func NewSQLStore(repo database.SeenRepository, source string, limits Limits) *SQLStore {
	return &SQLStore{
		repo:   repo,
		source: source,
		limits: limits,
	}
}

func NewSQLFactory(repo database.SeenRepository, limits Limits) Factory {
	return func(source string) Store {
		return NewSQLStore(repo, source, limits)
	}
}

func (s *SQLStore) Load(ctx context.Context) error {
	if err := s.Compact(ctx, s.limits.MaxEntries, s.limits.KeepTrailing); err != nil {
		return err
	}

	ids, err := s.repo.GetIdentifiers(ctx, s.source)
	if err != nil {
		return fmt.Errorf("failed to load seen identifiers: %w", err)
	}

	s.mu.Lock()
	s.seen = newSeenSet(ids)
	s.mu.Unlock()

	slog.Debug("Seen identifiers loaded", "source", s.source, "count", len(ids))
	return nil
}

func (s *SQLStore) FilterNew(items []feed.Item) []feed.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterNew(s.seen, items)
}

func (s *SQLStore) Record(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen == nil {
		s.seen = newSeenSet(nil)
	}

	added := s.seen.unknown(ids)
	if len(added) == 0 {
		return nil
	}

	if err := s.repo.InsertIdentifiers(ctx, s.source, added); err != nil {
		return fmt.Errorf("failed to record identifiers: %w", err)
	}
	s.seen.add(added)
	return nil
}

func (s *SQLStore) Compact(ctx context.Context, maxSize, keepTrailing int) error {
	count, err := s.repo.GetCount(ctx, s.source)
	if err != nil {
		return fmt.Errorf("failed to count seen identifiers: %w", err)
	}
	if count <= maxSize {
		return nil
	}

	deleted, err := s.repo.KeepTrailing(ctx, s.source, max(keepTrailing, 0))
	if err != nil {
		return err
	}

	slog.Info("Seen identifiers compacted", "source", s.source, "before", count, "deleted", deleted)
	return nil
}

func (s *SQLStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		return 0
	}
	return len(s.seen.ordered)
}
