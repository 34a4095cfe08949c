// Package dedupe remembers which feed entries a crawler has already handled.
//
// Stores are bounded: once a source holds more than MaxEntries identifiers,
// only the KeepTrailing most recent survive. An entry evicted this way is
// ingested again if the feed still carries it, so KeepTrailing should stay
// comfortably above the number of entries a feed exposes at once.
package dedupe

import (
	"context"

	"github.com/lysyi3m/feed-relay/app/feed"
)

type Store interface {
	// Load reads the persisted identifiers, compacting them first. A source
	// without any state yet loads as empty.
	Load(ctx context.Context) error
	// FilterNew keeps the items whose identifier has not been loaded or
	// recorded, in input order.
	FilterNew(items []feed.Item) []feed.Item
	// Record persists identifiers. Already known identifiers are skipped.
	Record(ctx context.Context, ids []string) error
	// Compact keeps the keepTrailing most recent identifiers when more than
	// maxSize are stored.
	Compact(ctx context.Context, maxSize, keepTrailing int) error
	Len() int
}

type Limits struct {
	MaxEntries   int
	KeepTrailing int
}

// Factory returns the store of one source.
type Factory func(source string) Store

// seenSet is the in-memory view shared by the backends.
type seenSet struct {
	ordered []string
	index   map[string]struct{}
}

func newSeenSet(ids []string) *seenSet {
	s := &seenSet{index: make(map[string]struct{}, len(ids))}
	s.add(ids)
	return s
}

// unknown returns the identifiers not in the set yet, once each, without
// changing the set. Backends write these first and add them on success.
func (s *seenSet) unknown(ids []string) []string {
	var out []string
	pending := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" || s.has(id) {
			continue
		}
		if _, ok := pending[id]; ok {
			continue
		}
		pending[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (s *seenSet) add(ids []string) {
	for _, id := range s.unknown(ids) {
		s.index[id] = struct{}{}
		s.ordered = append(s.ordered, id)
	}
}

func (s *seenSet) has(id string) bool {
	_, ok := s.index[id]
	return ok
}

func filterNew(s *seenSet, items []feed.Item) []feed.Item {
	fresh := make([]feed.Item, 0, len(items))
	for _, item := range items {
		if s == nil || !s.has(item.ID) {
			fresh = append(fresh, item)
		}
	}
	return fresh
}

func trailing(ids []string, keep int) []string {
	if keep <= 0 {
		return nil
	}
	if len(ids) <= keep {
		return ids
	}
	return ids[len(ids)-keep:]
}
