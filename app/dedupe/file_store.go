package dedupe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lysyi3m/feed-relay/app/feed"
)

// FileStore keeps one identifier per line in <dir>/<source>.seen.
type FileStore struct {
	path   string
	source string
	limits Limits

	mu   sync.Mutex
	seen *seenSet
}

func NewFileStore(dir, source string, limits Limits) *FileStore {
	return &FileStore{
		path:   filepath.Join(dir, source+".seen"),
		source: source,
		limits: limits,
	}
}

func NewFileFactory(dir string, limits Limits) Factory {
	return func(source string) Store {
		return NewFileStore(dir, source, limits)
	}
}

func (s *FileStore) Load(ctx context.Context) error {
	if err := s.Compact(ctx, s.limits.MaxEntries, s.limits.KeepTrailing); err != nil {
		return err
	}

	ids, err := s.readLines()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.seen = newSeenSet(ids)
	s.mu.Unlock()

	slog.Debug("Seen identifiers loaded", "source", s.source, "count", len(ids))
	return nil
}

func (s *FileStore) FilterNew(items []feed.Item) []feed.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterNew(s.seen, items)
}

func (s *FileStore) Record(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen == nil {
		existing, err := s.readLines()
		if err != nil {
			return err
		}
		s.seen = newSeenSet(existing)
	}

	added := s.seen.unknown(ids)
	if len(added) == 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, id := range added {
		w.WriteString(id)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to append identifiers: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", s.path, err)
	}

	s.seen.add(added)
	return nil
}

func (s *FileStore) Compact(ctx context.Context, maxSize, keepTrailing int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.readLines()
	if err != nil {
		return err
	}
	if len(ids) <= maxSize {
		return nil
	}

	kept := trailing(ids, keepTrailing)
	if err := s.rewrite(kept); err != nil {
		return err
	}

	if s.seen != nil {
		s.seen = newSeenSet(kept)
	}

	slog.Info("Seen identifiers compacted", "source", s.source, "before", len(ids), "after", len(kept))
	return nil
}

func (s *FileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		return 0
	}
	return len(s.seen.ordered)
}

func (s *FileStore) readLines() ([]string, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			ids = append(ids, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	return ids, nil
}

// rewrite replaces the file through a temp file so a crash never leaves a
// truncated set behind.
func (s *FileStore) rewrite(ids []string) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, id := range ids {
		w.WriteString(id)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write compacted identifiers: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync compacted identifiers: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}
