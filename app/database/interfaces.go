package database

import (
	"context"
)

type SeenRepository interface {
	// GetIdentifiers returns a source's identifiers in insertion order.
	GetIdentifiers(ctx context.Context, source string) ([]string, error)
	GetCount(ctx context.Context, source string) (int, error)

	// InsertIdentifiers ignores identifiers that are already stored.
	InsertIdentifiers(ctx context.Context, source string, identifiers []string) error
	// KeepTrailing deletes all but the keep most recently inserted rows.
	KeepTrailing(ctx context.Context, source string, keep int) (int64, error)
}
