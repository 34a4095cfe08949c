package database

import (
	"context"
	"fmt"
)

// SeenRepositoryImpl stores ingested identifiers per source
type SeenRepositoryImpl struct {
	db *DB
}

func NewSeenRepository(db *DB) *SeenRepositoryImpl {
	return &SeenRepositoryImpl{db: db}
}

func (r *SeenRepositoryImpl) GetIdentifiers(ctx context.Context, source string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT identifier FROM seen_items
		WHERE source = ?
		ORDER BY seq ASC
	`, source)
	if err != nil {
		return nil, fmt.Errorf("failed to query identifiers: %w", err)
	}
	defer rows.Close()

	var identifiers []string
	for rows.Next() {
		var identifier string
		if err := rows.Scan(&identifier); err != nil {
			return nil, fmt.Errorf("failed to scan identifier: %w", err)
		}
		identifiers = append(identifiers, identifier)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate identifiers: %w", err)
	}

	return identifiers, nil
}

func (r *SeenRepositoryImpl) GetCount(ctx context.Context, source string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM seen_items WHERE source = ?`, source).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count identifiers: %w", err)
	}
	return count, nil
}

func (r *SeenRepositoryImpl) InsertIdentifiers(ctx context.Context, source string, identifiers []string) error {
	if len(identifiers) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO seen_items (source, identifier) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, identifier := range identifiers {
		if _, err := stmt.ExecContext(ctx, source, identifier); err != nil {
			return fmt.Errorf("failed to insert identifier %q: %w", identifier, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit identifiers: %w", err)
	}
	return nil
}

func (r *SeenRepositoryImpl) KeepTrailing(ctx context.Context, source string, keep int) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM seen_items
		WHERE source = ?
		  AND seq NOT IN (
			SELECT seq FROM seen_items
			WHERE source = ?
			ORDER BY seq DESC
			LIMIT ?
		  )
	`, source, source, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to compact identifiers: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return deleted, nil
}
