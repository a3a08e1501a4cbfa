package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rsned/cookdb/pkg/cooking"
)

// ChunkStore handles the per-chunk manifest rows.
type ChunkStore struct {
	db *DB
}

// NewChunkStore creates a new ChunkStore.
func NewChunkStore(db *DB) *ChunkStore {
	return &ChunkStore{db: db}
}

const chunkColumns = `chunk_id, sha256, min_value, max_value, max_value_crit,
	includes_modifier, all_includes_modifier, min_price, max_price`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (cooking.ChunkIndex, error) {
	var c cooking.ChunkIndex
	err := row.Scan(
		&c.Chunk,
		&c.SHA256,
		&c.MinValue,
		&c.MaxValue,
		&c.MaxValueCrit,
		&c.IncludesModifier,
		&c.AllIncludesModifier,
		&c.MinPrice,
		&c.MaxPrice,
	)
	return c, err
}

// GetChunk returns the manifest entry of one chunk, or nil if there is none.
func (s *ChunkStore) GetChunk(ctx context.Context, id uint32) (*cooking.ChunkIndex, error) {
	c, err := scanChunk(s.db.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE chunk_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying chunk %d: %w", id, err)
	}
	return &c, nil
}

// ListChunks returns every manifest entry ordered by chunk id.
func (s *ChunkStore) ListChunks(ctx context.Context) ([]cooking.ChunkIndex, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks ORDER BY chunk_id`)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chunks []cooking.ChunkIndex
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// CountChunks returns the number of manifest entries.
func (s *ChunkStore) CountChunks(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// UpsertChunks records chunk summaries produced by a build in one transaction.
// buildID may be empty for entries imported from elsewhere.
func (s *ChunkStore) UpsertChunks(ctx context.Context, buildID string, chunks []cooking.ChunkIndex) error {
	return s.db.InTransaction(ctx, func(tx *sql.Tx) error {
		return upsertChunks(ctx, tx, buildID, chunks)
	})
}

func upsertChunks(ctx context.Context, tx *sql.Tx, buildID string, chunks []cooking.ChunkIndex) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks
		(`+chunkColumns+`, build_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
	`)
	if err != nil {
		return fmt.Errorf("preparing chunk statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	var build sql.NullString
	if buildID != "" {
		build = sql.NullString{String: buildID, Valid: true}
	}
	for _, c := range chunks {
		_, err := stmt.ExecContext(ctx,
			c.Chunk, c.SHA256, c.MinValue, c.MaxValue, c.MaxValueCrit,
			uint16(c.IncludesModifier), uint16(c.AllIncludesModifier),
			c.MinPrice, c.MaxPrice, build,
		)
		if err != nil {
			return fmt.Errorf("inserting chunk %d: %w", c.Chunk, err)
		}
	}
	return nil
}

// DeleteChunksFrom removes manifest entries with an id at or above first.
// It trims entries left over from a build with more chunks.
func (s *ChunkStore) DeleteChunksFrom(ctx context.Context, first uint32) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE chunk_id >= ?`, first); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// Clear removes every manifest entry.
func (s *ChunkStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}
	return nil
}
