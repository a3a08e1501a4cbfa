package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rsned/cookdb/pkg/cooking"
)

// BuildStore records build runs.
type BuildStore struct {
	db *DB
}

// NewBuildStore creates a new BuildStore.
func NewBuildStore(db *DB) *BuildStore {
	return &BuildStore{db: db}
}

// CreateBuild inserts a running build and returns it with its id and start
// time filled in.
func (s *BuildStore) CreateBuild(ctx context.Context, info cooking.BuildInfo) (*cooking.BuildInfo, error) {
	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	info.Status = cooking.BuildRunning
	info.StartedAt = time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO builds
		(id, catalog_digest, num_groups, chunk_size, chunk_count, total_records, workers, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, info.ID, info.CatalogDigest, info.NumGroups, info.ChunkSize, info.ChunkCount,
		int64(info.TotalRecords), info.Workers, info.Status, info.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting build: %w", err)
	}
	if err := s.db.SetMetadata(ctx, KeyLastBuild, info.ID); err != nil {
		return nil, err
	}
	return &info, nil
}

// FinishBuild marks a build complete or failed.
func (s *BuildStore) FinishBuild(ctx context.Context, id, status, critSHA256 string, failedChunks int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE builds
		SET status = ?, crit_sha256 = ?, failed_chunks = ?, finished_at = ?
		WHERE id = ?
	`, status, critSHA256, failedChunks, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating build %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("build %s not found", id)
	}
	return nil
}

const buildColumns = `id, catalog_digest, num_groups, chunk_size, chunk_count, total_records,
	workers, status, crit_sha256, failed_chunks, started_at, finished_at`

func scanBuild(row rowScanner) (*cooking.BuildInfo, error) {
	var (
		b        cooking.BuildInfo
		total    int64
		finished sql.NullString
	)
	err := row.Scan(
		&b.ID, &b.CatalogDigest, &b.NumGroups, &b.ChunkSize, &b.ChunkCount, &total,
		&b.Workers, &b.Status, &b.CritSHA256, &b.FailedChunks, &b.StartedAt, &finished,
	)
	if err != nil {
		return nil, err
	}
	b.TotalRecords = uint64(total)
	b.FinishedAt = finished.String
	return &b, nil
}

// GetBuild returns a build by id, or nil if there is none.
func (s *BuildStore) GetBuild(ctx context.Context, id string) (*cooking.BuildInfo, error) {
	b, err := scanBuild(s.db.QueryRowContext(ctx,
		`SELECT `+buildColumns+` FROM builds WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying build: %w", err)
	}
	return b, nil
}

// LatestBuild returns the most recently started build, or nil if there is none.
func (s *BuildStore) LatestBuild(ctx context.Context) (*cooking.BuildInfo, error) {
	id, err := s.db.GetMetadata(ctx, KeyLastBuild)
	if err != nil || id == "" {
		return nil, err
	}
	return s.GetBuild(ctx, id)
}

// ListBuilds returns up to limit builds, newest first.
func (s *BuildStore) ListBuilds(ctx context.Context, limit int) ([]cooking.BuildInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+buildColumns+` FROM builds ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying builds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var builds []cooking.BuildInfo
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning build: %w", err)
		}
		builds = append(builds, *b)
	}
	return builds, rows.Err()
}
